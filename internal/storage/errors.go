package storage

import (
	"errors"
	"strings"

	"github.com/minio/minio-go/v7"
)

// ErrEmptyPrefix 防止误删整个 Bucket。
var ErrEmptyPrefix = errors.New("refusing to delete empty prefix")

// isMissingObject 判断错误是否表示对象不存在。删除资源时这类错误按成功处理。
func isMissingObject(err error) bool {
	if err == nil {
		return false
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchKey", "NotFound":
			return true
		}
		return resp.StatusCode == 404
	}
	// 部分 S3 兼容网关只返回字符串形式的错误。
	return strings.Contains(strings.ToLower(err.Error()), "nosuchkey")
}
