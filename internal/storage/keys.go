package storage

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxObjectKeyLength = 200

// 允许上传的图片类型及其扩展名。
var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// UserAssetPrefix 返回用户私有资源的对象前缀。
func UserAssetPrefix(userID uint) string {
	return fmt.Sprintf("user-assets/%d/", userID)
}

// ExtensionFor 返回 MIME 对应的扩展名，不在白名单内时 ok 为 false。
func ExtensionFor(mime string) (ext string, ok bool) {
	ext, ok = imageExtensions[strings.ToLower(strings.TrimSpace(mime))]
	return ext, ok
}

// NewUserAssetKey 为上传的图片生成对象键。
func NewUserAssetKey(userID uint, ext string) string {
	return UserAssetPrefix(userID) + uuid.NewString() + ext
}

// IsUserAssetKey 校验对象键属于该用户且不含路径穿越。
func IsUserAssetKey(userID uint, key string) bool {
	if key == "" || len(key) > maxObjectKeyLength || !utf8.ValidString(key) {
		return false
	}
	if !strings.HasPrefix(key, UserAssetPrefix(userID)) {
		return false
	}
	if strings.Contains(key, "..") || strings.Contains(key, "\\") || strings.Contains(key, "//") {
		return false
	}
	lower := strings.ToLower(key)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return strings.HasSuffix(lower, ".jpeg")
}
