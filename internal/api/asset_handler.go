package api

import (
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"

	"cvbuilder/internal/api/middleware"
	"cvbuilder/internal/storage"
)

const (
	defaultMaxAssetBytes = 5 << 20
	assetURLTTL          = 15 * time.Minute
)

// assetStorage 由 *storage.Client 实现。
type assetStorage interface {
	UploadFile(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}

// AssetHandler 负责预览图等用户资源的上传与访问。
type AssetHandler struct {
	Storage   assetStorage
	ClamdAddr string
	MaxBytes  int64
}

// NewAssetHandler 返回 AssetHandler 实例；clamdAddr 为空时不做病毒扫描。
func NewAssetHandler(storageClient assetStorage, clamdAddr string) *AssetHandler {
	return &AssetHandler{
		Storage:   storageClient,
		ClamdAddr: clamdAddr,
		MaxBytes:  defaultMaxAssetBytes,
	}
}

// UploadAsset 处理图片上传：限制大小、按内容识别类型，并在上传前扫描病毒。
func (h *AssetHandler) UploadAsset(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	logger := middleware.LoggerFromContext(c)

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size <= 0 {
		BadRequest(c, "empty file")
		return
	}
	if h.MaxBytes > 0 && file.Size > h.MaxBytes {
		BadRequest(c, "file too large")
		return
	}

	contentType, err := sniffContentType(file)
	if err != nil {
		logger.Error("read upload", slog.Any("error", err))
		Internal(c, "failed to read file")
		return
	}
	ext, ok := storage.ExtensionFor(contentType)
	if !ok {
		BadRequest(c, "unsupported file type")
		return
	}

	if h.ClamdAddr != "" {
		clean, err := h.scan(file)
		if err != nil {
			logger.Error("scan file", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		}
		if !clean {
			logger.Warn("malicious upload rejected", slog.Uint64("user_id", uint64(userID)))
			BadRequest(c, "malicious file detected")
			return
		}
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	defer reader.Close()

	objectKey := storage.NewUserAssetKey(userID, ext)
	if _, err := h.Storage.UploadFile(c.Request.Context(), objectKey, reader, file.Size, contentType); err != nil {
		logger.Error("upload file", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}

	Success(c, http.StatusCreated, "objectKey", objectKey)
}

// GetAssetURL 返回资源的临时预签名 URL，只能访问自己的前缀。
func (h *AssetHandler) GetAssetURL(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if objectKey == "" {
		BadRequest(c, "missing key")
		return
	}
	if !storage.IsUserAssetKey(userID, objectKey) {
		Forbidden(c, "access denied")
		return
	}

	signedURL, err := h.Storage.GeneratePresignedURL(c.Request.Context(), objectKey, assetURLTTL)
	if err != nil {
		middleware.LoggerFromContext(c).Error("generate presigned url", slog.Any("error", err))
		Internal(c, "failed to generate url")
		return
	}

	Success(c, http.StatusOK, "url", signedURL)
}

func (h *AssetHandler) scan(file *multipart.FileHeader) (bool, error) {
	reader, err := file.Open()
	if err != nil {
		return false, err
	}
	defer reader.Close()

	abort := make(chan bool)
	defer close(abort)
	results, err := clamd.NewClamd(h.ClamdAddr).ScanStream(reader, abort)
	if err != nil {
		return false, err
	}
	clean := true
	for result := range results {
		if result.Status != clamd.RES_OK {
			clean = false
		}
	}
	return clean, nil
}

func sniffContentType(file *multipart.FileHeader) (string, error) {
	reader, err := file.Open()
	if err != nil {
		return "", err
	}
	defer reader.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(reader, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}
