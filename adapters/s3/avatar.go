package s3

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidDataURL 表示頭像不是 base64 編碼的 data URL
var ErrInvalidDataURL = errors.New("invalid data url")

type ReachLimitError struct {
	MaxBytes int64
}

func (e *ReachLimitError) Error() string {
	return fmt.Sprintf("reach limit of %s", FormatBytes(e.MaxBytes))
}

// AvatarUploader 將使用者上傳的 data URL 頭像存到 S3
type AvatarUploader struct {
	operator *S3Operator
	maxBytes int64
}

func NewAvatarUploader(operator *S3Operator, maxBytes int64) *AvatarUploader {
	return &AvatarUploader{operator: operator, maxBytes: maxBytes}
}

// IsDataURL 判斷字串是否為圖片 data URL
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:image/")
}

// Upload 解碼 data:image/...;base64, 格式的內容，檢查大小與類型後上傳
func (u *AvatarUploader) Upload(ctx context.Context, userID uuid.UUID, dataURL string) (string, error) {
	const op = "AvatarUploader.Upload"
	mimeType, content, err := decodeDataURL(dataURL, u.maxBytes)
	if err != nil {
		return "", fmt.Errorf("[%s] %w", op, err)
	}
	ext, err := CheckSecureImage(mimeType, content)
	if err != nil {
		return "", fmt.Errorf("[%s] Refuse %s, err=%w", op, mimeType, err)
	}
	key := fmt.Sprintf("avatars/%s/%s.%s", userID, uuid.NewString(), ext)
	return u.operator.Upload(ctx, key, mimeType, content)
}

func decodeDataURL(dataURL string, maxBytes int64) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok || mimeType == "" {
		return "", nil, ErrInvalidDataURL
	}

	// 多讀一個位元組即可判斷是否超過上限
	decoder := base64.NewDecoder(base64.StdEncoding, strings.NewReader(encoded))
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(decoder, maxBytes+1))
	if err != nil {
		return "", nil, fmt.Errorf("fail to decode base64, err=%w", errors.Join(ErrInvalidDataURL, err))
	}
	if n > maxBytes {
		return "", nil, &ReachLimitError{MaxBytes: maxBytes}
	}
	return mimeType, buf.Bytes(), nil
}
