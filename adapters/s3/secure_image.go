package s3

import (
	"errors"
	"net/http"
)

// ErrInsecureImage 表示內容不是允許上傳的圖片類型
var ErrInsecureImage = errors.New("insecure image type")

// SecureMIMETypesExtension 定義了允許上傳的安全圖片類型及其對應的副檔名
// SVG 可以夾帶腳本，因此不在清單內
var SecureMIMETypesExtension = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// CheckSecureImage 確認宣告的類型與實際內容一致且在允許清單內，回傳副檔名
func CheckSecureImage(declared string, content []byte) (string, error) {
	ext, ok := SecureMIMETypesExtension[declared]
	if !ok {
		return "", ErrInsecureImage
	}
	if detected := http.DetectContentType(content); detected != declared {
		return "", ErrInsecureImage
	}
	return ext, nil
}
