package generation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign 回傳以共享密鑰計算的 HMAC-SHA256 十六進位簽章
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature 以固定時間比對 webhook 簽章
func VerifySignature(secret string, body []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
