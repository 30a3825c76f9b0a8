package generation

import "errors"

// 錯誤分類只用於日誌與診斷，對外一律回傳通用的失敗訊息
var (
	// ErrValidation 缺少必要欄位，不重試直接回傳給呼叫者
	ErrValidation = errors.New("validation error")
	// ErrExternalService 外部服務逾時、失敗或回應無法解析出圖片網址
	ErrExternalService = errors.New("external service error")
	// ErrPersistence 交易失敗並已回滾，外部已產生的圖片不會補救
	ErrPersistence = errors.New("persistence error")
	// ErrInvalidTransition 對已經結束的生成請求再次轉換狀態
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrRequestNotFound 找不到對應關聯鍵的生成請求
	ErrRequestNotFound = errors.New("generation request not found")
)
