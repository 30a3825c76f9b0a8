package generation

// URLHolder 描述提供 url 屬性的圖片項目
type URLHolder interface {
	GetURL() string
}

// ImagesHolder 描述提供 images 屬性的生成結果
type ImagesHolder interface {
	GetImages() []URLHolder
}

// ImageURLHolder 描述直接提供 image_url 屬性的生成結果
type ImageURLHolder interface {
	GetImageURL() string
}

// NormalizeImageURL 從外部服務格式不一的生成結果中取出第一張圖片的網址
//
// 依序檢查:
//   - (a) map 內含 images 陣列，第一個元素為含有 url 的 map
//   - (b) 實作 ImagesHolder，第一個元素的 GetURL
//   - (c) 實作 ImageURLHolder
//
// 符合較前面的形狀後就不會再檢查後面的形狀；(b) 的 images 為空時會繼續檢查 (c)
func NormalizeImageURL(result any) (string, bool) {
	if m, ok := result.(map[string]any); ok {
		images, ok := m["images"].([]any)
		if !ok || len(images) == 0 {
			return "", false
		}
		first, ok := images[0].(map[string]any)
		if !ok {
			return "", false
		}
		url, ok := first["url"].(string)
		return url, ok && url != ""
	}
	if holder, ok := result.(ImagesHolder); ok && len(holder.GetImages()) > 0 {
		first := holder.GetImages()[0]
		if first == nil {
			return "", false
		}
		url := first.GetURL()
		return url, url != ""
	}
	if holder, ok := result.(ImageURLHolder); ok {
		url := holder.GetImageURL()
		return url, url != ""
	}
	return "", false
}
