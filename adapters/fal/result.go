package fal

import "imagine/generation"

// Image 是生成結果中的一張圖片
type Image struct {
	URL         string `json:"url"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

func (i Image) GetURL() string {
	return i.URL
}

// Result 是佇列工作完成後的回應內容
type Result struct {
	Images          []Image `json:"images"`
	Seed            int64   `json:"seed,omitempty"`
	Prompt          string  `json:"prompt,omitempty"`
	HasNSFWConcepts []bool  `json:"has_nsfw_concepts,omitempty"`
}

func (r *Result) GetImages() []generation.URLHolder {
	holders := make([]generation.URLHolder, 0, len(r.Images))
	for _, image := range r.Images {
		holders = append(holders, image)
	}
	return holders
}

// GetImageURL 回傳第一張圖片的網址，沒有圖片時為空字串
func (r *Result) GetImageURL() string {
	if len(r.Images) == 0 {
		return ""
	}
	return r.Images[0].URL
}
