package models

// Image 代表一張由外部服務生成的圖片
// 建立後不可修改，也不屬於任何單一使用者
type Image struct {
	Base

	ImageURL string `gorm:"type:text;not null;<-:create"`
	Prompt   string `gorm:"type:text;not null;<-:create"`
}
