package generation

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"imagine/models"
)

// CreateAttributedImage 在交易內建立圖片並將其歸屬給使用者
// 呼叫者必須在同一個交易中完成其他狀態更新，避免出現沒有歸屬的圖片
func CreateAttributedImage(tx *gorm.DB, userID uuid.UUID, imageURL, prompt string) (*models.Image, error) {
	const op = "CreateAttributedImage"
	image := &models.Image{
		ImageURL: imageURL,
		Prompt:   prompt,
	}
	if result := tx.Create(image); result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to create image, err=%w", op, result.Error)
	}
	userImage := &models.UserImage{
		UserID:  userID,
		ImageID: image.ID,
	}
	if result := tx.Create(userImage); result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to create user image, err=%w", op, result.Error)
	}
	return image, nil
}
