package generation

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"imagine/models"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// setupDB 建立每個測試獨立的記憶體資料庫
func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func createUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	user := &models.User{
		Name:         "tester",
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "x",
		AvatarURL:    models.DefaultAvatarURL,
		Role:         models.RoleUser,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(model).Count(&count).Error)
	return count
}

type fakeImage struct{ url string }

func (f fakeImage) GetURL() string { return f.url }

type imagesResult struct{ images []URLHolder }

func (r imagesResult) GetImages() []URLHolder { return r.images }

type directResult struct{ url string }

func (r directResult) GetImageURL() string { return r.url }

type bothResult struct {
	imagesResult
	directResult
}
