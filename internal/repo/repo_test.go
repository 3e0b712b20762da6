package repo

import (
	"testing"

	"github.com/dushixiang/ladder/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 内存库不能跨连接共享
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		models.Settings{}, models.Credential{},
		models.Round{}, models.Order{},
		models.Transaction{},
		models.RateSnapshot{}, models.BalanceSnapshot{},
		models.AdminUser{},
	))
	return db
}
