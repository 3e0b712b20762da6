package migrate

import (
	"errors"
	"fmt"

	"github.com/dushixiang/ladder/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// step 一个版本化迁移步骤，整体在事务内执行
type step struct {
	version int
	name    string
	run     func(tx *gorm.DB) error
}

var steps = []step{
	{
		version: 1,
		name:    "create base tables",
		run: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				models.Settings{}, models.Credential{},
				models.Round{}, models.Order{},
				models.Transaction{},
				models.RateSnapshot{}, models.BalanceSnapshot{},
				models.AdminUser{},
			)
		},
	},
}

// Run 执行所有未应用的迁移步骤。任何一步失败都会中止启动，
// 已应用的版本不会重复执行。
func Run(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(models.SchemaVersion{}); err != nil {
		return fmt.Errorf("migrate schema_version: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return err
	}

	for _, s := range steps {
		if s.version <= current {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := s.run(tx); err != nil {
				return err
			}
			row := models.SchemaVersion{ID: 1, Version: s.version}
			return tx.Save(&row).Error
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", s.version, s.name, err)
		}
		logger.Info("schema migration applied",
			zap.Int("version", s.version),
			zap.String("name", s.name))
	}
	return nil
}

func currentVersion(db *gorm.DB) (int, error) {
	var row models.SchemaVersion
	err := db.First(&row, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.Version, nil
}
