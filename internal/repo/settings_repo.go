package repo

import (
	"context"

	"github.com/dushixiang/ladder/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewSettingsRepo(db *gorm.DB) *SettingsRepo {
	return &SettingsRepo{
		Repository: orz.NewRepository[models.Settings, string](db),
	}
}

type SettingsRepo struct {
	orz.Repository[models.Settings, string]
}

// FindEnabled 查找所有启用的策略配置
func (r SettingsRepo) FindEnabled(ctx context.Context) ([]models.Settings, error) {
	db := r.GetDB(ctx)
	var items []models.Settings
	err := db.Table(r.GetTableName()).
		Where("enabled = ?", true).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// BumpDeposit 回合结算时按收益比例追加预算
func (r SettingsRepo) BumpDeposit(ctx context.Context, id string, delta float64) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		UpdateColumn("deposit", gorm.Expr("deposit + ?", delta)).Error
}

// UpdateEnabled 启用或停用策略
func (r SettingsRepo) UpdateEnabled(ctx context.Context, id string, enabled bool) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Update("enabled", enabled).Error
}
