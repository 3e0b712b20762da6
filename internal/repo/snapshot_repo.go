package repo

import (
	"context"

	"github.com/dushixiang/ladder/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewRateSnapshotRepo(db *gorm.DB) *RateSnapshotRepo {
	return &RateSnapshotRepo{
		Repository: orz.NewRepository[models.RateSnapshot, string](db),
	}
}

type RateSnapshotRepo struct {
	orz.Repository[models.RateSnapshot, string]
}

// FindRecentBySymbol 查找指定交易对最近的行情快照
func (r RateSnapshotRepo) FindRecentBySymbol(ctx context.Context, symbol string, limit int) ([]models.RateSnapshot, error) {
	db := r.GetDB(ctx)
	var items []models.RateSnapshot
	err := db.Table(r.GetTableName()).
		Where("symbol = ?", symbol).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func NewBalanceSnapshotRepo(db *gorm.DB) *BalanceSnapshotRepo {
	return &BalanceSnapshotRepo{
		Repository: orz.NewRepository[models.BalanceSnapshot, string](db),
	}
}

type BalanceSnapshotRepo struct {
	orz.Repository[models.BalanceSnapshot, string]
}

// FindRecentByCredentialID 查找指定凭据最近的余额快照
func (r BalanceSnapshotRepo) FindRecentByCredentialID(ctx context.Context, credentialID string, limit int) ([]models.BalanceSnapshot, error) {
	db := r.GetDB(ctx)
	var items []models.BalanceSnapshot
	err := db.Table(r.GetTableName()).
		Where("credential_id = ?", credentialID).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}
