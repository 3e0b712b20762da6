package repo

import (
	"context"

	"github.com/dushixiang/ladder/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func NewTransactionRepo(db *gorm.DB) *TransactionRepo {
	return &TransactionRepo{
		Repository: orz.NewRepository[models.Transaction, int64](db),
	}
}

type TransactionRepo struct {
	orz.Repository[models.Transaction, int64]
}

// InsertDedup 批量写入账本条目，已存在的 ID 静默跳过
func (r TransactionRepo) InsertDedup(ctx context.Context, items []models.Transaction) error {
	if len(items) == 0 {
		return nil
	}
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&items).Error
}

// LastID 指定凭据已同步的最大账本 ID，没有记录时返回 0
func (r TransactionRepo) LastID(ctx context.Context, credentialID string) (int64, error) {
	db := r.GetDB(ctx)
	var id int64
	err := db.Table(r.GetTableName()).
		Where("credential_id = ?", credentialID).
		Select("COALESCE(MAX(id), 0)").
		Scan(&id).Error
	return id, err
}

// FindRecent 查找指定凭据最近的账本条目
func (r TransactionRepo) FindRecent(ctx context.Context, credentialID string, limit int) ([]models.Transaction, error) {
	db := r.GetDB(ctx)
	var items []models.Transaction
	err := db.Table(r.GetTableName()).
		Where("credential_id = ?", credentialID).
		Order("id DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}
