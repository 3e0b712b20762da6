package repo

import (
	"context"

	"github.com/dushixiang/ladder/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewCredentialRepo(db *gorm.DB) *CredentialRepo {
	return &CredentialRepo{
		Repository: orz.NewRepository[models.Credential, string](db),
	}
}

type CredentialRepo struct {
	orz.Repository[models.Credential, string]
}

// FindEnabled 查找所有启用的凭据
func (r CredentialRepo) FindEnabled(ctx context.Context) ([]models.Credential, error) {
	db := r.GetDB(ctx)
	var items []models.Credential
	err := db.Table(r.GetTableName()).
		Where("enabled = ?", true).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}
