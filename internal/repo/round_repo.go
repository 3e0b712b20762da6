package repo

import (
	"context"
	"errors"
	"time"

	"github.com/dushixiang/ladder/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewRoundRepo(db *gorm.DB) *RoundRepo {
	return &RoundRepo{
		Repository: orz.NewRepository[models.Round, string](db),
	}
}

type RoundRepo struct {
	orz.Repository[models.Round, string]
}

// FindActiveBySettingsID 查找指定策略的进行中回合，没有则返回 nil
func (r RoundRepo) FindActiveBySettingsID(ctx context.Context, settingsID string) (*models.Round, error) {
	return r.findByReason(ctx, settingsID, models.RoundActive)
}

// FindArchiveBySettingsID 查找指定策略的归档回合，没有则返回 nil
func (r RoundRepo) FindArchiveBySettingsID(ctx context.Context, settingsID string) (*models.Round, error) {
	return r.findByReason(ctx, settingsID, models.RoundArchive)
}

func (r RoundRepo) findByReason(ctx context.Context, settingsID string, reason models.RoundReason) (*models.Round, error) {
	db := r.GetDB(ctx)
	var round models.Round
	err := db.Table(r.GetTableName()).
		Where("settings_id = ? AND reason = ?", settingsID, reason).
		Order("started_at DESC").
		First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &round, nil
}

// NextFillSeq 递增并返回回合的合成订单序号。
// 即时成交没有交易所订单号，用 回合ID+序号 合成本地唯一引用。
func (r RoundRepo) NextFillSeq(ctx context.Context, id string) (int, error) {
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("id = ?", id).
		UpdateColumn("fill_seq", gorm.Expr("fill_seq + 1")).Error
	if err != nil {
		return 0, err
	}
	var seq int
	err = db.Table(r.GetTableName()).
		Where("id = ?", id).
		Select("fill_seq").
		Scan(&seq).Error
	return seq, err
}

// Finish 结算回合：写入汇总统计并置为终态
func (r RoundRepo) Finish(ctx context.Context, id string, reason models.RoundReason, stats models.Round) error {
	db := r.GetDB(ctx)
	now := time.Now()
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reason":       reason,
			"ended_at":     now,
			"income":       stats.Income,
			"goods_in":     stats.GoodsIn,
			"goods_out":    stats.GoodsOut,
			"currency_in":  stats.CurrencyIn,
			"currency_out": stats.CurrencyOut,
		}).Error
}

// AddArchiveStock 向归档回合追加存货（标的数量与对应成本）
func (r RoundRepo) AddArchiveStock(ctx context.Context, id string, goods, cost float64) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"goods_in":    gorm.Expr("goods_in + ?", goods),
			"currency_in": gorm.Expr("currency_in + ?", cost),
		}).Error
}

// AddGoodsOut 记录归档存货被顺带卖出的数量与所得
func (r RoundRepo) AddGoodsOut(ctx context.Context, id string, goods, income float64) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"goods_out":    gorm.Expr("goods_out + ?", goods),
			"currency_out": gorm.Expr("currency_out + ?", income),
		}).Error
}

// UpdateDepositUsed 记录回合已占用的预算
func (r RoundRepo) UpdateDepositUsed(ctx context.Context, id string, used float64) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Update("deposit_used", used).Error
}

// FindRecentBySettingsID 查找指定策略最近结束的回合
func (r RoundRepo) FindRecentBySettingsID(ctx context.Context, settingsID string, limit int) ([]models.Round, error) {
	db := r.GetDB(ctx)
	var rounds []models.Round
	err := db.Table(r.GetTableName()).
		Where("settings_id = ?", settingsID).
		Order("started_at DESC").
		Limit(limit).
		Find(&rounds).Error
	return rounds, err
}
