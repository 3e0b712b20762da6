package repo

import (
	"context"
	"errors"

	"github.com/dushixiang/ladder/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewOrderRepo(db *gorm.DB) *OrderRepo {
	return &OrderRepo{
		Repository: orz.NewRepository[models.Order, string](db),
	}
}

type OrderRepo struct {
	orz.Repository[models.Order, string]
}

// FindByRoundID 查找指定回合的所有订单
func (r OrderRepo) FindByRoundID(ctx context.Context, roundID string) ([]models.Order, error) {
	db := r.GetDB(ctx)
	var orders []models.Order
	err := db.Table(r.GetTableName()).
		Where("round_id = ?", roundID).
		Order("rate DESC").
		Find(&orders).Error
	return orders, err
}

// FindOpenByRoundID 查找指定回合的所有未终结订单
func (r OrderRepo) FindOpenByRoundID(ctx context.Context, roundID string) ([]models.Order, error) {
	db := r.GetDB(ctx)
	var orders []models.Order
	err := db.Table(r.GetTableName()).
		Where("round_id = ? AND status IN ?", roundID, openStatuses()).
		Order("rate DESC").
		Find(&orders).Error
	return orders, err
}

// MarkActiveChecking 把指定策略下所有挂单中的订单批量置为待核实。
// 每轮巡检开始时调用一次，只覆盖本轮会被巡检到的策略，
// 之后逐单与交易所对账后恢复或终结。
func (r OrderRepo) MarkActiveChecking(ctx context.Context, settingsIDs []string) error {
	if len(settingsIDs) == 0 {
		return nil
	}
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("settings_id IN ? AND status = ?", settingsIDs, models.OrderStatusActive).
		Update("status", models.OrderStatusChecking).Error
}

// FindChecking 查找指定回合内待核实的订单
func (r OrderRepo) FindChecking(ctx context.Context, roundID string) ([]models.Order, error) {
	db := r.GetDB(ctx)
	var orders []models.Order
	err := db.Table(r.GetTableName()).
		Where("round_id = ? AND status = ?", roundID, models.OrderStatusChecking).
		Order("rate DESC").
		Find(&orders).Error
	return orders, err
}

// FindTransitioning 查找指定策略下处于回合交接状态的买单
func (r OrderRepo) FindTransitioning(ctx context.Context, settingsID string) ([]models.Order, error) {
	db := r.GetDB(ctx)
	var orders []models.Order
	err := db.Table(r.GetTableName()).
		Where("settings_id = ? AND status = ?", settingsID, models.OrderStatusTransitioning).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

// FindCurrentSell 查找指定回合当前未终结的卖单，没有则返回 nil。
// 回合不变式要求这样的卖单至多一个，取挂出时间最新的那个。
func (r OrderRepo) FindCurrentSell(ctx context.Context, roundID string) (*models.Order, error) {
	db := r.GetDB(ctx)
	var order models.Order
	err := db.Table(r.GetTableName()).
		Where("round_id = ? AND type = ? AND status IN ?", roundID, models.OrderTypeSell, openStatuses()).
		Order("created_at DESC").
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CountOpenBuys 统计指定回合未终结的买单数量
func (r OrderRepo) CountOpenBuys(ctx context.Context, roundID string) (int64, error) {
	db := r.GetDB(ctx)
	var count int64
	err := db.Table(r.GetTableName()).
		Where("round_id = ? AND type = ? AND status IN ?", roundID, models.OrderTypeBuy, openStatuses()).
		Count(&count).Error
	return count, err
}

// BuyGain 统计指定回合买单的累计成交数量（未扣手续费）。
// 交接转入的订单不计：其成交已在旧回合结算，剩余货物记在归档存货里，
// 同一批货物只允许出现在一处账上。
func (r OrderRepo) BuyGain(ctx context.Context, roundID string) (float64, error) {
	db := r.GetDB(ctx)
	var gain float64
	err := db.Table(r.GetTableName()).
		Where("round_id = ? AND type = ? AND carried = ?", roundID, models.OrderTypeBuy, false).
		Select("COALESCE(SUM(start_amount - amount), 0)").
		Scan(&gain).Error
	return gain, err
}

// BuySpent 统计指定回合买单的累计成交金额（计价货币），同样排除交接转入的订单
func (r OrderRepo) BuySpent(ctx context.Context, roundID string) (float64, error) {
	db := r.GetDB(ctx)
	var spent float64
	err := db.Table(r.GetTableName()).
		Where("round_id = ? AND type = ? AND carried = ?", roundID, models.OrderTypeBuy, false).
		Select("COALESCE(SUM((start_amount - amount) * rate), 0)").
		Scan(&spent).Error
	return spent, err
}

// MaxBuyRate 指定回合未终结买单的最高挂单价，没有则返回 0
func (r OrderRepo) MaxBuyRate(ctx context.Context, roundID string) (float64, error) {
	db := r.GetDB(ctx)
	var rate float64
	err := db.Table(r.GetTableName()).
		Where("round_id = ? AND type = ? AND status IN ?", roundID, models.OrderTypeBuy, openStatuses()).
		Select("COALESCE(MAX(rate), 0)").
		Scan(&rate).Error
	return rate, err
}

// SoldByEndedSells 统计指定回合已终结卖单的累计成交数量。
// 当前卖单完全成交会直接触发回合结算，这里只覆盖被取消的历史卖单。
func (r OrderRepo) SoldByEndedSells(ctx context.Context, roundID string) (float64, error) {
	db := r.GetDB(ctx)
	var sold float64
	err := db.Table(r.GetTableName()).
		Where("round_id = ? AND type = ? AND status IN ?", roundID, models.OrderTypeSell,
			[]models.OrderStatus{models.OrderStatusCanceled, models.OrderStatusCanceledPartial, models.OrderStatusDone}).
		Select("COALESCE(SUM(start_amount - amount), 0)").
		Scan(&sold).Error
	return sold, err
}

// SettlementBuyStats 回合结算用的买单统计，排除迟到转入的订单避免重复计账
func (r OrderRepo) SettlementBuyStats(ctx context.Context, roundID string) (gain float64, spent float64, err error) {
	db := r.GetDB(ctx)
	var row struct {
		Gain  float64
		Spent float64
	}
	err = db.Table(r.GetTableName()).
		Where("round_id = ? AND type = ? AND carried = ?", roundID, models.OrderTypeBuy, false).
		Select("COALESCE(SUM(start_amount - amount), 0) AS gain, COALESCE(SUM((start_amount - amount) * rate), 0) AS spent").
		Scan(&row).Error
	return row.Gain, row.Spent, err
}

// SettlementSellStats 回合结算用的卖单统计
func (r OrderRepo) SettlementSellStats(ctx context.Context, roundID string) (sold float64, income float64, err error) {
	db := r.GetDB(ctx)
	var row struct {
		Sold   float64
		Income float64
	}
	err = db.Table(r.GetTableName()).
		Where("round_id = ? AND type = ?", roundID, models.OrderTypeSell).
		Select("COALESCE(SUM(start_amount - amount), 0) AS sold, COALESCE(SUM((start_amount - amount) * rate), 0) AS income").
		Scan(&row).Error
	return row.Sold, row.Income, err
}

// FindOpenBySettingsID 查找指定策略的所有未终结订单（不含交接中的）
func (r OrderRepo) FindOpenBySettingsID(ctx context.Context, settingsID string) ([]models.Order, error) {
	db := r.GetDB(ctx)
	var orders []models.Order
	err := db.Table(r.GetTableName()).
		Where("settings_id = ? AND status IN ?", settingsID,
			[]models.OrderStatus{models.OrderStatusActive, models.OrderStatusChecking}).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

// ReassignRound 把指定回合的未终结订单整体改挂到另一个回合
func (r OrderRepo) ReassignRound(ctx context.Context, fromRoundID, toRoundID string) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("round_id = ? AND status IN ?", fromRoundID, openStatuses()).
		Update("round_id", toRoundID).Error
}

// UpdateFill 回写成交进度与状态
func (r OrderRepo) UpdateFill(ctx context.Context, id string, amount float64, status models.OrderStatus) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"amount": amount,
			"status": status,
		}).Error
}

// UpdateStatus 更新订单状态
func (r OrderRepo) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Update("status", status).Error
}

// Transition 把交接中的买单改挂到新回合留档。
// 打上 carried 标记：其成交已计入旧回合结算，剩余货物按成本转入了归档存货，
// 之后所有成交聚合一律排除该订单，避免同一批货物被重复计账。
func (r OrderRepo) Transition(ctx context.Context, id string, roundID string, status models.OrderStatus) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"round_id": roundID,
			"status":   status,
			"carried":  true,
		}).Error
}

// FindRecentBySettingsID 查找指定策略最近的订单
func (r OrderRepo) FindRecentBySettingsID(ctx context.Context, settingsID string, limit int) ([]models.Order, error) {
	db := r.GetDB(ctx)
	var orders []models.Order
	err := db.Table(r.GetTableName()).
		Where("settings_id = ?", settingsID).
		Order("created_at DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func openStatuses() []models.OrderStatus {
	return []models.OrderStatus{
		models.OrderStatusActive,
		models.OrderStatusChecking,
		models.OrderStatusTransitioning,
	}
}
