package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dushixiang/ladder/internal/config"
	"github.com/dushixiang/ladder/internal/models"
	"github.com/dushixiang/ladder/internal/repo"
	"github.com/dushixiang/ladder/pkg/exchange"
	"github.com/glebarez/sqlite"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
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

var testPair = exchange.PairInfo{
	Symbol:          "LTCUSDT",
	Goods:           "LTC",
	Currency:        "USDT",
	PricePrecision:  2,
	AmountPrecision: 4,
	MinAmount:       0.001,
	MinNotional:     1,
}

type reconcilerFixture struct {
	db    *gorm.DB
	svc   *ReconcilerService
	paper *exchange.PaperExchange
	st    models.Settings

	orderRepo    *repo.OrderRepo
	roundRepo    *repo.RoundRepo
	settingsRepo *repo.SettingsRepo
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	db := newTestDB(t)
	conf := &config.Config{}
	notify := NewNotifyService(conf, nil, zap.NewNop())

	paper := exchange.NewPaperExchange(zap.NewNop())
	paper.SetPair(testPair)

	st := models.Settings{
		ID:           ulid.Make().String(),
		Goods:        "ltc",
		Currency:     "usdt",
		Profit:       0.01,
		Fee:          0.001,
		FirstStep:    0.05,
		Coverage:     0.20,
		Martingale:   0.10,
		Steps:        4,
		Deposit:      100,
		DepositInc:   0.5,
		CredentialID: "c1",
		Enabled:      true,
	}
	settingsRepo := repo.NewSettingsRepo(db)
	require.NoError(t, settingsRepo.Create(context.Background(), &st))

	return &reconcilerFixture{
		db:           db,
		svc:          NewReconcilerService(db, conf, notify, zap.NewNop()),
		paper:        paper,
		st:           st,
		orderRepo:    repo.NewOrderRepo(db),
		roundRepo:    repo.NewRoundRepo(db),
		settingsRepo: settingsRepo,
	}
}

// snapshot 构造一份巡检快照，余额挂在策略的凭据名下
func (f *reconcilerFixture) snapshot(last float64, asks []exchange.DepthLevel, usdt, ltc float64) *MarketSnapshot {
	return &MarketSnapshot{
		Pairs:   map[string]exchange.PairInfo{testPair.Symbol: testPair},
		Tickers: map[string]exchange.Ticker{testPair.Symbol: {Symbol: testPair.Symbol, Last: last}},
		Depths:  map[string]exchange.Depth{testPair.Symbol: {Asks: asks}},
		Balances: map[string]map[string]float64{
			f.st.CredentialID: {"USDT": usdt, "LTC": ltc},
		},
		TakenAt: time.Now(),
	}
}

func (f *reconcilerFixture) seedRound(t *testing.T, reason models.RoundReason) *models.Round {
	t.Helper()
	round := &models.Round{
		ID:         ulid.Make().String(),
		SettingsID: f.st.ID,
		Reason:     reason,
		StartedAt:  time.Now(),
	}
	require.NoError(t, f.roundRepo.Create(context.Background(), round))
	return round
}

func (f *reconcilerFixture) seedOrder(t *testing.T, o models.Order) models.Order {
	t.Helper()
	o.ID = ulid.Make().String()
	o.SettingsID = f.st.ID
	require.NoError(t, f.orderRepo.Create(context.Background(), &o))
	return o
}

func TestReconcile_OpensRound(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.paper.SetBalance("USDT", 1000)

	snap := f.snapshot(1000, nil, 100, 0)
	require.NoError(t, f.svc.Reconcile(ctx, f.paper, snap, f.st))

	round, err := f.roundRepo.FindActiveBySettingsID(ctx, f.st.ID)
	require.NoError(t, err)
	require.NotNil(t, round)
	assert.Greater(t, round.DepositUsed, 90.0)
	assert.LessOrEqual(t, round.DepositUsed, 100.0+epsilon)

	orders, err := f.orderRepo.FindByRoundID(ctx, round.ID)
	require.NoError(t, err)
	require.Len(t, orders, 4)
	for _, o := range orders {
		assert.Equal(t, models.OrderTypeBuy, o.Type)
		assert.Equal(t, models.OrderStatusActive, o.Status)
		assert.Contains(t, o.Ref, "x:")
	}
	// 第一档折价 5%，最后一档 20%
	assert.InDelta(t, 950, orders[0].Rate, 1e-9)
	assert.InDelta(t, 800, orders[3].Rate, 1e-9)
}

func TestReconcile_RoundExclusivity(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.paper.SetBalance("USDT", 1000)

	snap := f.snapshot(1000, nil, 100, 0)
	require.NoError(t, f.svc.Reconcile(ctx, f.paper, snap, f.st))
	require.NoError(t, f.svc.Reconcile(ctx, f.paper, snap, f.st))

	var count int64
	require.NoError(t, f.db.Model(&models.Round{}).
		Where("settings_id = ? AND reason = ?", f.st.ID, models.RoundActive).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestReconcile_SellDoneClosesRound(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	round := f.seedRound(t, models.RoundActive)
	f.seedOrder(t, models.Order{
		Ref: "x:900", RoundID: round.ID, Type: models.OrderTypeBuy,
		Status: models.OrderStatusDone, StartAmount: 1, Amount: 0, Rate: 100,
	})

	// 交易所侧卖单已完全成交，本地还处于待核实
	f.paper.SetBalance("LTC", 10)
	res, err := f.paper.PlaceOrder(ctx, testPair.Symbol, exchange.SideSell, 110, 0.999)
	require.NoError(t, err)
	f.paper.SetOrderState(res.OrderID, exchange.StateDone, 0)
	f.seedOrder(t, models.Order{
		Ref: fmt.Sprintf("x:%d", res.OrderID), RoundID: round.ID, Type: models.OrderTypeSell,
		Status: models.OrderStatusChecking, StartAmount: 0.999, Amount: 0.999, Rate: 110,
	})

	// 余额为零，结算后不会立刻开出下一回合
	snap := f.snapshot(100, nil, 0, 0)
	require.NoError(t, f.svc.Reconcile(ctx, f.paper, snap, f.st))

	got, err := f.roundRepo.FindById(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundDone, got.Reason)
	require.NotNil(t, got.EndedAt)

	// income = 0.999*110*(1-fee) - 100
	wantIncome := 0.999*110*0.999 - 100
	assert.InDelta(t, wantIncome, got.Income, 1e-6)
	assert.InDelta(t, 1*0.999, got.GoodsIn, 1e-9)
	assert.InDelta(t, 0.999, got.GoodsOut, 1e-9)

	// 预算按比例递增
	st, err := f.settingsRepo.FindById(ctx, f.st.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100+wantIncome*0.5, st.Deposit, 1e-6)
}

func TestReconcile_ClosureIdempotent(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	round := f.seedRound(t, models.RoundActive)
	f.seedOrder(t, models.Order{
		Ref: "x:900", RoundID: round.ID, Type: models.OrderTypeBuy,
		Status: models.OrderStatusDone, StartAmount: 1, Amount: 0, Rate: 100,
	})
	f.paper.SetBalance("LTC", 10)
	res, err := f.paper.PlaceOrder(ctx, testPair.Symbol, exchange.SideSell, 110, 0.999)
	require.NoError(t, err)
	f.paper.SetOrderState(res.OrderID, exchange.StateDone, 0)
	f.seedOrder(t, models.Order{
		Ref: fmt.Sprintf("x:%d", res.OrderID), RoundID: round.ID, Type: models.OrderTypeSell,
		Status: models.OrderStatusChecking, StartAmount: 0.999, Amount: 0.999, Rate: 110,
	})

	snap := f.snapshot(100, nil, 0, 0)
	require.NoError(t, f.svc.Reconcile(ctx, f.paper, snap, f.st))

	st, err := f.settingsRepo.FindById(ctx, f.st.ID)
	require.NoError(t, err)
	depositAfterClose := st.Deposit

	// 重复巡检不会再次结算或递增预算
	require.NoError(t, f.svc.Reconcile(ctx, f.paper, snap, f.st))

	st, err = f.settingsRepo.FindById(ctx, f.st.ID)
	require.NoError(t, err)
	assert.Equal(t, depositAfterClose, st.Deposit)

	var count int64
	require.NoError(t, f.db.Model(&models.Round{}).
		Where("settings_id = ? AND reason = ?", f.st.ID, models.RoundDone).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestReconcile_LateBuyFillCarriesOver(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	round := f.seedRound(t, models.RoundActive)

	f.paper.SetBalance("USDT", 1000)
	f.paper.SetBalance("LTC", 10)
	buyRes, err := f.paper.PlaceOrder(ctx, testPair.Symbol, exchange.SideBuy, 95, 1)
	require.NoError(t, err)
	sellRes, err := f.paper.PlaceOrder(ctx, testPair.Symbol, exchange.SideSell, 110, 0.5)
	require.NoError(t, err)
	// 卖单与迟到的买单在同一巡检间隔内都成交了
	f.paper.SetOrderState(buyRes.OrderID, exchange.StateDone, 0)
	f.paper.SetOrderState(sellRes.OrderID, exchange.StateDone, 0)

	lateBuy := f.seedOrder(t, models.Order{
		Ref: fmt.Sprintf("x:%d", buyRes.OrderID), RoundID: round.ID, Type: models.OrderTypeBuy,
		Status: models.OrderStatusChecking, StartAmount: 1, Amount: 1, Rate: 95,
	})
	f.seedOrder(t, models.Order{
		Ref: fmt.Sprintf("x:%d", sellRes.OrderID), RoundID: round.ID, Type: models.OrderTypeSell,
		Status: models.OrderStatusChecking, StartAmount: 0.5, Amount: 0.5, Rate: 110,
	})

	// 余额充足，结算后立刻开出下一回合
	snap := f.snapshot(100, nil, 100, 0)
	require.NoError(t, f.svc.Reconcile(ctx, f.paper, snap, f.st))

	got, err := f.roundRepo.FindById(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundDone, got.Reason)

	newRound, err := f.roundRepo.FindActiveBySettingsID(ctx, f.st.ID)
	require.NoError(t, err)
	require.NotNil(t, newRound)

	// 迟到成交的买单改挂到新回合，打上交接标记
	carried, err := f.orderRepo.FindById(ctx, lateBuy.ID)
	require.NoError(t, err)
	assert.Equal(t, newRound.ID, carried.RoundID)
	assert.Equal(t, models.OrderStatusDone, carried.Status)
	assert.True(t, carried.Carried)

	// 交接订单不参与新回合的任何成交聚合
	allGain, err := f.orderRepo.BuyGain(ctx, newRound.ID)
	require.NoError(t, err)
	assert.Less(t, allGain, epsilon)

	gain, _, err := f.orderRepo.SettlementBuyStats(ctx, newRound.ID)
	require.NoError(t, err)
	assert.Less(t, gain, epsilon)

	// 买入 1 扣费得 0.999，卖出 0.5，剩余 0.499 按成本价只记在归档存货一处
	archive, err := f.roundRepo.FindArchiveBySettingsID(ctx, f.st.ID)
	require.NoError(t, err)
	require.NotNil(t, archive)
	assert.InDelta(t, 0.499, archive.GoodsIn-archive.GoodsOut, 1e-9)
	assert.InDelta(t, 0.499*95, archive.CurrencyIn, 1e-6)
}

func TestReconcile_MaintainSell(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	round := f.seedRound(t, models.RoundActive)
	f.seedOrder(t, models.Order{
		Ref: "x:900", RoundID: round.ID, Type: models.OrderTypeBuy,
		Status: models.OrderStatusDone, StartAmount: 1, Amount: 0, Rate: 100,
	})
	f.paper.SetBalance("LTC", 1)

	// 理论卖价约 101.30，盘口上调到高于它的最近一档
	asks := []exchange.DepthLevel{{Rate: 101, Amount: 5}, {Rate: 102.5, Amount: 5}}
	snap := f.snapshot(101, asks, 0, 0.999)
	require.NoError(t, f.svc.Reconcile(ctx, f.paper, snap, f.st))

	cur, err := f.orderRepo.FindCurrentSell(ctx, round.ID)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, models.OrderStatusActive, cur.Status)
	assert.InDelta(t, 102.5, cur.Rate, 1e-9)
	assert.InDelta(t, 0.999, cur.StartAmount, 1e-9)
	assert.Contains(t, cur.Ref, "x:")

	// 回合保持进行中
	active, err := f.roundRepo.FindActiveBySettingsID(ctx, f.st.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, round.ID, active.ID)
}

func TestReconcile_SellRateWithoutHigherAsk(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	round := f.seedRound(t, models.RoundActive)
	f.seedOrder(t, models.Order{
		Ref: "x:900", RoundID: round.ID, Type: models.OrderTypeBuy,
		Status: models.OrderStatusDone, StartAmount: 1, Amount: 0, Rate: 100,
	})
	f.paper.SetBalance("LTC", 1)

	// 盘口里没有高于理论价的卖单，按理论价挂出
	asks := []exchange.DepthLevel{{Rate: 100, Amount: 5}}
	snap := f.snapshot(100, asks, 0, 0.999)
	require.NoError(t, f.svc.Reconcile(ctx, f.paper, snap, f.st))

	cur, err := f.orderRepo.FindCurrentSell(ctx, round.ID)
	require.NoError(t, err)
	require.NotNil(t, cur)

	theoretical := 100 / 0.999 / 0.999 / 0.999 * 1.01
	assert.InDelta(t, theoretical, cur.Rate, 0.01)
}

func TestReconcile_InstantSellFillClosesRound(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	round := f.seedRound(t, models.RoundActive)
	f.seedOrder(t, models.Order{
		Ref: "x:900", RoundID: round.ID, Type: models.OrderTypeBuy,
		Status: models.OrderStatusDone, StartAmount: 1, Amount: 0, Rate: 100,
	})
	f.paper.SetBalance("LTC", 1)

	// 买盘价格高过目标卖价，卖单在下单瞬间被完全吃掉
	f.paper.SetDepth(testPair.Symbol, &exchange.Depth{
		Bids: []exchange.DepthLevel{{Rate: 103, Amount: 5}},
	})

	snap := f.snapshot(101, nil, 0, 0.999)
	require.NoError(t, f.svc.Reconcile(ctx, f.paper, snap, f.st))

	got, err := f.roundRepo.FindById(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundDone, got.Reason)
	assert.Greater(t, got.Income, 0.0)

	// 即时成交的卖单没有交易所订单号，引用为本地合成
	cur, err := f.orderRepo.FindRecentBySettingsID(ctx, f.st.ID, 10)
	require.NoError(t, err)
	var sell *models.Order
	for i := range cur {
		if cur[i].Type == models.OrderTypeSell {
			sell = &cur[i]
		}
	}
	require.NotNil(t, sell)
	assert.Contains(t, sell.Ref, "s:")
	assert.Equal(t, models.OrderStatusDone, sell.Status)
}

func TestReconcile_CancelRaceFullFillClosesRound(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	round := f.seedRound(t, models.RoundActive)
	f.seedOrder(t, models.Order{
		Ref: "x:900", RoundID: round.ID, Type: models.OrderTypeBuy,
		Status: models.OrderStatusDone, StartAmount: 1, Amount: 0, Rate: 100,
	})

	// 在售卖单价格已偏离目标需要撤单重挂，
	// 但撤单时发现交易所侧已经完全成交
	f.paper.SetBalance("LTC", 1)
	res, err := f.paper.PlaceOrder(ctx, testPair.Symbol, exchange.SideSell, 200, 0.999)
	require.NoError(t, err)
	f.paper.SetOrderState(res.OrderID, exchange.StateDone, 0)
	f.seedOrder(t, models.Order{
		Ref: fmt.Sprintf("x:%d", res.OrderID), RoundID: round.ID, Type: models.OrderTypeSell,
		Status: models.OrderStatusActive, StartAmount: 0.999, Amount: 0.999, Rate: 200,
	})

	// 成交发现于卖单维护而非状态核实，回合必须当场结算，
	// 终态订单等不到下一轮的批量待核实
	snap := f.snapshot(100, nil, 0, 0)
	require.NoError(t, f.svc.Reconcile(ctx, f.paper, snap, f.st))

	got, err := f.roundRepo.FindById(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundDone, got.Reason)
	wantIncome := 0.999*200*0.999 - 100
	assert.InDelta(t, wantIncome, got.Income, 1e-6)

	st, err := f.settingsRepo.FindById(ctx, f.st.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100+wantIncome*0.5, st.Deposit, 1e-6)

	// 重复巡检保持终态，不会再次结算
	require.NoError(t, f.svc.Reconcile(ctx, f.paper, snap, f.st))
	var count int64
	require.NoError(t, f.db.Model(&models.Round{}).
		Where("settings_id = ? AND reason = ?", f.st.ID, models.RoundDone).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestReconcile_StaleRoundAborted(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	round := f.seedRound(t, models.RoundActive)

	f.paper.SetBalance("USDT", 1000)
	res, err := f.paper.PlaceOrder(ctx, testPair.Symbol, exchange.SideBuy, 95, 0.5)
	require.NoError(t, err)
	buy := f.seedOrder(t, models.Order{
		Ref: fmt.Sprintf("x:%d", res.OrderID), RoundID: round.ID, Type: models.OrderTypeBuy,
		Status: models.OrderStatusActive, StartAmount: 0.5, Amount: 0.5, Rate: 95,
	})

	// 一单未成，市价已经超出最高买价的 (1 + 2*first_step)
	snap := f.snapshot(105, nil, 0, 0)
	require.NoError(t, f.svc.Reconcile(ctx, f.paper, snap, f.st))

	got, err := f.roundRepo.FindById(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundDone, got.Reason)
	assert.Zero(t, got.Income)

	// 遗留买单被清扫：撤单并挂到归档回合
	archive, err := f.roundRepo.FindArchiveBySettingsID(ctx, f.st.ID)
	require.NoError(t, err)
	require.NotNil(t, archive)

	gotBuy, err := f.orderRepo.FindById(ctx, buy.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCanceled, gotBuy.Status)
	assert.Equal(t, archive.ID, gotBuy.RoundID)
}

func TestReconcile_NotStaleBelowThreshold(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	round := f.seedRound(t, models.RoundActive)
	f.paper.SetBalance("USDT", 1000)
	res, err := f.paper.PlaceOrder(ctx, testPair.Symbol, exchange.SideBuy, 95, 0.5)
	require.NoError(t, err)
	f.seedOrder(t, models.Order{
		Ref: fmt.Sprintf("x:%d", res.OrderID), RoundID: round.ID, Type: models.OrderTypeBuy,
		Status: models.OrderStatusActive, StartAmount: 0.5, Amount: 0.5, Rate: 95,
	})

	// 阈值是 95*1.1=104.5，市价 104 还差一点
	snap := f.snapshot(104, nil, 0, 0)
	require.NoError(t, f.svc.Reconcile(ctx, f.paper, snap, f.st))

	got, err := f.roundRepo.FindById(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundActive, got.Reason)
}

func TestAdjustSellRate(t *testing.T) {
	asks := []exchange.DepthLevel{
		{Rate: 100, Amount: 1},
		{Rate: 101, Amount: 1},
		{Rate: 103, Amount: 1},
	}

	// 上调到高于目标价的最近一档
	assert.Equal(t, 101.0, adjustSellRate(100.5, asks))
	assert.Equal(t, 103.0, adjustSellRate(101.5, asks))

	// 等于目标价的档位不算更高
	assert.Equal(t, 103.0, adjustSellRate(101, asks))

	// 没有更高的卖单时保持理论价
	assert.Equal(t, 105.0, adjustSellRate(105, asks))
	assert.Equal(t, 99.0, adjustSellRate(99, nil))
}

func TestOrderStatusFromState(t *testing.T) {
	assert.Equal(t, models.OrderStatusActive, orderStatusFromState(exchange.StateActive))
	assert.Equal(t, models.OrderStatusDone, orderStatusFromState(exchange.StateDone))
	assert.Equal(t, models.OrderStatusCanceled, orderStatusFromState(exchange.StateCanceled))
	assert.Equal(t, models.OrderStatusCanceledPartial, orderStatusFromState(exchange.StateCanceledPartial))
}
