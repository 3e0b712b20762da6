package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPaper(t *testing.T) *PaperExchange {
	p := NewPaperExchange(zap.NewNop())
	p.SetPair(PairInfo{
		Symbol:          "LTCBTC",
		Goods:           "LTC",
		Currency:        "BTC",
		PricePrecision:  6,
		AmountPrecision: 4,
		MinAmount:       0.01,
	})
	p.SetTicker(&Ticker{Symbol: "LTCBTC", Last: 0.0015})
	p.SetBalance("BTC", 1)
	p.SetBalance("LTC", 10)
	return p
}

func TestPaperExchange_PlaceOrderRests(t *testing.T) {
	p := newTestPaper(t)
	ctx := context.Background()

	// 盘口为空，买单全额挂出
	res, err := p.PlaceOrder(ctx, "LTCBTC", SideBuy, 0.0014, 2)
	require.NoError(t, err)
	assert.NotZero(t, res.OrderID)
	assert.Zero(t, res.Received)
	assert.Equal(t, 2.0, res.Remains)

	active, err := p.ActiveOrders(ctx, "LTCBTC")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, res.OrderID, active[0].ID)
	assert.Equal(t, SideBuy, active[0].Side)
}

func TestPaperExchange_InstantFill(t *testing.T) {
	p := newTestPaper(t)
	ctx := context.Background()

	p.SetDepth("LTCBTC", &Depth{
		Asks: []DepthLevel{
			{Rate: 0.0014, Amount: 5},
		},
	})

	// 委托价够到卖盘，整单立即成交，交易所侧不留挂单
	res, err := p.PlaceOrder(ctx, "LTCBTC", SideBuy, 0.0015, 2)
	require.NoError(t, err)
	assert.Zero(t, res.OrderID)
	assert.Equal(t, 2.0, res.Received)
	assert.Zero(t, res.Remains)

	active, err := p.ActiveOrders(ctx, "LTCBTC")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestPaperExchange_PartialFill(t *testing.T) {
	p := newTestPaper(t)
	ctx := context.Background()

	p.SetDepth("LTCBTC", &Depth{
		Asks: []DepthLevel{
			{Rate: 0.0014, Amount: 1},
			{Rate: 0.0016, Amount: 5}, // 高于委托价，不吃
		},
	})

	res, err := p.PlaceOrder(ctx, "LTCBTC", SideBuy, 0.0015, 3)
	require.NoError(t, err)
	assert.NotZero(t, res.OrderID)
	assert.Equal(t, 1.0, res.Received)
	assert.Equal(t, 2.0, res.Remains)

	info, err := p.OrderInfo(ctx, "LTCBTC", res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StateActive, info.State)
	assert.Equal(t, 3.0, info.StartAmount)
	assert.Equal(t, 2.0, info.Amount)
}

func TestPaperExchange_CancelOrder(t *testing.T) {
	p := newTestPaper(t)
	ctx := context.Background()

	res, err := p.PlaceOrder(ctx, "LTCBTC", SideBuy, 0.0014, 2)
	require.NoError(t, err)

	_, err = p.CancelOrder(ctx, "LTCBTC", res.OrderID)
	require.NoError(t, err)

	info, err := p.OrderInfo(ctx, "LTCBTC", res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StateCanceled, info.State)

	// 未成交部分解冻回余额
	funds, err := p.Balances(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, funds["BTC"], 1e-9)

	// 重复撤单报业务错误
	_, err = p.CancelOrder(ctx, "LTCBTC", res.OrderID)
	assert.True(t, IsAppError(err))
}

func TestPaperExchange_CancelPartiallyFilled(t *testing.T) {
	p := newTestPaper(t)
	ctx := context.Background()

	p.SetDepth("LTCBTC", &Depth{
		Asks: []DepthLevel{{Rate: 0.0014, Amount: 1}},
	})

	res, err := p.PlaceOrder(ctx, "LTCBTC", SideBuy, 0.0015, 3)
	require.NoError(t, err)
	require.NotZero(t, res.OrderID)

	_, err = p.CancelOrder(ctx, "LTCBTC", res.OrderID)
	require.NoError(t, err)

	info, err := p.OrderInfo(ctx, "LTCBTC", res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StateCanceledPartial, info.State)
}

func TestPaperExchange_InsufficientFunds(t *testing.T) {
	p := newTestPaper(t)
	ctx := context.Background()

	_, err := p.PlaceOrder(ctx, "LTCBTC", SideBuy, 0.0015, 10000)
	assert.True(t, IsAppError(err))

	_, err = p.PlaceOrder(ctx, "LTCBTC", SideSell, 0.0015, 100)
	assert.True(t, IsAppError(err))
}

func TestPaperExchange_SellMatchesBids(t *testing.T) {
	p := newTestPaper(t)
	ctx := context.Background()

	p.SetDepth("LTCBTC", &Depth{
		Bids: []DepthLevel{
			{Rate: 0.0016, Amount: 3},
			{Rate: 0.0013, Amount: 5}, // 低于委托价，不吃
		},
	})

	res, err := p.PlaceOrder(ctx, "LTCBTC", SideSell, 0.0015, 5)
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.Received)
	assert.Equal(t, 2.0, res.Remains)
	assert.NotZero(t, res.OrderID)
}

func TestPaperExchange_TransactionHistory(t *testing.T) {
	p := newTestPaper(t)
	ctx := context.Background()

	p.AddLedgerEntry(LedgerEntry{ID: 1, Currency: "BTC", Amount: 0.1})
	p.AddLedgerEntry(LedgerEntry{ID: 2, Currency: "BTC", Amount: 0.2})
	p.AddLedgerEntry(LedgerEntry{ID: 3, Currency: "BTC", Amount: 0.3})

	entries, err := p.TransactionHistory(ctx, "BTC", 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].ID)
	assert.Equal(t, int64(3), entries[1].ID)
}
