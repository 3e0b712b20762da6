package exchange

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PaperExchange 模拟交易所（纸面交易与测试用）。
// 维护一份内存余额、盘口与挂单簿：买单价格够到卖盘时即时吃单，
// 吃不完的部分留在挂单簿里，行为与真实交易所的限价单一致。
type PaperExchange struct {
	logger *zap.Logger

	mu       sync.RWMutex
	pairs    map[string]PairInfo
	tickers  map[string]*Ticker
	depths   map[string]*Depth
	balances map[string]float64
	orders   map[int64]*OrderSnapshot
	ledger   []LedgerEntry

	// 会话级单调订单号计数器，启动时用墙钟播种，避免重启后撞号
	orderSeq int64
}

// NewPaperExchange 创建模拟交易所
func NewPaperExchange(logger *zap.Logger) *PaperExchange {
	return &PaperExchange{
		logger:   logger,
		pairs:    make(map[string]PairInfo),
		tickers:  make(map[string]*Ticker),
		depths:   make(map[string]*Depth),
		balances: make(map[string]float64),
		orders:   make(map[int64]*OrderSnapshot),
		orderSeq: time.Now().Unix(),
	}
}

// SetPair 设置交易对元数据
func (p *PaperExchange) SetPair(info PairInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pairs[info.Symbol] = info
}

// SetTicker 设置行情
func (p *PaperExchange) SetTicker(t *Ticker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickers[t.Symbol] = t
}

// SetDepth 设置盘口（买单会立即吃 Asks 中价格不高于委托价的档位）
func (p *PaperExchange) SetDepth(symbol string, d *Depth) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.depths[symbol] = d
}

// SetBalance 设置余额
func (p *PaperExchange) SetBalance(currency string, amount float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[currency] = amount
}

// SetOrderState 直接改写挂单状态（测试里模拟交易所侧成交/撤单）
func (p *PaperExchange) SetOrderState(orderID int64, state OrderState, remaining float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if o, ok := p.orders[orderID]; ok {
		o.State = state
		o.Amount = remaining
	}
}

// PairInfos 获取全部交易对元数据
func (p *PaperExchange) PairInfos(ctx context.Context) (map[string]PairInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	infos := make(map[string]PairInfo, len(p.pairs))
	for k, v := range p.pairs {
		infos[k] = v
	}
	return infos, nil
}

// Ticker 获取行情
func (p *PaperExchange) Ticker(ctx context.Context, symbol string) (*Ticker, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tickers[symbol]
	if !ok {
		return nil, &AppError{Op: "ticker", Message: "unknown symbol " + symbol}
	}
	copied := *t
	return &copied, nil
}

// Depth 获取盘口
func (p *PaperExchange) Depth(ctx context.Context, symbol string, limit int) (*Depth, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	d, ok := p.depths[symbol]
	if !ok {
		return &Depth{}, nil
	}
	copied := &Depth{
		Bids: append([]DepthLevel(nil), d.Bids...),
		Asks: append([]DepthLevel(nil), d.Asks...),
	}
	if limit > 0 {
		if len(copied.Bids) > limit {
			copied.Bids = copied.Bids[:limit]
		}
		if len(copied.Asks) > limit {
			copied.Asks = copied.Asks[:limit]
		}
	}
	return copied, nil
}

// Balances 获取余额
func (p *PaperExchange) Balances(ctx context.Context) (map[string]float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fundsLocked(), nil
}

func (p *PaperExchange) fundsLocked() map[string]float64 {
	funds := make(map[string]float64, len(p.balances))
	for k, v := range p.balances {
		funds[k] = v
	}
	return funds
}

// ActiveOrders 获取挂单
func (p *PaperExchange) ActiveOrders(ctx context.Context, symbol string) ([]OrderSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make([]OrderSnapshot, 0)
	for _, o := range p.orders {
		if o.State == StateActive && (symbol == "" || o.Symbol == symbol) {
			result = append(result, *o)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// PlaceOrder 下限价单。与真实交易所一致：买单先吃掉价格不高于委托价的卖盘，
// 完全即时成交时返回 OrderID=0，部分成交的剩余部分挂单。
func (p *PaperExchange) PlaceOrder(ctx context.Context, symbol string, side Side, rate, amount float64) (*PlaceResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pair, ok := p.pairs[symbol]
	if !ok {
		return nil, &AppError{Op: "place_order", Message: "unknown symbol " + symbol}
	}
	goods, currency := pair.Goods, pair.Currency

	// 余额检查
	if side == SideBuy {
		if p.balances[currency] < rate*amount {
			return nil, &AppError{Op: "place_order", Message: "insufficient funds"}
		}
	} else {
		if p.balances[goods] < amount {
			return nil, &AppError{Op: "place_order", Message: "insufficient funds"}
		}
	}

	// 即时撮合
	received := 0.0
	remains := amount
	if d, ok := p.depths[symbol]; ok {
		if side == SideBuy {
			for i := range d.Asks {
				if d.Asks[i].Rate > rate || remains <= 0 {
					break
				}
				fill := min(remains, d.Asks[i].Amount)
				received += fill
				remains -= fill
			}
		} else {
			for i := range d.Bids {
				if d.Bids[i].Rate < rate || remains <= 0 {
					break
				}
				fill := min(remains, d.Bids[i].Amount)
				received += fill
				remains -= fill
			}
		}
	}

	// 余额变动：成交部分立刻结算，挂单部分冻结（简化为直接扣除）
	if side == SideBuy {
		p.balances[currency] -= rate * amount
		p.balances[goods] += received
	} else {
		p.balances[goods] -= amount
		p.balances[currency] += rate * received
	}

	result := &PlaceResult{Received: received, Remains: remains, Funds: p.fundsLocked()}

	if remains > 0 {
		p.orderSeq++
		id := p.orderSeq
		p.orders[id] = &OrderSnapshot{
			ID:          id,
			Symbol:      symbol,
			Side:        side,
			Rate:        rate,
			StartAmount: amount,
			Amount:      remains,
			State:       StateActive,
			CreatedAt:   time.Now(),
		}
		result.OrderID = id
	}

	p.logger.Debug("paper exchange: order placed",
		zap.String("symbol", symbol),
		zap.String("side", side.String()),
		zap.Float64("rate", rate),
		zap.Float64("amount", amount),
		zap.Float64("received", received),
		zap.Int64("order_id", result.OrderID))

	return result, nil
}

// CancelOrder 撤单，未成交部分解冻回余额
func (p *PaperExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) (*CancelResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return nil, &AppError{Op: "cancel_order", Message: "unknown order"}
	}
	if o.State != StateActive {
		return nil, &AppError{Op: "cancel_order", Message: "order not active"}
	}

	pair := p.pairs[o.Symbol]
	goods, currency := pair.Goods, pair.Currency
	if o.Side == SideBuy {
		p.balances[currency] += o.Rate * o.Amount
	} else {
		p.balances[goods] += o.Amount
	}

	if o.Amount < o.StartAmount {
		o.State = StateCanceledPartial
	} else {
		o.State = StateCanceled
	}

	return &CancelResult{OrderID: orderID, Funds: p.fundsLocked()}, nil
}

// OrderInfo 查询订单
func (p *PaperExchange) OrderInfo(ctx context.Context, symbol string, orderID int64) (*OrderSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	o, ok := p.orders[orderID]
	if !ok {
		return nil, &AppError{Op: "order_info", Message: "unknown order"}
	}
	copied := *o
	return &copied, nil
}

// AddLedgerEntry 追加账本条目（测试用）
func (p *PaperExchange) AddLedgerEntry(e LedgerEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ledger = append(p.ledger, e)
}

// TransactionHistory 获取账本历史
func (p *PaperExchange) TransactionHistory(ctx context.Context, symbol string, sinceID int64, limit int) ([]LedgerEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make([]LedgerEntry, 0)
	for _, e := range p.ledger {
		if e.ID > sinceID && (symbol == "" || e.Currency == symbol) {
			result = append(result, e)
		}
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

