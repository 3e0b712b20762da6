package exchange

import "time"

// 通用交易所类型定义，独立于任何特定交易所
// 这样可以方便地支持多个交易所（币安、OKX、Bybit等）

// Side 订单方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderState 交易所侧的订单状态
type OrderState string

const (
	StateActive          OrderState = "active"           // 挂单中（含部分成交）
	StateDone            OrderState = "done"             // 完全成交
	StateCanceled        OrderState = "canceled"         // 已取消
	StateCanceledPartial OrderState = "canceled_partial" // 部分成交后取消
)

// String 方法用于日志输出
func (s Side) String() string {
	return string(s)
}

func (s OrderState) String() string {
	return string(s)
}

// PairInfo 交易对元数据
type PairInfo struct {
	Symbol          string  `json:"symbol"`
	Goods           string  `json:"goods"`            // 标的货币（base）
	Currency        string  `json:"currency"`         // 计价货币（quote）
	PricePrecision  int     `json:"price_precision"`  // 价格小数位数
	AmountPrecision int     `json:"amount_precision"` // 数量小数位数
	MinPrice        float64 `json:"min_price"`
	MaxPrice        float64 `json:"max_price"`
	MinAmount       float64 `json:"min_amount"` // 最小可交易数量
	MinNotional     float64 `json:"min_notional"`
	Fee             float64 `json:"fee"` // 成交手续费率
}

// PriceUnit 一个价格精度单位（如精度2 -> 0.01）
func (p PairInfo) PriceUnit() float64 {
	unit := 1.0
	for i := 0; i < p.PricePrecision; i++ {
		unit /= 10
	}
	return unit
}

// Ticker 行情快照
type Ticker struct {
	Symbol  string    `json:"symbol"`
	High    float64   `json:"high"`
	Low     float64   `json:"low"`
	Avg     float64   `json:"avg"`
	Vol     float64   `json:"vol"`     // 计价货币成交量
	VolCur  float64   `json:"vol_cur"` // 标的货币成交量
	Last    float64   `json:"last"`
	Buy     float64   `json:"buy"`
	Sell    float64   `json:"sell"`
	Updated time.Time `json:"updated"`
}

// DepthLevel 盘口档位
type DepthLevel struct {
	Rate   float64 `json:"rate"`
	Amount float64 `json:"amount"`
}

// Depth 盘口深度。Bids 按价格降序，Asks 按价格升序。
type Depth struct {
	Bids []DepthLevel `json:"bids"`
	Asks []DepthLevel `json:"asks"`
}

// OrderSnapshot 交易所侧的订单快照
type OrderSnapshot struct {
	ID          int64      `json:"id"`
	Symbol      string     `json:"symbol"`
	Side        Side       `json:"side"`
	Rate        float64    `json:"rate"`
	StartAmount float64    `json:"start_amount"` // 原始数量
	Amount      float64    `json:"amount"`       // 剩余数量
	State       OrderState `json:"state"`
	CreatedAt   time.Time  `json:"created_at"`
}

// PlaceResult 下单结果。
// OrderID 为 0 表示订单在下单瞬间被完全吃掉，交易所侧没有留下挂单，
// 此时需要由调用方合成本地订单号（见 OrderRef）。
type PlaceResult struct {
	OrderID  int64              `json:"order_id"`
	Received float64            `json:"received"` // 已成交数量
	Remains  float64            `json:"remains"`  // 剩余挂单数量
	Funds    map[string]float64 `json:"funds"`    // 下单后的余额
}

// CancelResult 撤单结果
type CancelResult struct {
	OrderID int64              `json:"order_id"`
	Funds   map[string]float64 `json:"funds"`
}

// LedgerEntry 交易所账本条目（成交结算、手续费等）
type LedgerEntry struct {
	ID          int64     `json:"id"`
	Type        int       `json:"type"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	Description string    `json:"description"` // 可能包含关联订单号
	Status      int       `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}
