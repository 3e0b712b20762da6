package exchange

import "context"

// Client 交易所接口，每个端点一个方法，返回类型化结果。
// 所有调用都是阻塞的 HTTP 请求；网络错误在客户端内部有限次重试，
// 应用层错误直接上抛（见 errors.go 的错误分类）。
type Client interface {
	// 公开市场数据
	PairInfos(ctx context.Context) (map[string]PairInfo, error)
	Ticker(ctx context.Context, symbol string) (*Ticker, error)
	Depth(ctx context.Context, symbol string, limit int) (*Depth, error)

	// 账户
	Balances(ctx context.Context) (map[string]float64, error)
	ActiveOrders(ctx context.Context, symbol string) ([]OrderSnapshot, error)

	// 订单操作
	PlaceOrder(ctx context.Context, symbol string, side Side, rate, amount float64) (*PlaceResult, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*CancelResult, error)
	OrderInfo(ctx context.Context, symbol string, orderID int64) (*OrderSnapshot, error)

	// 账本历史（按 ID 升序，sinceID 之后的条目）
	TransactionHistory(ctx context.Context, symbol string, sinceID int64, limit int) ([]LedgerEntry, error)
}
