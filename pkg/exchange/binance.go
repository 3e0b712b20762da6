package exchange

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/jpillora/backoff"
)

// BinanceClient Binance现货API客户端，实现 Client 接口
type BinanceClient struct {
	client *binance.Client

	pairInfoLock sync.RWMutex
	pairInfos    map[string]PairInfo
	pairsLoaded  time.Time
}

// 现货默认费率；策略计算使用 Settings 行里配置的费率，这里仅作元数据兜底
const defaultTradeFee = 0.001

// 交易对元数据缓存时长
const pairInfoTTL = time.Hour

// 网络错误的最大重试次数（仅限 TransportError，应用层错误不重试）
const maxTransportRetries = 3

// NewBinanceClient 创建Binance客户端
func NewBinanceClient(apiKey, secretKey, proxyURL string, testnet bool) *BinanceClient {
	var client *binance.Client
	if proxyURL != "" {
		client = binance.NewProxiedClient(apiKey, secretKey, proxyURL)
	} else {
		client = binance.NewClient(apiKey, secretKey)
	}

	if testnet {
		binance.UseTestnet = true
	}

	return &BinanceClient{
		client:    client,
		pairInfos: make(map[string]PairInfo),
	}
}

// classify 把底层错误归类为交易所应用层错误或网络层错误
func classify(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return &AppError{Op: op, Code: apiErr.Code, Message: apiErr.Message}
	}
	return &TransportError{Op: op, Err: err}
}

// withRetry 仅对网络层错误做有限次重试
func withRetry(ctx context.Context, op string, fn func() error) error {
	b := &backoff.Backoff{Min: 200 * time.Millisecond, Max: 2 * time.Second, Jitter: true}

	var err error
	for attempt := 0; attempt < maxTransportRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		err = classify(op, err)
		if !IsRetryable(err) {
			return err
		}
		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return &TransportError{Op: op, Err: ctx.Err()}
		}
	}
	return err
}

func parseAmount(op, field, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, &MalformedError{Op: op, Field: field, Err: err}
	}
	return f, nil
}

// stepPrecision "0.00100000" -> 3
func stepPrecision(step string) int {
	idx := strings.Index(step, ".")
	if idx < 0 {
		return 0
	}
	frac := strings.TrimRight(step[idx+1:], "0")
	return len(frac)
}

// PairInfos 获取全部交易对元数据（带缓存）
func (b *BinanceClient) PairInfos(ctx context.Context) (map[string]PairInfo, error) {
	b.pairInfoLock.RLock()
	if len(b.pairInfos) > 0 && time.Since(b.pairsLoaded) < pairInfoTTL {
		infos := b.pairInfos
		b.pairInfoLock.RUnlock()
		return infos, nil
	}
	b.pairInfoLock.RUnlock()

	var res *binance.ExchangeInfo
	err := withRetry(ctx, "exchange_info", func() (err error) {
		res, err = b.client.NewExchangeInfoService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	infos := make(map[string]PairInfo, len(res.Symbols))
	for i := range res.Symbols {
		s := &res.Symbols[i]
		info := PairInfo{
			Symbol:   s.Symbol,
			Goods:    s.BaseAsset,
			Currency: s.QuoteAsset,
			Fee:      defaultTradeFee,
		}
		if f := s.PriceFilter(); f != nil {
			minPrice, err := parseAmount("exchange_info", "minPrice", f.MinPrice)
			if err != nil {
				return nil, err
			}
			maxPrice, err := parseAmount("exchange_info", "maxPrice", f.MaxPrice)
			if err != nil {
				return nil, err
			}
			info.MinPrice = minPrice
			info.MaxPrice = maxPrice
			info.PricePrecision = stepPrecision(f.TickSize)
		}
		if f := s.LotSizeFilter(); f != nil {
			minQty, err := parseAmount("exchange_info", "minQty", f.MinQuantity)
			if err != nil {
				return nil, err
			}
			info.MinAmount = minQty
			info.AmountPrecision = stepPrecision(f.StepSize)
		}
		if f := s.NotionalFilter(); f != nil {
			minNotional, err := parseAmount("exchange_info", "minNotional", f.MinNotional)
			if err != nil {
				return nil, err
			}
			info.MinNotional = minNotional
		}
		infos[s.Symbol] = info
	}

	b.pairInfoLock.Lock()
	b.pairInfos = infos
	b.pairsLoaded = time.Now()
	b.pairInfoLock.Unlock()

	return infos, nil
}

// Ticker 获取24小时行情
func (b *BinanceClient) Ticker(ctx context.Context, symbol string) (*Ticker, error) {
	var stats []*binance.PriceChangeStats
	err := withRetry(ctx, "ticker", func() (err error) {
		stats, err = b.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, &MalformedError{Op: "ticker", Field: "stats", Err: errors.New("empty response")}
	}

	s := stats[0]
	t := &Ticker{Symbol: symbol, Updated: time.Unix(s.CloseTime/1000, 0)}

	var parseErr error
	parse := func(field, value string) float64 {
		if parseErr != nil {
			return 0
		}
		v, err := parseAmount("ticker", field, value)
		if err != nil {
			parseErr = err
		}
		return v
	}

	t.High = parse("highPrice", s.HighPrice)
	t.Low = parse("lowPrice", s.LowPrice)
	t.Avg = parse("weightedAvgPrice", s.WeightedAvgPrice)
	t.Vol = parse("quoteVolume", s.QuoteVolume)
	t.VolCur = parse("volume", s.Volume)
	t.Last = parse("lastPrice", s.LastPrice)
	t.Buy = parse("bidPrice", s.BidPrice)
	t.Sell = parse("askPrice", s.AskPrice)
	if parseErr != nil {
		return nil, parseErr
	}

	return t, nil
}

// Depth 获取盘口深度
func (b *BinanceClient) Depth(ctx context.Context, symbol string, limit int) (*Depth, error) {
	var res *binance.DepthResponse
	err := withRetry(ctx, "depth", func() (err error) {
		res, err = b.client.NewDepthService().Symbol(symbol).Limit(limit).Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	depth := &Depth{
		Bids: make([]DepthLevel, 0, len(res.Bids)),
		Asks: make([]DepthLevel, 0, len(res.Asks)),
	}
	for _, lvl := range res.Bids {
		rate, amount, err := lvl.Parse()
		if err != nil {
			return nil, &MalformedError{Op: "depth", Field: "bids", Err: err}
		}
		depth.Bids = append(depth.Bids, DepthLevel{Rate: rate, Amount: amount})
	}
	for _, lvl := range res.Asks {
		rate, amount, err := lvl.Parse()
		if err != nil {
			return nil, &MalformedError{Op: "depth", Field: "asks", Err: err}
		}
		depth.Asks = append(depth.Asks, DepthLevel{Rate: rate, Amount: amount})
	}

	return depth, nil
}

// Balances 获取全部可用余额
func (b *BinanceClient) Balances(ctx context.Context) (map[string]float64, error) {
	var account *binance.Account
	err := withRetry(ctx, "balances", func() (err error) {
		account, err = b.client.NewGetAccountService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	funds := make(map[string]float64, len(account.Balances))
	for _, bal := range account.Balances {
		free, err := parseAmount("balances", "free", bal.Free)
		if err != nil {
			return nil, err
		}
		funds[strings.ToUpper(bal.Asset)] = free
	}
	return funds, nil
}

func mapOrderState(status binance.OrderStatusType, executed float64) OrderState {
	switch status {
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePartiallyFilled:
		return StateActive
	case binance.OrderStatusTypeFilled:
		return StateDone
	default:
		// CANCELED / REJECTED / EXPIRED
		if executed > 0 {
			return StateCanceledPartial
		}
		return StateCanceled
	}
}

func mapSide(side binance.SideType) Side {
	if side == binance.SideTypeSell {
		return SideSell
	}
	return SideBuy
}

func (b *BinanceClient) toSnapshot(op string, o *binance.Order) (*OrderSnapshot, error) {
	rate, err := parseAmount(op, "price", o.Price)
	if err != nil {
		return nil, err
	}
	origQty, err := parseAmount(op, "origQty", o.OrigQuantity)
	if err != nil {
		return nil, err
	}
	executedQty, err := parseAmount(op, "executedQty", o.ExecutedQuantity)
	if err != nil {
		return nil, err
	}

	return &OrderSnapshot{
		ID:          o.OrderID,
		Symbol:      o.Symbol,
		Side:        mapSide(o.Side),
		Rate:        rate,
		StartAmount: origQty,
		Amount:      origQty - executedQty,
		State:       mapOrderState(o.Status, executedQty),
		CreatedAt:   time.Unix(o.Time/1000, 0),
	}, nil
}

// ActiveOrders 获取指定交易对的全部挂单
func (b *BinanceClient) ActiveOrders(ctx context.Context, symbol string) ([]OrderSnapshot, error) {
	var orders []*binance.Order
	err := withRetry(ctx, "active_orders", func() (err error) {
		orders, err = b.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := make([]OrderSnapshot, 0, len(orders))
	for _, o := range orders {
		snap, err := b.toSnapshot("active_orders", o)
		if err != nil {
			return nil, err
		}
		result = append(result, *snap)
	}
	return result, nil
}

// PlaceOrder 下限价单。下单不重试：网络错误时无法确定订单是否已被接受，
// 把错误交给上层整周期重试，由下一轮状态同步来对账。
func (b *BinanceClient) PlaceOrder(ctx context.Context, symbol string, side Side, rate, amount float64) (*PlaceResult, error) {
	binanceSide := binance.SideTypeBuy
	if side == SideSell {
		binanceSide = binance.SideTypeSell
	}

	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binanceSide).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(strconv.FormatFloat(amount, 'f', -1, 64)).
		Price(strconv.FormatFloat(rate, 'f', -1, 64)).
		Do(ctx)
	if err != nil {
		return nil, classify("place_order", err)
	}

	origQty, err := parseAmount("place_order", "origQty", res.OrigQuantity)
	if err != nil {
		return nil, err
	}
	executedQty, err := parseAmount("place_order", "executedQty", res.ExecutedQuantity)
	if err != nil {
		return nil, err
	}

	result := &PlaceResult{
		OrderID:  res.OrderID,
		Received: executedQty,
		Remains:  origQty - executedQty,
	}
	// 完全即时成交的订单交易所侧不再挂单，按约定返回 0 让调用方合成本地订单号
	if res.Status == binance.OrderStatusTypeFilled {
		result.OrderID = 0
	}
	return result, nil
}

// CancelOrder 撤单
func (b *BinanceClient) CancelOrder(ctx context.Context, symbol string, orderID int64) (*CancelResult, error) {
	_, err := b.client.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return nil, classify("cancel_order", err)
	}
	return &CancelResult{OrderID: orderID}, nil
}

// OrderInfo 查询订单快照
func (b *BinanceClient) OrderInfo(ctx context.Context, symbol string, orderID int64) (*OrderSnapshot, error) {
	var order *binance.Order
	err := withRetry(ctx, "order_info", func() (err error) {
		order, err = b.client.NewGetOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return b.toSnapshot("order_info", order)
}

// TransactionHistory 获取成交账本（按 ID 升序）
func (b *BinanceClient) TransactionHistory(ctx context.Context, symbol string, sinceID int64, limit int) ([]LedgerEntry, error) {
	var trades []*binance.TradeV3
	err := withRetry(ctx, "transaction_history", func() (err error) {
		svc := b.client.NewListTradesService().Symbol(symbol).Limit(limit)
		if sinceID > 0 {
			svc = svc.FromID(sinceID + 1)
		}
		trades, err = svc.Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	entries := make([]LedgerEntry, 0, len(trades))
	for _, t := range trades {
		qty, err := parseAmount("transaction_history", "qty", t.Quantity)
		if err != nil {
			return nil, err
		}
		entryType := 4 // 卖出结算
		if t.IsBuyer {
			entryType = 5 // 买入结算
		}
		entries = append(entries, LedgerEntry{
			ID:          t.ID,
			Type:        entryType,
			Amount:      qty,
			Currency:    t.Symbol,
			Description: "trade settlement :order:" + strconv.FormatInt(t.OrderID, 10) + ":",
			Status:      1,
			Timestamp:   time.Unix(t.Time/1000, 0),
		})
	}
	return entries, nil
}
