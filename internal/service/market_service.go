package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dushixiang/ladder/internal/config"
	"github.com/dushixiang/ladder/internal/models"
	"github.com/dushixiang/ladder/pkg/exchange"
	"go.uber.org/zap"
)

// MarketSnapshot 一轮巡检开始时采集的市场数据快照。
// 巡检过程中只读，各策略共享同一份，避免同一轮内价格口径不一致。
type MarketSnapshot struct {
	Pairs    map[string]exchange.PairInfo
	Tickers  map[string]exchange.Ticker
	Depths   map[string]exchange.Depth
	Balances map[string]map[string]float64 // credentialID -> asset -> 可用余额
	TakenAt  time.Time
}

// Pair 查找交易对元数据
func (m *MarketSnapshot) Pair(symbol string) (exchange.PairInfo, bool) {
	p, ok := m.Pairs[symbol]
	return p, ok
}

// Ticker 查找交易对行情
func (m *MarketSnapshot) Ticker(symbol string) (exchange.Ticker, bool) {
	t, ok := m.Tickers[symbol]
	return t, ok
}

// Depth 查找交易对盘口
func (m *MarketSnapshot) Depth(symbol string) (exchange.Depth, bool) {
	d, ok := m.Depths[symbol]
	return d, ok
}

// Balance 查找指定凭据下某资产的可用余额
func (m *MarketSnapshot) Balance(credentialID, asset string) float64 {
	funds, ok := m.Balances[credentialID]
	if !ok {
		return 0
	}
	return funds[asset]
}

// MarketService 市场数据采集服务
type MarketService struct {
	logger   *zap.Logger
	conf     config.TradingConf
	provider *exchange.Provider
	paper    exchange.Client // 纸面交易模式下所有凭据共用的模拟交易所
}

// NewMarketService 创建市场数据服务
func NewMarketService(conf *config.Config, provider *exchange.Provider, paper exchange.Client, logger *zap.Logger) *MarketService {
	return &MarketService{
		logger:   logger,
		conf:     conf.Trading,
		provider: provider,
		paper:    paper,
	}
}

// PublicClient 公共行情客户端
func (s *MarketService) PublicClient() exchange.Client {
	if s.paper != nil {
		return s.paper
	}
	return s.provider.Public()
}

// ClientFor 指定凭据的交易客户端
func (s *MarketService) ClientFor(cred models.Credential) exchange.Client {
	if s.paper != nil {
		return s.paper
	}
	return s.provider.ClientFor(cred.ID, cred.APIKey, cred.Secret)
}

// Collect 采集本轮巡检所需的全部市场数据。
// 行情与盘口按启用策略涉及的交易对采集，余额按凭据采集。
func (s *MarketService) Collect(ctx context.Context, settings []models.Settings, creds []models.Credential) (*MarketSnapshot, error) {
	public := s.PublicClient()

	pairs, err := public.PairInfos(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect pair infos: %w", err)
	}

	snap := &MarketSnapshot{
		Pairs:    pairs,
		Tickers:  make(map[string]exchange.Ticker),
		Depths:   make(map[string]exchange.Depth),
		Balances: make(map[string]map[string]float64),
		TakenAt:  time.Now(),
	}

	depthLimit := s.conf.DepthLimit
	if depthLimit <= 0 {
		depthLimit = 50
	}

	seen := make(map[string]struct{})
	for _, st := range settings {
		symbol := st.Symbol()
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}

		ticker, err := public.Ticker(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("collect ticker %s: %w", symbol, err)
		}
		snap.Tickers[symbol] = *ticker

		depth, err := public.Depth(ctx, symbol, depthLimit)
		if err != nil {
			return nil, fmt.Errorf("collect depth %s: %w", symbol, err)
		}
		snap.Depths[symbol] = *depth
	}

	for _, cred := range creds {
		funds, err := s.ClientFor(cred).Balances(ctx)
		if err != nil {
			return nil, fmt.Errorf("collect balances for credential %s: %w", cred.ID, err)
		}
		snap.Balances[cred.ID] = funds
	}

	s.logger.Debug("market snapshot collected",
		zap.Int("symbols", len(snap.Tickers)),
		zap.Int("credentials", len(snap.Balances)))

	return snap, nil
}
