//go:build wireinject
// +build wireinject

package internal

import (
	"net/http"
	"time"

	"github.com/dushixiang/ladder/pkg/exchange"
	"github.com/google/wire"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dushixiang/ladder/internal/config"
	"github.com/dushixiang/ladder/internal/handler"
	"github.com/dushixiang/ladder/internal/service"
	"github.com/dushixiang/ladder/internal/telegram"
)

const (
	telegramHTTPTimeout = 10 * time.Second
)

var (
	handlerSet = wire.NewSet(
		handler.NewTradingHandler,
		handler.NewSettingsHandler,
		handler.NewAuthHandler,
		handler.NewSetupHandler,
	)

	tradingSet = wire.NewSet(
		provideExchangeProvider,
		providePaperExchange,
		service.NewMarketService,
		service.NewNotifyService,
		service.NewReconcilerService,
		service.NewSnapshotService,
		service.NewTradingLoop,
		service.NewSettingsService,
		service.NewAuthService,
	)
)

// InitializeApp 初始化应用
func InitializeApp(logger *zap.Logger, db *gorm.DB, conf *config.Config) (*AppComponents, error) {
	wire.Build(
		handlerSet,
		tradingSet,
		provideTelegram,
		wire.Struct(new(AppComponents), "*"),
	)
	return nil, nil
}

// provideTelegram provides telegram instance
func provideTelegram(logger *zap.Logger, conf *config.Config) *telegram.Telegram {
	if !conf.Telegram.Enabled {
		return nil
	}

	httpClient := &http.Client{Timeout: telegramHTTPTimeout}

	tg, err := telegram.NewTelegram(logger, telegram.Settings{
		Token:  conf.Telegram.Token,
		Client: httpClient,
	})
	if err != nil {
		logger.Error("failed to init telegram", zap.Error(err))
		return nil
	}

	return tg
}

// provideExchangeProvider provides the per-credential exchange client cache
func provideExchangeProvider(conf *config.Config, logger *zap.Logger) *exchange.Provider {
	provider := exchange.NewProvider(
		conf.Binance.ProxyURL,
		conf.Binance.Testnet,
		logger,
	)

	logger.Info("exchange provider initialized",
		zap.Bool("testnet", conf.Binance.Testnet),
		zap.Bool("has_proxy", conf.Binance.ProxyURL != ""),
	)
	return provider
}

// providePaperExchange provides the in-memory paper exchange when paper mode
// is enabled, nil otherwise
func providePaperExchange(conf *config.Config, logger *zap.Logger) exchange.Client {
	if !conf.Trading.Paper {
		return nil
	}

	logger.Warn("paper trading mode enabled, all orders are simulated")
	return exchange.NewPaperExchange(logger)
}
