package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dushixiang/ladder/internal/config"
	"github.com/dushixiang/ladder/internal/models"
	"github.com/dushixiang/ladder/internal/repo"
	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const transactionSyncLimit = 500

// SnapshotService 观测性落库任务：行情快照、余额快照、交易所账本同步。
// 由 cron 周期触发，失败只记日志，下个周期重来。
type SnapshotService struct {
	logger *zap.Logger
	conf   config.TradingConf

	market *MarketService

	settingsRepo    *repo.SettingsRepo
	credentialRepo  *repo.CredentialRepo
	rateRepo        *repo.RateSnapshotRepo
	balanceRepo     *repo.BalanceSnapshotRepo
	transactionRepo *repo.TransactionRepo

	cron *cron.Cron
}

// NewSnapshotService 创建快照服务
func NewSnapshotService(db *gorm.DB, conf *config.Config, market *MarketService, logger *zap.Logger) *SnapshotService {
	return &SnapshotService{
		logger:          logger,
		conf:            conf.Trading,
		market:          market,
		settingsRepo:    repo.NewSettingsRepo(db),
		credentialRepo:  repo.NewCredentialRepo(db),
		rateRepo:        repo.NewRateSnapshotRepo(db),
		balanceRepo:     repo.NewBalanceSnapshotRepo(db),
		transactionRepo: repo.NewTransactionRepo(db),
	}
}

// Start 启动定时任务
func (s *SnapshotService) Start() error {
	spec := s.conf.SnapshotCron
	if spec == "" {
		spec = "@every 5m"
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.TakeSnapshots(ctx); err != nil {
			s.logger.Error("snapshot job failed", zap.Error(err))
		}
		if err := s.SyncTransactions(ctx); err != nil {
			s.logger.Error("transaction sync failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("snapshot jobs scheduled", zap.String("cron", spec))
	return nil
}

// Stop 停止定时任务
func (s *SnapshotService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// TakeSnapshots 落一次行情与余额快照
func (s *SnapshotService) TakeSnapshots(ctx context.Context) error {
	settings, err := s.settingsRepo.FindEnabled(ctx)
	if err != nil {
		return err
	}
	creds, err := s.credentialRepo.FindEnabled(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	public := s.market.PublicClient()

	seen := make(map[string]struct{})
	for _, st := range settings {
		symbol := st.Symbol()
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}

		ticker, err := public.Ticker(ctx, symbol)
		if err != nil {
			s.logger.Warn("failed to snapshot ticker", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		row := &models.RateSnapshot{
			ID:         ulid.Make().String(),
			Symbol:     symbol,
			Last:       ticker.Last,
			Buy:        ticker.Buy,
			Sell:       ticker.Sell,
			RecordedAt: now,
		}
		if err := s.rateRepo.Create(ctx, row); err != nil {
			return err
		}
	}

	for _, cred := range creds {
		funds, err := s.market.ClientFor(cred).Balances(ctx)
		if err != nil {
			s.logger.Warn("failed to snapshot balances", zap.String("credential_id", cred.ID), zap.Error(err))
			continue
		}
		for asset, amount := range funds {
			if amount <= 0 {
				continue
			}
			row := &models.BalanceSnapshot{
				ID:           ulid.Make().String(),
				CredentialID: cred.ID,
				Currency:     asset,
				Amount:       amount,
				RecordedAt:   now,
			}
			if err := s.balanceRepo.Create(ctx, row); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecentRates 指定交易对最近的行情快照
func (s *SnapshotService) RecentRates(ctx context.Context, symbol string, limit int) ([]models.RateSnapshot, error) {
	if limit <= 0 || limit > 1000 {
		limit = 288
	}
	return s.rateRepo.FindRecentBySymbol(ctx, symbol, limit)
}

// RecentBalances 指定凭据最近的余额快照
func (s *SnapshotService) RecentBalances(ctx context.Context, credentialID string, limit int) ([]models.BalanceSnapshot, error) {
	if limit <= 0 || limit > 1000 {
		limit = 288
	}
	return s.balanceRepo.FindRecentByCredentialID(ctx, credentialID, limit)
}

// SyncTransactions 同步交易所账本到本地镜像，按 ID 去重，只追加。
// 还没有任何历史记录是正常情况，不算错误。
func (s *SnapshotService) SyncTransactions(ctx context.Context) error {
	settings, err := s.settingsRepo.FindEnabled(ctx)
	if err != nil {
		return err
	}
	creds, err := s.credentialRepo.FindEnabled(ctx)
	if err != nil {
		return err
	}
	credMap := make(map[string]models.Credential, len(creds))
	for _, c := range creds {
		credMap[c.ID] = c
	}

	for _, st := range settings {
		cred, ok := credMap[st.CredentialID]
		if !ok {
			continue
		}
		sinceID, err := s.transactionRepo.LastID(ctx, cred.ID)
		if err != nil {
			return err
		}
		entries, err := s.market.ClientFor(cred).TransactionHistory(ctx, st.Symbol(), sinceID, transactionSyncLimit)
		if err != nil {
			s.logger.Warn("failed to fetch transaction history",
				zap.String("symbol", st.Symbol()), zap.Error(err))
			continue
		}
		if len(entries) == 0 {
			continue
		}

		rows := make([]models.Transaction, 0, len(entries))
		for _, e := range entries {
			raw, err := json.Marshal(e)
			if err != nil {
				return err
			}
			rows = append(rows, models.Transaction{
				ID:           e.ID,
				CredentialID: cred.ID,
				Type:         e.Type,
				Amount:       e.Amount,
				Currency:     e.Currency,
				Description:  e.Description,
				Status:       e.Status,
				Timestamp:    e.Timestamp,
				Raw:          raw,
			})
		}
		if err := s.transactionRepo.InsertDedup(ctx, rows); err != nil {
			return err
		}
		s.logger.Debug("transactions synced",
			zap.String("symbol", st.Symbol()),
			zap.Int("count", len(rows)))
	}
	return nil
}
