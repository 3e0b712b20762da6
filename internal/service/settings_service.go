package service

import (
	"context"
	"errors"

	"github.com/dushixiang/ladder/internal/models"
	"github.com/dushixiang/ladder/internal/repo"
	"github.com/dushixiang/ladder/internal/xe"
	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SettingsService 策略配置与交易所凭据的管理。
// 配置由操作员通过API修改，回合协调器只读（预算递增除外）。
type SettingsService struct {
	logger *zap.Logger

	*orz.Service

	settingsRepo   *repo.SettingsRepo
	credentialRepo *repo.CredentialRepo
	roundRepo      *repo.RoundRepo
	orderRepo      *repo.OrderRepo
}

// NewSettingsService 创建配置管理服务
func NewSettingsService(db *gorm.DB, logger *zap.Logger) *SettingsService {
	return &SettingsService{
		logger:         logger,
		Service:        orz.NewService(db),
		settingsRepo:   repo.NewSettingsRepo(db),
		credentialRepo: repo.NewCredentialRepo(db),
		roundRepo:      repo.NewRoundRepo(db),
		orderRepo:      repo.NewOrderRepo(db),
	}
}

// SettingsRequest 策略配置请求
type SettingsRequest struct {
	Goods        string  `json:"goods" validate:"required"`
	Currency     string  `json:"currency" validate:"required"`
	Profit       float64 `json:"profit" validate:"gt=0"`
	Fee          float64 `json:"fee" validate:"gte=0"`
	FirstStep    float64 `json:"first_step" validate:"gt=0"`
	Coverage     float64 `json:"coverage" validate:"gt=0"`
	Martingale   float64 `json:"martingale" validate:"gte=0"`
	Steps        int     `json:"steps" validate:"gte=2"`
	Deposit      float64 `json:"deposit" validate:"gt=0"`
	DepositInc   float64 `json:"deposit_inc" validate:"gte=0"`
	CredentialID string  `json:"credential_id" validate:"required"`
}

// ListSettings 全部策略配置
func (s *SettingsService) ListSettings(ctx context.Context) ([]models.Settings, error) {
	return s.settingsRepo.FindAll(ctx)
}

// GetSettings 查找单条策略配置
func (s *SettingsService) GetSettings(ctx context.Context, id string) (*models.Settings, error) {
	item, err := s.settingsRepo.FindById(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xe.ErrSettingsNotFound
		}
		return nil, err
	}
	return &item, nil
}

// CreateSettings 新建策略配置，默认停用，由操作员确认后启用
func (s *SettingsService) CreateSettings(ctx context.Context, req SettingsRequest) (*models.Settings, error) {
	if req.FirstStep > req.Coverage {
		return nil, xe.ErrInvalidParams
	}
	if _, err := s.credentialRepo.FindById(ctx, req.CredentialID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xe.ErrCredentialNotFound
		}
		return nil, err
	}

	item := &models.Settings{
		ID:           ulid.Make().String(),
		Goods:        req.Goods,
		Currency:     req.Currency,
		Profit:       req.Profit,
		Fee:          req.Fee,
		FirstStep:    req.FirstStep,
		Coverage:     req.Coverage,
		Martingale:   req.Martingale,
		Steps:        req.Steps,
		Deposit:      req.Deposit,
		DepositInc:   req.DepositInc,
		CredentialID: req.CredentialID,
		Enabled:      false,
	}
	if err := s.settingsRepo.Create(ctx, item); err != nil {
		return nil, err
	}
	s.logger.Info("settings created",
		zap.String("id", item.ID), zap.String("symbol", item.Symbol()))
	return item, nil
}

// UpdateSettings 修改策略配置。参数下一轮巡检起生效。
func (s *SettingsService) UpdateSettings(ctx context.Context, id string, req SettingsRequest) error {
	if req.FirstStep > req.Coverage {
		return xe.ErrInvalidParams
	}
	item, err := s.GetSettings(ctx, id)
	if err != nil {
		return err
	}

	item.Goods = req.Goods
	item.Currency = req.Currency
	item.Profit = req.Profit
	item.Fee = req.Fee
	item.FirstStep = req.FirstStep
	item.Coverage = req.Coverage
	item.Martingale = req.Martingale
	item.Steps = req.Steps
	item.Deposit = req.Deposit
	item.DepositInc = req.DepositInc
	item.CredentialID = req.CredentialID
	return s.settingsRepo.UpdateById(ctx, item)
}

// SetEnabled 启用或停用策略
func (s *SettingsService) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if _, err := s.GetSettings(ctx, id); err != nil {
		return err
	}
	return s.settingsRepo.UpdateEnabled(ctx, id, enabled)
}

// DeleteSettings 删除策略配置。仍有进行中回合时拒绝。
func (s *SettingsService) DeleteSettings(ctx context.Context, id string) error {
	if _, err := s.GetSettings(ctx, id); err != nil {
		return err
	}
	round, err := s.roundRepo.FindActiveBySettingsID(ctx, id)
	if err != nil {
		return err
	}
	if round != nil {
		return xe.ErrSettingsInUse
	}
	return s.settingsRepo.DeleteById(ctx, id)
}

// CredentialRequest 凭据请求
type CredentialRequest struct {
	Name   string `json:"name" validate:"required"`
	APIKey string `json:"api_key" validate:"required"`
	Secret string `json:"secret" validate:"required"`
}

// ListCredentials 全部凭据（密钥不外传）
func (s *SettingsService) ListCredentials(ctx context.Context) ([]models.Credential, error) {
	return s.credentialRepo.FindAll(ctx)
}

// CreateCredential 新建凭据
func (s *SettingsService) CreateCredential(ctx context.Context, req CredentialRequest) (*models.Credential, error) {
	item := &models.Credential{
		ID:      ulid.Make().String(),
		Name:    req.Name,
		APIKey:  req.APIKey,
		Secret:  req.Secret,
		Enabled: true,
	}
	if err := s.credentialRepo.Create(ctx, item); err != nil {
		return nil, err
	}
	s.logger.Info("credential created", zap.String("id", item.ID), zap.String("name", item.Name))
	return item, nil
}

// DeleteCredential 删除凭据。仍被策略引用时拒绝。
func (s *SettingsService) DeleteCredential(ctx context.Context, id string) error {
	if _, err := s.credentialRepo.FindById(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return xe.ErrCredentialNotFound
		}
		return err
	}
	settings, err := s.settingsRepo.FindAll(ctx)
	if err != nil {
		return err
	}
	for _, st := range settings {
		if st.CredentialID == id {
			return xe.ErrCredentialInUse
		}
	}
	return s.credentialRepo.DeleteById(ctx, id)
}

// RecentRounds 指定策略最近的回合
func (s *SettingsService) RecentRounds(ctx context.Context, settingsID string, limit int) ([]models.Round, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.roundRepo.FindRecentBySettingsID(ctx, settingsID, limit)
}

// RecentOrders 指定策略最近的订单
func (s *SettingsService) RecentOrders(ctx context.Context, settingsID string, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.orderRepo.FindRecentBySettingsID(ctx, settingsID, limit)
}
