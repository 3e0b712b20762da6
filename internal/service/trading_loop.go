package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dushixiang/ladder/internal/config"
	"github.com/dushixiang/ladder/internal/models"
	"github.com/dushixiang/ladder/internal/repo"
	"github.com/dushixiang/ladder/pkg/exchange"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TradingLoop 巡检循环调度器。
// 单协程、同步轮询：一轮采集市场快照，批量把挂单置为待核实，
// 然后逐个策略串行调用回合协调器。一轮超时则立即开始下一轮，否则睡满周期。
// 任何一步出错都放弃本轮，按错误类别退避后整轮重来，永不中途续跑。
type TradingLoop struct {
	logger *zap.Logger
	conf   config.TradingConf

	market     *MarketService
	reconciler *ReconcilerService
	notify     *NotifyService

	settingsRepo   *repo.SettingsRepo
	credentialRepo *repo.CredentialRepo
	orderRepo      *repo.OrderRepo

	startTime time.Time
	iteration int
	isRunning bool
	stopChan  chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	bo        *backoff.Backoff
}

// NewTradingLoop 创建巡检循环
func NewTradingLoop(
	db *gorm.DB,
	conf *config.Config,
	market *MarketService,
	reconciler *ReconcilerService,
	notify *NotifyService,
	logger *zap.Logger,
) *TradingLoop {
	return &TradingLoop{
		logger:         logger,
		conf:           conf.Trading,
		market:         market,
		reconciler:     reconciler,
		notify:         notify,
		settingsRepo:   repo.NewSettingsRepo(db),
		credentialRepo: repo.NewCredentialRepo(db),
		orderRepo:      repo.NewOrderRepo(db),
		stopChan:       make(chan struct{}),
		bo: &backoff.Backoff{
			Min:    2 * time.Second,
			Max:    2 * time.Minute,
			Factor: 2,
			Jitter: true,
		},
	}
}

// Start 启动巡检循环，阻塞直到 Stop 或 ctx 取消
func (t *TradingLoop) Start(ctx context.Context) error {
	if t.isRunning {
		return fmt.Errorf("trading loop is already running")
	}
	t.isRunning = true
	t.startTime = time.Now()
	t.ctx, t.cancel = context.WithCancel(ctx)

	interval := time.Duration(t.conf.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}

	t.logger.Info("trading loop started", zap.Duration("interval", interval))

	for {
		select {
		case <-t.stopChan:
			t.logger.Info("trading loop stopped by user")
			return nil
		case <-t.ctx.Done():
			t.logger.Info("trading loop stopped by context")
			return t.ctx.Err()
		default:
		}

		passStart := time.Now()
		if err := t.ExecutePass(t.ctx); err != nil {
			t.logger.Error("pass failed", zap.Int("iteration", t.iteration), zap.Error(err))
			t.notify.CycleError(err)
			t.sleep(t.backoffFor(err))
			continue
		}
		t.bo.Reset()

		if remain := interval - time.Since(passStart); remain > 0 {
			t.sleep(remain)
		}
	}
}

// Stop 停止巡检循环
func (t *TradingLoop) Stop() {
	if !t.isRunning {
		return
	}
	t.logger.Info("stopping trading loop...")
	if t.cancel != nil {
		t.cancel()
	}
	t.isRunning = false
	close(t.stopChan)
	t.logger.Info("trading loop stopped")
}

// ExecutePass 执行一轮完整巡检
func (t *TradingLoop) ExecutePass(ctx context.Context) error {
	t.iteration++

	settings, err := t.settingsRepo.FindEnabled(ctx)
	if err != nil {
		return fmt.Errorf("load enabled settings: %w", err)
	}
	if len(settings) == 0 {
		return nil
	}
	creds, err := t.credentialRepo.FindEnabled(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	credMap := make(map[string]models.Credential, len(creds))
	for _, c := range creds {
		credMap[c.ID] = c
	}

	// 市场快照必须先于所有策略的协调采集完毕，巡检过程中只读
	snap, err := t.market.Collect(ctx, settings, creds)
	if err != nil {
		return fmt.Errorf("collect market snapshot: %w", err)
	}

	// 批量把挂单置为待核实，一次完成；只限本轮要巡检的策略，
	// 停用策略的挂单保持原状，不会困在过渡状态里
	settingsIDs := make([]string, 0, len(settings))
	for _, st := range settings {
		settingsIDs = append(settingsIDs, st.ID)
	}
	if err := t.orderRepo.MarkActiveChecking(ctx, settingsIDs); err != nil {
		return fmt.Errorf("mark active orders checking: %w", err)
	}

	for _, st := range settings {
		cred, ok := credMap[st.CredentialID]
		if !ok {
			t.logger.Warn("settings references missing credential, skipped",
				zap.String("settings_id", st.ID),
				zap.String("credential_id", st.CredentialID))
			continue
		}
		client := t.market.ClientFor(cred)
		if err := t.reconciler.Reconcile(ctx, client, snap, st); err != nil {
			return fmt.Errorf("reconcile %s: %w", st.Symbol(), err)
		}
	}

	t.logger.Debug("pass completed",
		zap.Int("iteration", t.iteration),
		zap.Int("settings", len(settings)))
	return nil
}

// backoffFor 按错误类别确定退避时长：
// 交易所应用层错误退避最久，网络抖动次之，其余（数据库等）用基础时长。
func (t *TradingLoop) backoffFor(err error) time.Duration {
	d := t.bo.Duration()
	switch {
	case exchange.IsAppError(err):
		d *= 3
	case exchange.IsRetryable(err):
		d *= 2
	}
	if d > t.bo.Max {
		d = t.bo.Max
	}
	return d
}

// sleep 可中断睡眠，返回 false 表示循环应当退出
func (t *TradingLoop) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-t.stopChan:
		return false
	case <-t.ctx.Done():
		return false
	}
}

// IsRunning 检查是否正在运行
func (t *TradingLoop) IsRunning() bool {
	return t.isRunning
}

// GetStatus 获取状态信息
func (t *TradingLoop) GetStatus() map[string]interface{} {
	return map[string]interface{}{
		"is_running":       t.isRunning,
		"iteration":        t.iteration,
		"start_time":       t.startTime,
		"elapsed_hours":    time.Since(t.startTime).Hours(),
		"interval_seconds": t.conf.IntervalSeconds,
	}
}
