package service

import (
	"strconv"

	"github.com/dushixiang/ladder/internal/config"
	"github.com/dushixiang/ladder/internal/models"
	"github.com/dushixiang/ladder/internal/telegram"
	"github.com/valyala/fasttemplate"
	"go.uber.org/zap"
)

const (
	roundOpenedTpl = "📈 *{symbol}* 新回合开始\n买单 {rungs} 档，占用预算 {used} {currency}"
	roundClosedTpl = "✅ *{symbol}* 回合结算\n收益 {income} {currency}"
	sellPlacedTpl  = "💰 *{symbol}* 挂出卖单\n价格 {rate}，数量 {amount}"
	cycleErrorTpl  = "⚠️ 巡检出错：{error}"
)

// NotifyService 操作员通知。所有发送都是即发即忘：
// 失败只记日志，从不重试，也绝不阻塞交易循环。
type NotifyService struct {
	logger *zap.Logger
	tg     *telegram.Telegram
	chatID string
}

// NewNotifyService 创建通知服务，tg 为 nil 时所有通知静默丢弃
func NewNotifyService(conf *config.Config, tg *telegram.Telegram, logger *zap.Logger) *NotifyService {
	return &NotifyService{
		logger: logger,
		tg:     tg,
		chatID: conf.Telegram.ChatID,
	}
}

// RoundOpened 新回合开始
func (s *NotifyService) RoundOpened(st *models.Settings, round *models.Round, rungs int, used float64) {
	s.send(roundOpenedTpl, map[string]interface{}{
		"symbol":   st.Symbol(),
		"rungs":    strconv.Itoa(rungs),
		"used":     formatAmount(used),
		"currency": st.CurrencyAsset(),
	})
}

// RoundClosed 回合结算
func (s *NotifyService) RoundClosed(st *models.Settings, round *models.Round, income float64) {
	s.send(roundClosedTpl, map[string]interface{}{
		"symbol":   st.Symbol(),
		"income":   formatAmount(income),
		"currency": st.CurrencyAsset(),
	})
}

// SellPlaced 挂出卖单
func (s *NotifyService) SellPlaced(st *models.Settings, rate, amount float64) {
	s.send(sellPlacedTpl, map[string]interface{}{
		"symbol": st.Symbol(),
		"rate":   formatAmount(rate),
		"amount": formatAmount(amount),
	})
}

// CycleError 巡检周期出错
func (s *NotifyService) CycleError(err error) {
	s.send(cycleErrorTpl, map[string]interface{}{
		"error": err.Error(),
	})
}

func (s *NotifyService) send(tpl string, values map[string]interface{}) {
	if s.tg == nil {
		return
	}
	msg := fasttemplate.New(tpl, "{", "}").ExecuteString(values)
	go func() {
		if err := s.tg.Notify(s.chatID, msg); err != nil {
			s.logger.Warn("failed to send notification", zap.Error(err))
		}
	}()
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}
