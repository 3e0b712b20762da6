package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dushixiang/ladder/internal/config"
	"github.com/dushixiang/ladder/internal/models"
	"github.com/dushixiang/ladder/internal/repo"
	"github.com/dushixiang/ladder/pkg/exchange"
	"github.com/dushixiang/ladder/pkg/ladder"
	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const epsilon = 1e-5

// ReconcilerService 回合协调器，整个系统的核心状态机。
// 每轮巡检对每个启用的策略执行一次，依次完成：
// 订单状态核实、卖单终结触发的回合结算、迟到买单交接标记、
// 收益与目标卖价计算、盘口上调、僵尸回合检查、开新回合、卖单维护。
type ReconcilerService struct {
	logger *zap.Logger

	*orz.Service

	conf config.TradingConf

	orderRepo    *repo.OrderRepo
	roundRepo    *repo.RoundRepo
	settingsRepo *repo.SettingsRepo

	notify *NotifyService
}

// NewReconcilerService 创建回合协调器
func NewReconcilerService(db *gorm.DB, conf *config.Config, notify *NotifyService, logger *zap.Logger) *ReconcilerService {
	return &ReconcilerService{
		logger:       logger,
		Service:      orz.NewService(db),
		conf:         conf.Trading,
		orderRepo:    repo.NewOrderRepo(db),
		roundRepo:    repo.NewRoundRepo(db),
		settingsRepo: repo.NewSettingsRepo(db),
		notify:       notify,
	}
}

// Reconcile 对一个策略执行一轮完整的协调。
// snap 是本轮巡检开始时采集的只读快照，协调过程中不得刷新。
// 所有交易所调用与 SQL 失败直接上抛，由巡检循环在周期边界统一退避重试。
func (s *ReconcilerService) Reconcile(ctx context.Context, client exchange.Client, snap *MarketSnapshot, st models.Settings) error {
	symbol := st.Symbol()
	pair, ok := snap.Pair(symbol)
	if !ok {
		return fmt.Errorf("pair %s not found on exchange", symbol)
	}
	ticker, ok := snap.Ticker(symbol)
	if !ok {
		return fmt.Errorf("ticker %s missing from snapshot", symbol)
	}

	round, err := s.roundRepo.FindActiveBySettingsID(ctx, st.ID)
	if err != nil {
		return err
	}

	// 第1步：状态核实。巡检开始时所有挂单已被批量置为 checking，
	// 这里逐单向交易所核实，成交、部分成交、交易所侧撤单都在此发现。
	var changed []models.Order
	if round != nil {
		changed, err = s.resyncChecking(ctx, client, symbol, round.ID)
		if err != nil {
			return err
		}
	}

	// 第2步：卖单终结触发回合结算。changed 已按卖单优先排序，
	// 卖单终结是回合结算的权威信号。
	for _, o := range changed {
		if o.IsSell() && round != nil {
			if err := s.closeRound(ctx, &st, round); err != nil {
				return err
			}
			round = nil
		}
	}

	// 第3步：迟到成交的买单标记为待交接。回合已经结算完毕，
	// 这些买单的货物不能丢，但也不能追溯改动已结算的统计。
	if round == nil {
		for _, o := range changed {
			if o.IsBuy() && o.Filled() > epsilon {
				if err := s.orderRepo.UpdateStatus(ctx, o.ID, models.OrderStatusTransitioning); err != nil {
					return err
				}
			}
		}
	}

	// 第4步：收益统计与理论卖价
	var amountGain, sellRate float64
	if round != nil {
		gain, err := s.orderRepo.BuyGain(ctx, round.ID)
		if err != nil {
			return err
		}
		spent, err := s.orderRepo.BuySpent(ctx, round.ID)
		if err != nil {
			return err
		}
		amountGain = gain * (1 - st.Fee)
		if amountGain > epsilon {
			sellRate = spent / amountGain / (1 - st.Fee) / (1 - st.Fee) * (1 + st.Profit)
		}

		// 归档存货随本回合卖单一并卖出，定价从成本价向市价按时间线性回归
		if amountGain > epsilon {
			archive, err := s.roundRepo.FindArchiveBySettingsID(ctx, st.ID)
			if err != nil {
				return err
			}
			if archGoods, archRate := s.archivePricing(archive, ticker.Last); archGoods > epsilon {
				total := amountGain + archGoods
				sellRate = (sellRate*amountGain + archRate*archGoods) / total
				amountGain = total
			}
		}

		// 第5步：盘口上调。理论价只是保本加利润的下限，
		// 上调到盘口中高于它的最近一档实际卖价，避免无谓压价；从不下调。
		if sellRate > 0 {
			if depth, ok := snap.Depth(symbol); ok {
				sellRate = adjustSellRate(sellRate, depth.Asks)
			}
		}
	}

	// 第6步：僵尸回合检查。一单未成且市价已远离买单阶梯，放弃本回合。
	if round != nil && amountGain <= epsilon {
		maxRate, err := s.orderRepo.MaxBuyRate(ctx, round.ID)
		if err != nil {
			return err
		}
		if maxRate > 0 && ticker.Last > maxRate*(1+2*st.FirstStep) {
			s.logger.Info("round went stale, aborting",
				zap.String("settings_id", st.ID),
				zap.String("round_id", round.ID),
				zap.Float64("last", ticker.Last),
				zap.Float64("max_buy_rate", maxRate))
			if err := s.closeRound(ctx, &st, round); err != nil {
				return err
			}
			round = nil
		}
	}

	// 第7步：开新回合
	if round == nil {
		if err := s.cancelDangling(ctx, client, symbol, st.ID); err != nil {
			return err
		}
		newRound, err := s.openRound(ctx, client, snap, &st, pair, ticker)
		if err != nil {
			return err
		}
		if newRound != nil {
			// 应用待交接订单。货物已在旧回合结算时按成本转入归档存货，
			// 随本回合的卖单一并卖出，这里只是把订单改挂过来留档
			trans, err := s.orderRepo.FindTransitioning(ctx, st.ID)
			if err != nil {
				return err
			}
			for _, o := range trans {
				if err := s.orderRepo.Transition(ctx, o.ID, newRound.ID, models.OrderStatusDone); err != nil {
					return err
				}
			}
		}
		// 卖单维护等下一轮有了成交统计再做
		return nil
	}

	// 第8步：卖单维护
	if amountGain <= epsilon || amountGain < pair.MinAmount {
		return nil
	}
	return s.maintainSell(ctx, client, snap, &st, round, pair, amountGain, sellRate)
}

// resyncChecking 逐单向交易所核实待核实订单，返回状态发生终结变化的订单。
// 返回值按卖单优先排序。
func (s *ReconcilerService) resyncChecking(ctx context.Context, client exchange.Client, symbol, roundID string) ([]models.Order, error) {
	orders, err := s.orderRepo.FindChecking(ctx, roundID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Type == models.OrderTypeSell && orders[j].Type != models.OrderTypeSell
	})

	var changed []models.Order
	for i := range orders {
		o := orders[i]
		ref, err := exchange.ParseOrderRef(o.Ref)
		if err != nil {
			return nil, err
		}
		if ref.IsSynthesized() {
			// 合成订单没有交易所订单号可查，恢复原状态。
			// 这是已知的修复盲区：如果落库前崩溃，此类订单无法自动对账。
			if err := s.orderRepo.UpdateStatus(ctx, o.ID, models.OrderStatusActive); err != nil {
				return nil, err
			}
			continue
		}

		info, err := client.OrderInfo(ctx, symbol, ref.ExchangeID())
		if err != nil {
			return nil, err
		}
		status := orderStatusFromState(info.State)
		if err := s.orderRepo.UpdateFill(ctx, o.ID, info.Amount, status); err != nil {
			return nil, err
		}
		if status != models.OrderStatusActive {
			o.Amount = info.Amount
			o.Status = status
			changed = append(changed, o)
		}
	}
	return changed, nil
}

// closeRound 结算回合：统计、终态、预算递增、剩余订单转入归档，整体在一个事务内。
// 已结算的回合不会再被选为活跃回合，重复触发是无害的空操作。
func (s *ReconcilerService) closeRound(ctx context.Context, st *models.Settings, round *models.Round) error {
	gain, spent, err := s.orderRepo.SettlementBuyStats(ctx, round.ID)
	if err != nil {
		return err
	}
	sold, soldIncome, err := s.orderRepo.SettlementSellStats(ctx, round.ID)
	if err != nil {
		return err
	}

	ownGoods := gain * (1 - st.Fee)
	income := soldIncome*(1-st.Fee) - spent

	err = s.Transaction(ctx, func(ctx context.Context) error {
		excess := sold - ownGoods
		if excess > epsilon && sold > epsilon {
			// 卖出量超过本回合货物的部分，是顺带卖掉的归档存货
			archive, err := s.ensureArchive(ctx, st.ID)
			if err != nil {
				return err
			}
			archIncome := excess * (soldIncome / sold) * (1 - st.Fee)
			if err := s.roundRepo.AddGoodsOut(ctx, archive.ID, excess, archIncome); err != nil {
				return err
			}
			income -= archIncome
		} else if excess < -epsilon {
			// 未卖完的货物按成本价转入归档存货
			leftover := -excess
			var costRate float64
			if gain > epsilon {
				costRate = spent / gain
			}
			archive, err := s.ensureArchive(ctx, st.ID)
			if err != nil {
				return err
			}
			if err := s.roundRepo.AddArchiveStock(ctx, archive.ID, leftover, leftover*costRate); err != nil {
				return err
			}
		}

		stats := models.Round{
			Income:      income,
			GoodsIn:     ownGoods,
			GoodsOut:    sold,
			CurrencyIn:  spent,
			CurrencyOut: soldIncome,
		}
		if err := s.roundRepo.Finish(ctx, round.ID, models.RoundDone, stats); err != nil {
			return err
		}

		// 未终结订单移出活跃记账，挂到归档回合等待下次开仓时清扫
		open, err := s.orderRepo.FindOpenByRoundID(ctx, round.ID)
		if err != nil {
			return err
		}
		if len(open) > 0 {
			archive, err := s.ensureArchive(ctx, st.ID)
			if err != nil {
				return err
			}
			if err := s.orderRepo.ReassignRound(ctx, round.ID, archive.ID); err != nil {
				return err
			}
		}

		// 预算递增
		if st.DepositInc != 0 {
			delta := income * st.DepositInc
			if err := s.settingsRepo.BumpDeposit(ctx, st.ID, delta); err != nil {
				return err
			}
			st.Deposit += delta
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("round closed",
		zap.String("settings_id", st.ID),
		zap.String("round_id", round.ID),
		zap.Float64("income", income),
		zap.Float64("goods_in", ownGoods),
		zap.Float64("goods_out", sold))
	s.notify.RoundClosed(st, round, income)
	return nil
}

// ensureArchive 查找或创建策略的归档回合
func (s *ReconcilerService) ensureArchive(ctx context.Context, settingsID string) (*models.Round, error) {
	archive, err := s.roundRepo.FindArchiveBySettingsID(ctx, settingsID)
	if err != nil {
		return nil, err
	}
	if archive != nil {
		return archive, nil
	}
	archive = &models.Round{
		ID:         ulid.Make().String(),
		SettingsID: settingsID,
		Reason:     models.RoundArchive,
		StartedAt:  time.Now(),
	}
	if err := s.roundRepo.Create(ctx, archive); err != nil {
		return nil, err
	}
	return archive, nil
}

// archivePricing 归档存货的剩余数量与目标卖价。
// 卖价从记账成本价出发，随时间向当前市价线性回归，超过回归时长后完全按市价。
func (s *ReconcilerService) archivePricing(archive *models.Round, last float64) (goods, rate float64) {
	if archive == nil {
		return 0, 0
	}
	goods = archive.GoodsIn - archive.GoodsOut
	if goods <= epsilon {
		return 0, 0
	}
	cost := last
	if archive.GoodsIn > epsilon && archive.CurrencyIn > epsilon {
		cost = archive.CurrencyIn / archive.GoodsIn
	}
	hours := s.conf.ArchiveDecayHours
	if hours <= 0 {
		hours = 72
	}
	w := time.Since(archive.StartedAt).Hours() / hours
	if w < 0 {
		w = 0
	}
	if w > 1 {
		w = 1
	}
	return goods, cost*(1-w) + last*w
}

// cancelDangling 清扫上一个回合遗留的挂单。
// 交易所已终结而本地未归档的订单在这里补记最终状态。
func (s *ReconcilerService) cancelDangling(ctx context.Context, client exchange.Client, symbol, settingsID string) error {
	orders, err := s.orderRepo.FindOpenBySettingsID(ctx, settingsID)
	if err != nil {
		return err
	}
	for _, o := range orders {
		ref, err := exchange.ParseOrderRef(o.Ref)
		if err != nil {
			return err
		}
		if ref.IsSynthesized() {
			// 交易所侧没有挂单，按取消处理即可
			status := models.OrderStatusCanceled
			if o.Filled() > epsilon {
				status = models.OrderStatusCanceledPartial
			}
			if err := s.orderRepo.UpdateStatus(ctx, o.ID, status); err != nil {
				return err
			}
			continue
		}

		if _, err := client.CancelOrder(ctx, symbol, ref.ExchangeID()); err != nil {
			if !exchange.IsAppError(err) {
				return err
			}
			// 交易所认为订单已终结，落下面的核实分支补记最终状态
		}
		info, err := client.OrderInfo(ctx, symbol, ref.ExchangeID())
		if err != nil {
			return err
		}
		if err := s.orderRepo.UpdateFill(ctx, o.ID, info.Amount, orderStatusFromState(info.State)); err != nil {
			return err
		}
	}
	return nil
}

// openRound 开新回合：按当前市价规划买单阶梯并逐档下单。
// 已知风险：订单已提交到交易所但本地落库前失败时，交易所与账本短暂不一致，
// 下一轮清扫与状态核实会修复有订单号的情况；即时成交的合成单无法自动修复。
func (s *ReconcilerService) openRound(ctx context.Context, client exchange.Client, snap *MarketSnapshot, st *models.Settings, pair exchange.PairInfo, ticker exchange.Ticker) (*models.Round, error) {
	balance := snap.Balance(st.CredentialID, st.CurrencyAsset())
	rungs, err := ladder.Plan(ladder.Params{
		ExecuteRate: ticker.Last,
		FirstStep:   st.FirstStep,
		Coverage:    st.Coverage,
		Martingale:  st.Martingale,
		Steps:       st.Steps,
		Budget:      st.Deposit,
		Balance:     balance,
	})
	if err != nil {
		return nil, fmt.Errorf("plan ladder for %s: %w", st.Symbol(), err)
	}
	if len(rungs) == 0 {
		s.logger.Debug("no affordable rungs, skip opening",
			zap.String("settings_id", st.ID),
			zap.Float64("deposit", st.Deposit),
			zap.Float64("balance", balance))
		return nil, nil
	}

	round := &models.Round{
		ID:         ulid.Make().String(),
		SettingsID: st.ID,
		Reason:     models.RoundActive,
		StartedAt:  time.Now(),
	}
	if err := s.roundRepo.Create(ctx, round); err != nil {
		return nil, err
	}

	symbol := st.Symbol()
	var used float64
	var placed int
	for _, rung := range rungs {
		rate := roundToPrecision(rung.Rate, pair.PricePrecision)
		amount := floorToPrecision(rung.Amount, pair.AmountPrecision)
		if amount < pair.MinAmount || rate*amount < pair.MinNotional {
			continue
		}
		res, err := client.PlaceOrder(ctx, symbol, exchange.SideBuy, rate, amount)
		if err != nil {
			return nil, err
		}
		if _, err := s.insertPlaced(ctx, round, st, exchange.SideBuy, rate, res); err != nil {
			return nil, err
		}
		used += rate * (res.Received + res.Remains)
		placed++
	}
	if err := s.roundRepo.UpdateDepositUsed(ctx, round.ID, used); err != nil {
		return nil, err
	}

	s.logger.Info("round opened",
		zap.String("settings_id", st.ID),
		zap.String("round_id", round.ID),
		zap.Int("rungs", placed),
		zap.Float64("deposit_used", used))
	s.notify.RoundOpened(st, round, placed, used)
	return round, nil
}

// maintainSell 卖单维护：保证回合内恰好挂着一张数量与价格都正确的卖单。
func (s *ReconcilerService) maintainSell(ctx context.Context, client exchange.Client, snap *MarketSnapshot, st *models.Settings, round *models.Round, pair exchange.PairInfo, amountGain, sellRate float64) error {
	symbol := st.Symbol()

	sold, err := s.orderRepo.SoldByEndedSells(ctx, round.ID)
	if err != nil {
		return err
	}
	target := amountGain - sold

	cur, err := s.orderRepo.FindCurrentSell(ctx, round.ID)
	if err != nil {
		return err
	}
	if cur != nil {
		amountDrift := math.Abs(cur.Amount - target)
		rateDrift := math.Abs(cur.Rate - sellRate)
		if amountDrift <= pair.MinAmount && rateDrift <= pair.PriceUnit() {
			return nil
		}

		ref, err := exchange.ParseOrderRef(cur.Ref)
		if err != nil {
			return err
		}
		if ref.IsSynthesized() {
			// 部分即时成交的合成卖单无法撤单，保持原样
			s.logger.Warn("current sell order is synthesized, cannot recreate",
				zap.String("order_id", cur.ID), zap.String("ref", cur.Ref))
			return nil
		}
		if _, err := client.CancelOrder(ctx, symbol, ref.ExchangeID()); err != nil {
			if !exchange.IsAppError(err) {
				return err
			}
		}
		info, err := client.OrderInfo(ctx, symbol, ref.ExchangeID())
		if err != nil {
			return err
		}
		if err := s.orderRepo.UpdateFill(ctx, cur.ID, info.Amount, orderStatusFromState(info.State)); err != nil {
			return err
		}
		// 被撤卖单已成交的部分不再重复挂出
		target -= info.StartAmount - info.Amount
		if info.State == exchange.StateDone {
			// 撤单前已经全部成交。订单此刻已是终态，不会再被批量置为
			// 待核实，等不到下一轮的结算信号，必须在这里立刻结算。
			return s.closeRound(ctx, st, round)
		}
	}

	// 余额钳制与碎量清扫：
	// 可卖量不超过实际余额；余下的零头若低于交易对最小量，就整笔卖出。
	balance := snap.Balance(st.CredentialID, st.GoodsAsset())
	if target > balance {
		target = balance
	}
	if balance-target < pair.MinAmount {
		target = balance
	}
	target = floorToPrecision(target, pair.AmountPrecision)
	if target < pair.MinAmount {
		return nil
	}

	rate := roundToPrecision(sellRate, pair.PricePrecision)
	res, err := client.PlaceOrder(ctx, symbol, exchange.SideSell, rate, target)
	if err != nil {
		return err
	}
	order, err := s.insertPlaced(ctx, round, st, exchange.SideSell, rate, res)
	if err != nil {
		return err
	}
	s.logger.Info("sell order placed",
		zap.String("round_id", round.ID),
		zap.Float64("rate", rate),
		zap.Float64("amount", target),
		zap.String("ref", order.Ref))
	s.notify.SellPlaced(st, rate, target)

	if order.Status == models.OrderStatusDone {
		// 卖单在下单瞬间被完全吃掉，立即结算回合
		return s.closeRound(ctx, st, round)
	}
	return nil
}

// insertPlaced 把下单结果落库为订单行。
// 交易所返回订单号 0 表示即时成交，本地合成订单引用（回合号+序号）。
// 即时成交的实际成交价可能与挂单价不同，这里仍按挂单价记账（已知偏差）。
func (s *ReconcilerService) insertPlaced(ctx context.Context, round *models.Round, st *models.Settings, side exchange.Side, rate float64, res *exchange.PlaceResult) (*models.Order, error) {
	start := res.Received + res.Remains
	status := models.OrderStatusActive
	var ref exchange.OrderRef
	if res.OrderID == 0 {
		seq, err := s.roundRepo.NextFillSeq(ctx, round.ID)
		if err != nil {
			return nil, err
		}
		ref = exchange.SynthesizedRef(round.ID, seq)
		if res.Remains <= epsilon {
			status = models.OrderStatusDone
		}
	} else {
		ref = exchange.ExchangeRef(res.OrderID)
		if res.Remains <= epsilon && res.Received > 0 {
			status = models.OrderStatusDone
		}
	}

	orderType := models.OrderTypeBuy
	if side == exchange.SideSell {
		orderType = models.OrderTypeSell
	}
	order := &models.Order{
		ID:          ulid.Make().String(),
		Ref:         ref.String(),
		SettingsID:  st.ID,
		RoundID:     round.ID,
		Type:        orderType,
		Status:      status,
		Amount:      res.Remains,
		StartAmount: start,
		Rate:        rate,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// adjustSellRate 把目标卖价上调到盘口中高于它的最近一档卖价。
// 没有更高的卖单时按理论价不变；结果永远不低于理论价。
func adjustSellRate(target float64, asks []exchange.DepthLevel) float64 {
	for _, lvl := range asks { // asks 按价格升序
		if lvl.Rate > target+epsilon {
			return lvl.Rate
		}
	}
	return target
}

func orderStatusFromState(state exchange.OrderState) models.OrderStatus {
	switch state {
	case exchange.StateActive:
		return models.OrderStatusActive
	case exchange.StateDone:
		return models.OrderStatusDone
	case exchange.StateCanceledPartial:
		return models.OrderStatusCanceledPartial
	default:
		return models.OrderStatusCanceled
	}
}

func roundToPrecision(v float64, precision int) float64 {
	scale := math.Pow10(precision)
	return math.Round(v*scale) / scale
}

func floorToPrecision(v float64, precision int) float64 {
	scale := math.Pow10(precision)
	return math.Floor(v*scale) / scale
}
