// Package ladder 计算马丁格尔加码的阶梯买单。
// 纯函数，不依赖任何外部状态，每轮开盘时由回合协调器调用一次。
package ladder

import (
	"errors"
	"fmt"
	"math"
)

// 预算比较用的浮点容差
const Epsilon = 1e-5

// Params 阶梯参数
type Params struct {
	ExecuteRate float64 // 当前市场价（成交基准价）
	FirstStep   float64 // 第一档相对市场价的折价
	Coverage    float64 // 最后一档相对市场价的折价（覆盖深度）
	Martingale  float64 // 每档数量的加码系数
	Steps       int     // 档数 n（>=2，公式里要除以 n-1）
	Budget      float64 // 本回合预算（计价货币）
	Balance     float64 // 当前可用余额（计价货币）
}

// Rung 一档买单计划
type Rung struct {
	Amount float64 // 标的数量
	Rate   float64 // 委托价
}

// Plan 生成阶梯买单。
// 第 j 档（从 0 计）价格从 rate*(1-first_step) 线性下降到 rate*(1-coverage)，
// 数量按 (1+martingale)^j 加码；基础数量 u 解自"全部成交恰好花完预算"。
// 当累计花费加上下一档成本超出预算或余额时提前停止（不报错）。
func Plan(p Params) ([]Rung, error) {
	if p.Steps < 2 {
		return nil, fmt.Errorf("ladder needs at least 2 steps, got %d", p.Steps)
	}
	if p.FirstStep > p.Coverage {
		return nil, fmt.Errorf("first step %.4f exceeds coverage %.4f", p.FirstStep, p.Coverage)
	}
	if p.ExecuteRate <= 0 {
		return nil, errors.New("execute rate must be positive")
	}
	if p.Budget <= 0 {
		return nil, errors.New("budget must be positive")
	}

	n := float64(p.Steps - 1)

	// u = budget / rate / Σ (1+m)^j * (1 - first - (cov-first)*j/(n-1))
	denom := 0.0
	for j := 0; j < p.Steps; j++ {
		discount := 1 - p.FirstStep - (p.Coverage-p.FirstStep)*float64(j)/n
		denom += math.Pow(1+p.Martingale, float64(j)) * discount
	}
	u := p.Budget / p.ExecuteRate / denom

	limit := p.Budget
	if p.Balance < limit {
		limit = p.Balance
	}

	rungs := make([]Rung, 0, p.Steps)
	spent := 0.0
	for j := 0; j < p.Steps; j++ {
		rate := p.ExecuteRate * (1 - p.FirstStep - (p.Coverage-p.FirstStep)*float64(j)/n)
		amount := u * math.Pow(1+p.Martingale, float64(j))
		cost := amount * rate
		if spent+cost > limit+Epsilon {
			break
		}
		spent += cost
		rungs = append(rungs, Rung{Amount: amount, Rate: rate})
	}

	return rungs, nil
}
