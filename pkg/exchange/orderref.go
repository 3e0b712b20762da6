package exchange

import (
	"fmt"
	"strconv"
	"strings"
)

// OrderRef 订单引用。要么指向交易所侧的真实订单，要么是本地合成的订单号
// （下单瞬间被完全吃掉的订单在交易所侧没有编号，只能本地合成）。
// 把"这是不是真实交易所订单"做成类型层面的问题，而不是负数约定。
type OrderRef struct {
	id    int64  // 交易所订单号，合成单为 0
	round string // 合成单归属的回合
	seq   int    // 回合内序号
}

// ExchangeRef 真实交易所订单引用
func ExchangeRef(id int64) OrderRef {
	return OrderRef{id: id}
}

// SynthesizedRef 本地合成订单引用，由回合号加回合内序号构成，同一回合内不会碰撞
func SynthesizedRef(roundID string, seq int) OrderRef {
	return OrderRef{round: roundID, seq: seq}
}

// ParseOrderRef 从存储形式解析订单引用
func ParseOrderRef(s string) (OrderRef, error) {
	switch {
	case strings.HasPrefix(s, "x:"):
		id, err := strconv.ParseInt(s[2:], 10, 64)
		if err != nil {
			return OrderRef{}, fmt.Errorf("invalid exchange order ref %q: %w", s, err)
		}
		return ExchangeRef(id), nil
	case strings.HasPrefix(s, "s:"):
		rest := s[2:]
		idx := strings.LastIndex(rest, ":")
		if idx <= 0 {
			return OrderRef{}, fmt.Errorf("invalid synthesized order ref %q", s)
		}
		seq, err := strconv.Atoi(rest[idx+1:])
		if err != nil {
			return OrderRef{}, fmt.Errorf("invalid synthesized order ref %q: %w", s, err)
		}
		return SynthesizedRef(rest[:idx], seq), nil
	default:
		return OrderRef{}, fmt.Errorf("unknown order ref form %q", s)
	}
}

// IsSynthesized 是否为本地合成订单
func (r OrderRef) IsSynthesized() bool {
	return r.id == 0
}

// ExchangeID 交易所订单号，合成单返回 0
func (r OrderRef) ExchangeID() int64 {
	return r.id
}

// String 存储形式："x:<id>" 或 "s:<round>:<seq>"
func (r OrderRef) String() string {
	if r.IsSynthesized() {
		return fmt.Sprintf("s:%s:%d", r.round, r.seq)
	}
	return fmt.Sprintf("x:%d", r.id)
}
