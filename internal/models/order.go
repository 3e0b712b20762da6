package models

import "time"

// OrderType 订单方向
type OrderType string

const (
	OrderTypeBuy  OrderType = "buy"
	OrderTypeSell OrderType = "sell"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusActive          OrderStatus = "active"           // 挂单中
	OrderStatusDone            OrderStatus = "done"             // 完全成交
	OrderStatusCanceled        OrderStatus = "canceled"         // 已取消
	OrderStatusCanceledPartial OrderStatus = "canceled_partial" // 部分成交后取消
	OrderStatusChecking        OrderStatus = "checking"         // 待向交易所核实的瞬态
	OrderStatusTransitioning   OrderStatus = "transitioning"    // 回合交接中的瞬态
)

// Order 一笔交易所订单，或即时成交订单的本地合成记录。
// Ref 是 OrderRef 的存储形式（"x:<交易所订单号>" 或 "s:<回合>:<序号>"）。
// 一个订单同一时刻只属于一个回合，但买单可以在回合交接时被改挂到新回合
// （对应"回合已被卖单关闭后买单才成交"的情况），交易所侧订单不变。
type Order struct {
	ID          string      `gorm:"primaryKey;type:varchar(26)" json:"id"`
	Ref         string      `gorm:"type:varchar(64);not null;uniqueIndex" json:"ref"`
	SettingsID  string      `gorm:"type:varchar(26);not null;index" json:"settings_id"`
	RoundID     string      `gorm:"type:varchar(26);not null;index" json:"round_id"`
	Type        OrderType   `gorm:"type:varchar(4);not null" json:"type"`
	Status      OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Amount      float64     `gorm:"type:decimal(20,8);not null" json:"amount"`       // 剩余数量
	StartAmount float64     `gorm:"type:decimal(20,8);not null" json:"start_amount"` // 原始数量
	Rate        float64     `gorm:"type:decimal(20,8);not null" json:"rate"`
	Carried     bool        `gorm:"not null;default:false" json:"carried"` // 迟到成交，已计入上一回合结算，不再参与本回合结算统计
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// IsOpen 是否处于未终结状态
func (o *Order) IsOpen() bool {
	switch o.Status {
	case OrderStatusActive, OrderStatusChecking, OrderStatusTransitioning:
		return true
	}
	return false
}

// Filled 已成交数量
func (o *Order) Filled() float64 {
	return o.StartAmount - o.Amount
}

// IsBuy 是否买单
func (o *Order) IsBuy() bool {
	return o.Type == OrderTypeBuy
}

// IsSell 是否卖单
func (o *Order) IsSell() bool {
	return o.Type == OrderTypeSell
}
