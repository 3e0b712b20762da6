package models

import "time"

// RoundReason 回合状态
type RoundReason string

const (
	RoundActive  RoundReason = "active"  // 进行中
	RoundDone    RoundReason = "done"    // 已结算
	RoundArchive RoundReason = "archive" // 归档持仓（等待择机卖出的存货）
)

// Round 一个完整的"阶梯买入→合并卖出"回合。
// 同一个 Settings 行同一时刻至多存在一个 active 回合，
// 该约束由查询保证而不是数据库约束，测试需要覆盖。
type Round struct {
	ID          string      `gorm:"primaryKey;type:varchar(26)" json:"id"`
	SettingsID  string      `gorm:"type:varchar(26);not null;index" json:"settings_id"`
	Reason      RoundReason `gorm:"type:varchar(10);not null;index" json:"reason"`
	StartedAt   time.Time   `gorm:"not null" json:"started_at"`
	EndedAt     *time.Time  `json:"ended_at,omitempty"`
	Income      float64     `gorm:"type:decimal(20,8)" json:"income"`       // 结算收益（计价货币）
	GoodsIn     float64     `gorm:"type:decimal(20,8)" json:"goods_in"`     // 买入获得的标的（扣除手续费）
	GoodsOut    float64     `gorm:"type:decimal(20,8)" json:"goods_out"`    // 卖出付出的标的
	CurrencyIn  float64     `gorm:"type:decimal(20,8)" json:"currency_in"`  // 买入花费的计价货币
	CurrencyOut float64     `gorm:"type:decimal(20,8)" json:"currency_out"` // 卖出得到的计价货币
	DepositUsed float64     `gorm:"type:decimal(20,8)" json:"deposit_used"` // 已占用预算
	FillSeq     int         `gorm:"type:int;not null;default:0" json:"fill_seq"` // 合成订单号计数器
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Round) TableName() string {
	return "rounds"
}

// IsActive 是否进行中
func (r *Round) IsActive() bool {
	return r.Reason == RoundActive
}
