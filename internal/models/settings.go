package models

import (
	"strings"
	"time"
)

// Settings 策略实例配置，每行对应一个交易对加一套参数。
// 由运维人员通过API修改；回合协调器只读（唯一例外是回合结算时的预算递增）。
type Settings struct {
	ID           string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	Goods        string    `gorm:"type:varchar(10);not null" json:"goods"`           // 标的货币
	Currency     string    `gorm:"type:varchar(10);not null" json:"currency"`        // 计价货币
	Profit       float64   `gorm:"type:decimal(10,6);not null" json:"profit"`        // 目标利润率
	Fee          float64   `gorm:"type:decimal(10,6);not null" json:"fee"`           // 成交费率
	FirstStep    float64   `gorm:"type:decimal(10,6);not null" json:"first_step"`    // 第一档折价
	Coverage     float64   `gorm:"type:decimal(10,6);not null" json:"coverage"`      // 覆盖深度
	Martingale   float64   `gorm:"type:decimal(10,6);not null" json:"martingale"`    // 加码系数
	Steps        int       `gorm:"type:int;not null" json:"steps"`                   // 阶梯档数，>=2
	Deposit      float64   `gorm:"type:decimal(20,8);not null" json:"deposit"`       // 回合预算
	DepositInc   float64   `gorm:"type:decimal(10,6)" json:"deposit_inc"`            // 回合收益转入预算的比例
	CredentialID string    `gorm:"type:varchar(26);not null;index" json:"credential_id"`
	Enabled      bool      `gorm:"not null;default:false" json:"enabled"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Settings) TableName() string {
	return "settings"
}

// Symbol 交易所符号，如 goods=ltc currency=btc -> LTCBTC
func (s *Settings) Symbol() string {
	return strings.ToUpper(s.Goods + s.Currency)
}

// GoodsAsset 大写标的货币代码
func (s *Settings) GoodsAsset() string {
	return strings.ToUpper(s.Goods)
}

// CurrencyAsset 大写计价货币代码
func (s *Settings) CurrencyAsset() string {
	return strings.ToUpper(s.Currency)
}
