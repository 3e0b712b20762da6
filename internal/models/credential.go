package models

import "time"

// Credential 交易所API凭据
type Credential struct {
	ID        string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	Name      string    `gorm:"type:varchar(50);not null" json:"name"`
	APIKey    string    `gorm:"type:varchar(128);not null" json:"api_key"`
	Secret    string    `gorm:"type:varchar(128);not null" json:"-"` // 不返回给前端
	Enabled   bool      `gorm:"not null;default:true" json:"enabled"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Credential) TableName() string {
	return "credentials"
}
