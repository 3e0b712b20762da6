package models

import "time"

// SchemaVersion 数据库结构版本记录，单行表，启动迁移的闸门
type SchemaVersion struct {
	ID        int       `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Version   int       `gorm:"not null" json:"version"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (SchemaVersion) TableName() string {
	return "schema_version"
}
