package config

type Config struct {
	Telegram TelegramConf `json:"telegram"`
	Binance  BinanceConf  `json:"binance"`
	Trading  TradingConf  `json:"trading"`
	Auth     AuthConf     `json:"auth"`
}

type TelegramConf struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  string `json:"chat_id"`
}

type BinanceConf struct {
	ProxyURL string `json:"proxy_url"` // 代理地址，例如: http://127.0.0.1:7890
	Testnet  bool   `json:"testnet"`   // 是否使用测试网
}

type TradingConf struct {
	Enabled           bool    `json:"enabled"`             // 是否启动巡检循环
	Paper             bool    `json:"paper"`               // 纸面交易模式，不连真实交易所
	IntervalSeconds   int     `json:"interval_seconds"`    // 巡检周期（秒），默认10
	DepthLimit        int     `json:"depth_limit"`         // 盘口深度档数，默认50
	ArchiveDecayHours float64 `json:"archive_decay_hours"` // 归档存货定价向市价回归的时长（小时），默认72
	SnapshotCron      string  `json:"snapshot_cron"`       // 行情/余额快照任务表达式，默认每5分钟
}

type AuthConf struct {
	JWTSecret     string `json:"jwt_secret"`      // 为空时启动生成随机密钥，重启后令牌失效
	TokenTTLHours int    `json:"token_ttl_hours"` // 令牌有效期（小时），默认24
}
