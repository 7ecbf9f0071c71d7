package config

// Config 汇总应用全部配置；来源为 yaml 文件与环境变量覆盖。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	AI        AIConfig        `mapstructure:"ai"`
	Price     PriceConfig     `mapstructure:"price"`
	Access    AccessConfig    `mapstructure:"access"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Session   SessionConfig   `mapstructure:"session"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

type TelegramConfig struct {
	BotToken       string  `mapstructure:"bot_token"`
	AdminIDs       []int64 `mapstructure:"admin_ids"`
	ChannelID      string  `mapstructure:"channel_id"`
	PollTimeoutSec int     `mapstructure:"poll_timeout_sec"`
}

type AIConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	VisionModel string `mapstructure:"vision_model"`
	TimeoutSec  int    `mapstructure:"timeout_sec"`
	MaxRetries  int    `mapstructure:"max_retries"`
}

type PriceConfig struct {
	RESTBaseURL        string `mapstructure:"rest_base_url"`
	TimeoutSec         int    `mapstructure:"timeout_sec"`
	BreakerThreshold   int    `mapstructure:"breaker_threshold"`
	BreakerCooldownSec int    `mapstructure:"breaker_cooldown_sec"`
}

type AccessConfig struct {
	DBPath string `mapstructure:"db_path"`
	TTLSec int    `mapstructure:"ttl_sec"`
}

type PaymentConfig struct {
	Addr        string `mapstructure:"addr"`
	OrderPrefix string `mapstructure:"order_prefix"`
}

type ExtractConfig struct {
	LabelsPath string `mapstructure:"labels_path"`
}

// SessionConfig PreservedKeys 里列出的会话字段在流程重置时保留。
type SessionConfig struct {
	PreservedKeys []string `mapstructure:"preserved_keys"`
}

type BroadcastConfig struct {
	IntervalHours int     `mapstructure:"interval_hours"`
	RatePerSec    float64 `mapstructure:"rate_per_sec"`
	WeeklyText    string  `mapstructure:"weekly_text"`
}
