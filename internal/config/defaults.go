package config

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Telegram.PollTimeoutSec <= 0 {
		c.Telegram.PollTimeoutSec = 30
	}
	if c.AI.BaseURL == "" {
		c.AI.BaseURL = "https://api.openai.com/v1"
	}
	if c.AI.Model == "" {
		c.AI.Model = "gpt-4o-mini"
	}
	if c.AI.VisionModel == "" {
		c.AI.VisionModel = c.AI.Model
	}
	if c.AI.TimeoutSec <= 0 {
		c.AI.TimeoutSec = 60
	}
	if c.AI.MaxRetries <= 0 {
		c.AI.MaxRetries = 2
	}
	if c.Price.RESTBaseURL == "" {
		c.Price.RESTBaseURL = "https://api.binance.com"
	}
	if c.Price.TimeoutSec <= 0 {
		c.Price.TimeoutSec = 10
	}
	if c.Price.BreakerThreshold <= 0 {
		c.Price.BreakerThreshold = 3
	}
	if c.Price.BreakerCooldownSec <= 0 {
		c.Price.BreakerCooldownSec = 60
	}
	if c.Access.DBPath == "" {
		c.Access.DBPath = "data/access.db"
	}
	if c.Access.TTLSec <= 0 {
		c.Access.TTLSec = 300
	}
	if c.Payment.Addr == "" {
		c.Payment.Addr = ":9980"
	}
	if c.Payment.OrderPrefix == "" {
		c.Payment.OrderPrefix = "user"
	}
	if c.Extract.LabelsPath == "" {
		c.Extract.LabelsPath = "configs/labels.yaml"
	}
	if c.Broadcast.IntervalHours <= 0 {
		c.Broadcast.IntervalHours = 168
	}
	if c.Broadcast.RatePerSec <= 0 {
		c.Broadcast.RatePerSec = 20
	}
}
