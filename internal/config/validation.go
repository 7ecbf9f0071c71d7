package config

import "fmt"

// validate 拦截启动级错误：缺失凭据直接终止进程，而不是留到请求期。
func validate(c *Config) error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("config: telegram.bot_token is required")
	}
	if c.AI.APIKey == "" {
		return fmt.Errorf("config: ai.api_key is required")
	}
	if c.Access.DBPath == "" {
		return fmt.Errorf("config: access.db_path is required")
	}
	if len(c.Telegram.AdminIDs) == 0 {
		return fmt.Errorf("config: telegram.admin_ids must list at least one admin")
	}
	return nil
}
