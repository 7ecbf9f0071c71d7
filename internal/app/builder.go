package app

import (
	"context"
	"time"

	"advisor/internal/access"
	"advisor/internal/bot"
	"advisor/internal/config"
	"advisor/internal/dialog"
	"advisor/internal/extract"
	"advisor/internal/gateway/price"
	"advisor/internal/gateway/provider"
	"advisor/internal/gateway/telegram"
	"advisor/internal/logger"
	"advisor/internal/notify"
	"advisor/internal/session"
	"advisor/internal/store"
	"advisor/internal/transport/http/payment"
)

// 任意步骤可用的全局退出口令。
var exitWords = []string{"cancel", "exit", "отмена", "выход"}

// Builder 手工装配全部依赖。顺序即依赖方向：存储→缓存→网关→引擎→前端。
type Builder struct {
	cfg *config.Config
}

func newBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

func (b *Builder) Build(ctx context.Context) (*App, error) {
	cfg := b.cfg

	accessLog, err := store.Open(cfg.Access.DBPath)
	if err != nil {
		return nil, err
	}
	acl := access.NewCache(accessLog, time.Duration(cfg.Access.TTLSec)*time.Second)

	extractor := buildExtractor(cfg.Extract.LabelsPath)

	tg := telegram.NewClient(cfg.Telegram.BotToken, time.Duration(cfg.Telegram.PollTimeoutSec)*time.Second)

	model := provider.NewClient(
		cfg.AI.BaseURL,
		cfg.AI.APIKey,
		cfg.AI.Model,
		cfg.AI.VisionModel,
		time.Duration(cfg.AI.TimeoutSec)*time.Second,
		cfg.AI.MaxRetries,
	)

	quotes := price.New(price.Config{
		RESTBaseURL:      cfg.Price.RESTBaseURL,
		Timeout:          time.Duration(cfg.Price.TimeoutSec) * time.Second,
		BreakerThreshold: cfg.Price.BreakerThreshold,
		BreakerCooldown:  time.Duration(cfg.Price.BreakerCooldownSec) * time.Second,
	})

	dispatcher := notify.NewDispatcher(tg, cfg.Broadcast.RatePerSec)

	engine := dialog.NewEngine(session.NewStore(cfg.Session.PreservedKeys), exitWords)

	frontend, err := bot.New(
		bot.Config{
			AdminIDs:    cfg.Telegram.AdminIDs,
			ChannelID:   cfg.Telegram.ChannelID,
			PollTimeout: time.Duration(cfg.Telegram.PollTimeoutSec) * time.Second,
		},
		tg, acl, engine, extractor, model, quotes, dispatcher,
	)
	if err != nil {
		return nil, err
	}

	paySrv, err := payment.NewServer(payment.ServerConfig{
		Addr:        cfg.Payment.Addr,
		OrderPrefix: cfg.Payment.OrderPrefix,
		Granter:     acl,
		Notifier:    dispatcher,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:        cfg,
		bot:        frontend,
		payment:    paySrv,
		acl:        acl,
		dispatcher: dispatcher,
	}, nil
}

// buildExtractor 词表文件可选：读不到就用内置词表，热更新随之关闭。
func buildExtractor(labelsPath string) *extract.Extractor {
	if labelsPath == "" {
		return extract.NewExtractor(nil)
	}
	registry, err := extract.NewRegistry(labelsPath)
	if err != nil {
		logger.Warnf("app: labels file %s unusable (%v), falling back to builtin vocabulary", labelsPath, err)
		return extract.NewExtractor(nil)
	}
	return extract.NewExtractor(registry)
}
