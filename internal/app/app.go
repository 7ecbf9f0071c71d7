package app

import (
	"context"
	"fmt"
	"time"

	"advisor/internal/access"
	"advisor/internal/bot"
	"advisor/internal/config"
	"advisor/internal/logger"
	"advisor/internal/notify"
	"advisor/internal/scheduler"
	"advisor/internal/transport/http/payment"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动前端与回调服务。
type App struct {
	cfg        *config.Config
	bot        *bot.Bot
	payment    *payment.Server
	acl        *access.Cache
	dispatcher *notify.Dispatcher
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return newBuilder(cfg).Build(context.Background())
}

// Run 启动全部服务，任意一个挂掉整组退出。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.bot == nil {
		return fmt.Errorf("bot not initialized")
	}

	// 启动前灌一次授权名单，失败也继续，缓存会降级到空集并在后台重试。
	if n, err := a.acl.Refresh(ctx); err != nil {
		logger.Warnf("app: initial access refresh failed: %v", err)
	} else {
		logger.Infof("app: access list loaded, %d users", n)
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return a.bot.Run(ctx)
	})

	if a.payment != nil {
		group.Go(func() error {
			if err := a.payment.Start(ctx); err != nil {
				return fmt.Errorf("payment webhook server error: %w", err)
			}
			return nil
		})
	}

	if text := a.cfg.Broadcast.WeeklyText; text != "" && a.cfg.Broadcast.IntervalHours > 0 {
		interval := time.Duration(a.cfg.Broadcast.IntervalHours) * time.Hour
		group.Go(func() error {
			s := scheduler.NewIntervalScheduler(ctx, "weekly-broadcast", interval)
			s.Start(func() {
				ids := a.acl.AuthorizedIDs()
				sent, failed := a.dispatcher.Broadcast(ctx, ids, text)
				logger.Infof("app: weekly broadcast sent=%d failed=%d", sent, len(failed))
			})
			return nil
		})
	}

	return group.Wait()
}
