// Package bot is the Telegram frontend: long-polling update loop, intent
// decoding, access gating and dispatch into the dialog engine.
package bot

import (
	"context"
	"sync"
	"time"

	"advisor/internal/access"
	"advisor/internal/dialog"
	"advisor/internal/extract"
	"advisor/internal/gateway/price"
	"advisor/internal/gateway/telegram"
	"advisor/internal/logger"
)

// API 机器人用到的 Telegram 客户端子集。
type API interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *telegram.ReplyKeyboard) error
	SendPhotoFileID(ctx context.Context, chatID string, fileID, caption string) (int64, error)
	SendPhotoBytes(ctx context.Context, chatID string, name string, data []byte, caption string) (int64, error)
	PinMessage(ctx context.Context, chatID string, messageID int64) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// Model 文本与视觉补全。
type Model interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteWithImage(ctx context.Context, systemPrompt, userPrompt string, image []byte) (string, error)
}

// Quoter 行情增强，可缺席。
type Quoter interface {
	Spot(ctx context.Context, symbol string) (float64, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]price.Candle, error)
}

// Broadcaster 开通通知与群发。
type Broadcaster interface {
	NotifyGrant(ctx context.Context, userID int64)
	Broadcast(ctx context.Context, userIDs []int64, text string) (int, []int64)
}

// Config 前端自身的配置。
type Config struct {
	AdminIDs    []int64
	ChannelID   string
	PollTimeout time.Duration
}

// Bot 把所有引擎拼在一起的前端。
type Bot struct {
	tg        API
	acl       *access.Cache
	engine    *dialog.Engine
	extractor *extract.Extractor
	model     Model
	quotes    Quoter
	notify    Broadcaster

	admins      map[int64]struct{}
	channelID   string
	pollTimeout time.Duration

	// 每个用户一条 FIFO 队列：同一用户的消息严格按到达顺序处理，
	// 不同用户互不阻塞。
	qmu    sync.Mutex
	queues map[int64][]telegram.Update
}

// New 组装前端并注册全部对话流程。
func New(cfg Config, tg API, acl *access.Cache, engine *dialog.Engine, extractor *extract.Extractor, model Model, quotes Quoter, notify Broadcaster) (*Bot, error) {
	admins := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = struct{}{}
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	b := &Bot{
		tg:          tg,
		acl:         acl,
		engine:      engine,
		extractor:   extractor,
		model:       model,
		quotes:      quotes,
		notify:      notify,
		admins:      admins,
		channelID:   cfg.ChannelID,
		pollTimeout: pollTimeout,
		queues:      make(map[int64][]telegram.Update),
	}
	if err := engine.Register(dialog.NewRiskCalcFlow()); err != nil {
		return nil, err
	}
	if err := engine.Register(dialog.NewTradeSetupFlow(b.publishSetup)); err != nil {
		return nil, err
	}
	return b, nil
}

// Run 长轮询主循环，直到 ctx 取消。更新按用户分队列处理：
// 慢模型调用挡不住别的用户，同一用户的输入又不会乱序。
func (b *Bot) Run(ctx context.Context) error {
	logger.Infof("bot: update loop started, poll timeout %s", b.pollTimeout)
	var offset int64
	for {
		select {
		case <-ctx.Done():
			logger.Infof("bot: update loop stopped")
			return nil
		default:
		}
		updates, err := b.tg.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Errorf("bot: getUpdates failed: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(2 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.dispatch(ctx, u)
		}
	}
}

// dispatch 把更新挂到发送者的队列尾部。队列从空变为非空时才起
// worker，保证任意时刻每个用户至多一个处理 goroutine。
func (b *Bot) dispatch(ctx context.Context, u telegram.Update) {
	if u.Message == nil || u.Message.From == nil {
		return
	}
	userID := u.Message.From.ID
	b.qmu.Lock()
	b.queues[userID] = append(b.queues[userID], u)
	if len(b.queues[userID]) == 1 {
		go b.drain(ctx, userID)
	}
	b.qmu.Unlock()
}

// drain 顺序消费一个用户的队列。出队和判空在同一个临界区里完成，
// 队列清空与删除是原子的，不会出现双 worker。
func (b *Bot) drain(ctx context.Context, userID int64) {
	for {
		b.qmu.Lock()
		u := b.queues[userID][0]
		b.qmu.Unlock()

		b.safeHandle(ctx, u)

		b.qmu.Lock()
		rest := b.queues[userID][1:]
		if len(rest) == 0 {
			delete(b.queues, userID)
			b.qmu.Unlock()
			return
		}
		b.queues[userID] = rest
		b.qmu.Unlock()
	}
}

// safeHandle 单条更新的处理入口。业务 panic 不许带崩主循环。
func (b *Bot) safeHandle(ctx context.Context, u telegram.Update) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("bot: panic while handling update %d: %v", u.UpdateID, r)
			if u.Message != nil && u.Message.From != nil {
				_ = b.tg.SendMessage(ctx, u.Message.Chat.ID, apologyText, nil)
			}
		}
	}()
	if u.Message == nil || u.Message.From == nil {
		return
	}
	b.handleMessage(ctx, u.Message)
}

func (b *Bot) isAdmin(userID int64) bool {
	_, ok := b.admins[userID]
	return ok
}

// menuKeyboard 管理员多一个发布按钮。
func (b *Bot) menuKeyboard(userID int64) *telegram.ReplyKeyboard {
	labels := []string{btnRiskCalc, btnAnalyze, btnAsk}
	if b.isAdmin(userID) {
		labels = append(labels, btnPublish)
	}
	return telegram.NewReplyKeyboard(labels...)
}
