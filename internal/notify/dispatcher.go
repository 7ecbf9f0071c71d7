package notify

import (
	"context"

	"advisor/internal/gateway/telegram"
	"advisor/internal/logger"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const onboardingText = "Access confirmed. Welcome aboard!\n\n" +
	"Use the menu to run the risk calculator, request chart analysis or publish a trade setup."

// Sender 出站消息的最小接口，便于测试替身。
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *telegram.ReplyKeyboard) error
}

// Dispatcher 负责开通通知与群发。群发限速贴着 Telegram 的 ~30 msg/s。
type Dispatcher struct {
	sender  Sender
	limiter *rate.Limiter
}

func NewDispatcher(sender Sender, ratePerSec float64) *Dispatcher {
	if ratePerSec <= 0 {
		ratePerSec = 20
	}
	return &Dispatcher{
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
	}
}

// NotifyGrant 固定的开通欢迎语。失败只记日志，不外抛。
func (d *Dispatcher) NotifyGrant(ctx context.Context, userID int64) {
	if err := d.sender.SendMessage(ctx, userID, onboardingText, nil); err != nil {
		logger.Warnf("notify: onboarding message to %d failed: %v", userID, err)
	}
}

// Broadcast 尽力而为的扇出：单个失败继续发，永不因部分失败报错。
func (d *Dispatcher) Broadcast(ctx context.Context, userIDs []int64, text string) (int, []int64) {
	batch := uuid.NewString()
	logger.Infof("broadcast %s: %d recipients", batch, len(userIDs))
	sent := 0
	var failed []int64
	for _, id := range userIDs {
		if err := d.limiter.Wait(ctx); err != nil {
			// 上下文取消：剩余的全部算失败。
			for _, rest := range userIDs[sent+len(failed):] {
				failed = append(failed, rest)
			}
			logger.Warnf("broadcast %s: cancelled after %d sends", batch, sent)
			return sent, failed
		}
		if err := d.sender.SendMessage(ctx, id, text, nil); err != nil {
			logger.Warnf("broadcast %s: send to %d failed: %v", batch, id, err)
			failed = append(failed, id)
			continue
		}
		sent++
	}
	logger.Infof("broadcast %s: done sent=%d failed=%d", batch, sent, len(failed))
	return sent, failed
}
