package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"advisor/internal/access"
	"advisor/internal/dialog"
	"advisor/internal/gateway/telegram"
	"advisor/internal/logger"
	"advisor/internal/pkg/text"
)

// telegram 消息上限 4096，留点余量给省略号。
const replyLimit = 4000

func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	in := decodeIntent(msg)

	if in.adminOnly() && !b.isAdmin(userID) {
		b.send(ctx, chatID, "Unknown command.", nil)
		return
	}

	if !b.isAdmin(userID) && !b.acl.IsAuthorized(ctx, userID) {
		// 未授权用户唯一能看到的就是付款指引。
		b.send(ctx, chatID, deniedText, nil)
		return
	}

	switch in {
	case intentStart:
		b.engine.Abort(userID)
		b.send(ctx, chatID, welcomeText, b.menuKeyboard(userID))
	case intentMenu:
		b.engine.Abort(userID)
		b.send(ctx, chatID, "Main menu:", b.menuKeyboard(userID))
	case intentRiskCalc:
		out, err := b.engine.Start(userID, dialog.FlowRiskCalc)
		if err != nil {
			logger.Errorf("bot: start risk flow for %d: %v", userID, err)
			b.send(ctx, chatID, apologyText, nil)
			return
		}
		b.renderOutcome(ctx, chatID, userID, out)
	case intentPublishSetup:
		out, err := b.engine.Start(userID, dialog.FlowTradeSetup)
		if err != nil {
			logger.Errorf("bot: start setup flow for %d: %v", userID, err)
			b.send(ctx, chatID, apologyText, nil)
			return
		}
		b.renderOutcome(ctx, chatID, userID, out)
	case intentAnalyze:
		b.engine.Abort(userID)
		b.send(ctx, chatID, analyzeHintText, b.menuKeyboard(userID))
	case intentAsk:
		b.engine.Abort(userID)
		b.send(ctx, chatID, askHintText, b.menuKeyboard(userID))
	case intentRefreshAccess:
		b.handleRefreshAccess(ctx, chatID)
	case intentGrant:
		b.handleGrant(ctx, chatID, msg.Text)
	case intentBroadcast:
		b.handleBroadcast(ctx, chatID, msg.Text)
	case intentUnknownCommand:
		b.send(ctx, chatID, "Unknown command. Try /menu.", nil)
	case intentPhoto:
		photo, _ := msg.LargestPhoto()
		out := b.engine.HandlePhoto(ctx, userID, photo.FileID)
		if out.Kind == dialog.OutcomeNone {
			b.analyzeChartPhoto(ctx, chatID, photo.FileID)
			return
		}
		b.renderOutcome(ctx, chatID, userID, out)
	default:
		out := b.engine.HandleText(ctx, userID, msg.Text)
		if out.Kind == dialog.OutcomeNone {
			b.answerQuestion(ctx, chatID, msg.Text)
			return
		}
		b.renderOutcome(ctx, chatID, userID, out)
	}
}

// renderOutcome 状态机产物到消息的唯一翻译点。
func (b *Bot) renderOutcome(ctx context.Context, chatID, userID int64, out dialog.Outcome) {
	switch out.Kind {
	case dialog.OutcomePrompt, dialog.OutcomeReprompt, dialog.OutcomeNeedPhoto:
		var kb *telegram.ReplyKeyboard
		if len(out.Options) > 0 {
			kb = telegram.NewReplyKeyboard(out.Options...)
		}
		b.send(ctx, chatID, out.Prompt, kb)
	case dialog.OutcomeDone:
		if out.Err != nil {
			logger.Errorf("bot: flow finish for %d failed: %v", userID, out.Err)
			b.send(ctx, chatID, apologyText, b.menuKeyboard(userID))
			return
		}
		b.send(ctx, chatID, out.Reply, b.menuKeyboard(userID))
	case dialog.OutcomeAborted:
		b.send(ctx, chatID, cancelledText, b.menuKeyboard(userID))
	case dialog.OutcomeStale, dialog.OutcomeNone:
		// 没有要说的。
	}
}

func (b *Bot) handleRefreshAccess(ctx context.Context, chatID int64) {
	n, err := b.acl.Refresh(ctx)
	if err != nil {
		// 管理员要看到原始错误，不给道歉文案。
		b.send(ctx, chatID, fmt.Sprintf("Refresh failed: %v", err), nil)
		return
	}
	b.send(ctx, chatID, fmt.Sprintf("Access list refreshed: %d users.", n), nil)
}

// handleGrant "/grant <user_id> [username]" 手工开通。
func (b *Bot) handleGrant(ctx context.Context, chatID int64, raw string) {
	parts := strings.Fields(raw)
	if len(parts) < 2 {
		b.send(ctx, chatID, "Usage: /grant <user_id> [username]", nil)
		return
	}
	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || userID <= 0 {
		b.send(ctx, chatID, fmt.Sprintf("Bad user id %q.", parts[1]), nil)
		return
	}
	username := ""
	if len(parts) > 2 {
		username = parts[2]
	}
	rec := access.Record{
		UserID:    userID,
		Username:  username,
		Source:    access.SourceAdmin,
		GrantedAt: time.Now(),
	}
	if err := b.acl.Grant(ctx, rec); err != nil {
		b.send(ctx, chatID, fmt.Sprintf("Granted in memory, but persistence failed: %v", err), nil)
	} else {
		b.send(ctx, chatID, fmt.Sprintf("Granted access to %d.", userID), nil)
	}
	b.notify.NotifyGrant(ctx, userID)
}

// handleBroadcast "/broadcast <text>" 发给全部已授权用户。
func (b *Bot) handleBroadcast(ctx context.Context, chatID int64, raw string) {
	body := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "/broadcast"))
	if body == "" {
		b.send(ctx, chatID, "Usage: /broadcast <message>", nil)
		return
	}
	ids := b.acl.AuthorizedIDs()
	sent, failed := b.notify.Broadcast(ctx, ids, body)
	b.send(ctx, chatID, fmt.Sprintf("Broadcast done: %d sent, %d failed.", sent, len(failed)), nil)
}

func (b *Bot) send(ctx context.Context, chatID int64, msg string, kb *telegram.ReplyKeyboard) {
	if err := b.tg.SendMessage(ctx, chatID, text.TruncateRunes(msg, replyLimit), kb); err != nil {
		logger.Errorf("bot: send to %d failed: %v", chatID, err)
	}
}
