package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"advisor/internal/analysis/chart"
	"advisor/internal/dialog"
	"advisor/internal/logger"
)

const setupChartInterval = "4h"

// publishSetup 发布流程的终点：拼标题、发频道、置顶。
// 优先用实时K线重新画图，画不出就退回分析师自己发的截图。
func (b *Bot) publishSetup(ctx context.Context, userID int64, photoFileID string, fields map[string]string) (string, error) {
	if b.channelID == "" {
		return "", errors.New("channel is not configured")
	}
	caption, err := buildSetupCaption(fields)
	if err != nil {
		return "", err
	}

	msgID, published := b.publishRendered(ctx, fields[dialog.FieldPair], caption)
	if !published {
		msgID, err = b.tg.SendPhotoFileID(ctx, b.channelID, photoFileID, caption)
		if err != nil {
			return "", fmt.Errorf("publish to channel: %w", err)
		}
	}
	if err := b.tg.PinMessage(ctx, b.channelID, msgID); err != nil {
		logger.Warnf("bot: pin message %d in %s failed: %v", msgID, b.channelID, err)
	}
	logger.Infof("bot: setup published to %s by %d, message %d", b.channelID, userID, msgID)
	return "Setup published to the channel. 📣", nil
}

// publishRendered 实时图路径。任何一步失败都只降级，不报错。
func (b *Bot) publishRendered(ctx context.Context, pair, caption string) (int64, bool) {
	if b.quotes == nil {
		return 0, false
	}
	candles, err := b.quotes.Klines(ctx, pair, setupChartInterval, 120)
	if err != nil {
		logger.Debugf("bot: klines for setup chart unavailable: %v", err)
		return 0, false
	}
	png, err := chart.RenderKline(ctx, strings.ToUpper(pair), candles)
	if err != nil {
		logger.Debugf("bot: chart render unavailable: %v", err)
		return 0, false
	}
	msgID, err := b.tg.SendPhotoBytes(ctx, b.channelID, "chart.png", png, caption)
	if err != nil {
		logger.Warnf("bot: send rendered chart failed: %v", err)
		return 0, false
	}
	return msgID, true
}

// buildSetupCaption 字段已被流程校验过，这里只是排版加一个R:R。
func buildSetupCaption(fields map[string]string) (string, error) {
	entry, err := dialog.FieldFloat(fields, dialog.FieldEntry)
	if err != nil {
		return "", err
	}
	stop, err := dialog.FieldFloat(fields, dialog.FieldStop)
	if err != nil {
		return "", err
	}
	target, err := dialog.FieldFloat(fields, dialog.FieldTarget)
	if err != nil {
		return "", err
	}
	pair := strings.ToUpper(strings.TrimSpace(fields[dialog.FieldPair]))
	direction := strings.ToUpper(fields[dialog.FieldDirection])
	arrow := "🟢"
	if direction == "SHORT" {
		arrow = "🔴"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s — %s\n\n", arrow, pair, direction)
	fmt.Fprintf(&sb, "🎯 Entry: %s\n", formatLevel(entry))
	fmt.Fprintf(&sb, "🛑 Stop: %s\n", formatLevel(stop))
	fmt.Fprintf(&sb, "💰 Target: %s\n", formatLevel(target))
	if risk := math.Abs(entry - stop); risk > 0 {
		fmt.Fprintf(&sb, "\nR:R %.2f", math.Abs(target-entry)/risk)
	}
	return sb.String(), nil
}
