package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"advisor/internal/extract"
	"advisor/internal/gateway/provider"
	"advisor/internal/logger"
)

// analyzeChartPhoto 收到流程之外的图片就当成请求图表分析。
func (b *Bot) analyzeChartPhoto(ctx context.Context, chatID int64, fileID string) {
	img, err := b.tg.DownloadFile(ctx, fileID)
	if err != nil {
		logger.Errorf("bot: download photo %s failed: %v", fileID, err)
		b.send(ctx, chatID, apologyText, nil)
		return
	}

	reply, err := b.model.CompleteWithImage(ctx, visionSystemPrompt, visionUserPrompt, img)
	if errors.Is(err, provider.ErrModelEmpty) {
		logger.Warnf("bot: empty vision answer, retrying with strict prompt")
		reply, err = b.model.CompleteWithImage(ctx, visionSystemPromptStrict, visionUserPrompt, img)
	}
	if err != nil {
		logger.Errorf("bot: vision completion failed: %v", err)
		b.send(ctx, chatID, apologyText, nil)
		return
	}

	// 模型文本里能抠出参数就附一张结构化小结。
	plan := b.extractor.Extract(reply)
	if plan.HasCore() {
		reply = reply + "\n\n" + renderPlan(plan)
	}
	b.send(ctx, chatID, reply, nil)
}

// renderPlan 解析出来的参数渲染成短小结，警告原样带上。
func renderPlan(p extract.Plan) string {
	var sb strings.Builder
	sb.WriteString("📋 Parsed plan:\n")
	if p.Direction != "" {
		fmt.Fprintf(&sb, "Direction: %s\n", p.Direction)
	}
	if p.Entry != nil {
		fmt.Fprintf(&sb, "Entry: %s\n", formatLevel(*p.Entry))
	}
	if p.Stop != nil {
		fmt.Fprintf(&sb, "Stop: %s\n", formatLevel(*p.Stop))
	}
	if p.TakeProfit != nil {
		fmt.Fprintf(&sb, "Target: %s\n", formatLevel(*p.TakeProfit))
	}
	if p.RiskReward != nil {
		fmt.Fprintf(&sb, "R:R %.2f\n", *p.RiskReward)
	}
	if p.RiskPercent != nil {
		fmt.Fprintf(&sb, "Risk: %.2f%%\n", *p.RiskPercent)
	}
	for _, w := range p.Warnings {
		fmt.Fprintf(&sb, "⚠️ %s\n", w)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatLevel(v float64) string {
	s := fmt.Sprintf("%.4f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
