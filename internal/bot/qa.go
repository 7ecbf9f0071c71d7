package bot

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"advisor/internal/analysis/indicator"
	"advisor/internal/gateway/provider"
	"advisor/internal/logger"
)

// symbolPattern 从自由文本里捞一个交易对提法，比如 "btc/usdt"、"ETHUSDT"、"sol usd"。
var symbolPattern = regexp.MustCompile(`(?i)\b([a-z]{2,6})[/\- ]?(usdt|usd)\b`)

const qaInterval = "4h"

// answerQuestion 自由问答。行情增强拿不到就不加，模型空回复换
// 强化提示词再试一次，还不行才道歉。
func (b *Bot) answerQuestion(ctx context.Context, chatID int64, question string) {
	question = strings.TrimSpace(question)
	if question == "" {
		return
	}
	prompt := question
	if block := b.marketBlock(ctx, question); block != "" {
		prompt = block + "\n" + question
	}

	reply, err := b.model.Complete(ctx, qaSystemPrompt, prompt)
	if errors.Is(err, provider.ErrModelEmpty) {
		logger.Warnf("bot: empty answer, retrying with strict prompt")
		reply, err = b.model.Complete(ctx, qaSystemPromptStrict, prompt)
	}
	if err != nil {
		logger.Errorf("bot: qa completion failed: %v", err)
		b.send(ctx, chatID, apologyText, nil)
		return
	}
	b.send(ctx, chatID, reply, nil)
}

// marketBlock 问题里提到交易对时抓一段行情塞进提示词。失败静默。
func (b *Bot) marketBlock(ctx context.Context, question string) string {
	if b.quotes == nil {
		return ""
	}
	m := symbolPattern.FindStringSubmatch(question)
	if m == nil {
		return ""
	}
	symbol := strings.ToUpper(m[1] + m[2])
	candles, err := b.quotes.Klines(ctx, symbol, qaInterval, 120)
	if err != nil {
		logger.Debugf("bot: klines for %s unavailable: %v", symbol, err)
		return ""
	}
	snap, err := indicator.Compute(symbol, qaInterval, candles, indicator.Settings{})
	if err != nil {
		logger.Debugf("bot: indicators for %s unavailable: %v", symbol, err)
		return ""
	}
	return snap.PromptBlock()
}
