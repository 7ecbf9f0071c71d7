package indicator

import (
	"fmt"
	"strings"

	talib "github.com/markcheno/go-talib"

	"advisor/internal/gateway/price"
)

// Settings 指标参数；零值取默认。
type Settings struct {
	EMAFast   int
	EMASlow   int
	RSIPeriod int
}

func (s Settings) withDefaults() Settings {
	if s.EMAFast <= 0 {
		s.EMAFast = 20
	}
	if s.EMASlow <= 0 {
		s.EMASlow = 50
	}
	if s.RSIPeriod <= 0 {
		s.RSIPeriod = 14
	}
	return s
}

// Snapshot 一组K线的指标读数，用来拼进模型提示词。
type Snapshot struct {
	Symbol   string
	Interval string
	Close    float64
	EMAFast  float64
	EMASlow  float64
	RSI      float64
	Trend    string
	RSIState string
}

// Compute K线不足时报错，调用方直接跳过增强。
func Compute(symbol, interval string, candles []price.Candle, cfg Settings) (Snapshot, error) {
	cfg = cfg.withDefaults()
	need := cfg.EMASlow + 1
	if len(candles) < need {
		return Snapshot{}, fmt.Errorf("indicator: need at least %d candles, got %d", need, len(candles))
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	emaFast := talib.Ema(closes, cfg.EMAFast)
	emaSlow := talib.Ema(closes, cfg.EMASlow)
	rsi := talib.Rsi(closes, cfg.RSIPeriod)

	last := len(closes) - 1
	snap := Snapshot{
		Symbol:   symbol,
		Interval: interval,
		Close:    closes[last],
		EMAFast:  emaFast[last],
		EMASlow:  emaSlow[last],
		RSI:      rsi[last],
	}
	switch {
	case snap.EMAFast > snap.EMASlow && snap.Close > snap.EMAFast:
		snap.Trend = "uptrend"
	case snap.EMAFast < snap.EMASlow && snap.Close < snap.EMAFast:
		snap.Trend = "downtrend"
	default:
		snap.Trend = "ranging"
	}
	switch {
	case snap.RSI >= 70:
		snap.RSIState = "overbought"
	case snap.RSI <= 30:
		snap.RSIState = "oversold"
	default:
		snap.RSIState = "neutral"
	}
	return snap, nil
}

// PromptBlock 渲染成提示词片段。
func (s Snapshot) PromptBlock() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Market data for %s (%s):\n", s.Symbol, s.Interval)
	fmt.Fprintf(&b, "- last close: %.4f\n", s.Close)
	fmt.Fprintf(&b, "- EMA trend: %s (fast %.4f vs slow %.4f)\n", s.Trend, s.EMAFast, s.EMASlow)
	fmt.Fprintf(&b, "- RSI: %.1f (%s)\n", s.RSI, s.RSIState)
	return b.String()
}
