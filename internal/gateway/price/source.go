// Package price wraps the Binance spot REST API. Quotes are optional
// enrichment for prompts and captions; every caller must survive
// ErrUnavailable.
package price

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"advisor/internal/pkg/circuit"

	"github.com/adshao/go-binance/v2"
)

// ErrUnavailable 行情拿不到。调用方跳过增强，不算硬错误。
var ErrUnavailable = errors.New("price unavailable")

type Candle struct {
	OpenTime int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

type Config struct {
	RESTBaseURL      string
	Timeout          time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Source 基于 go-binance SDK；熔断器挡住持续挂掉的上游。
type Source struct {
	client  *binance.Client
	timeout time.Duration
	breaker *circuit.Breaker
}

func New(cfg Config) *Source {
	client := binance.NewClient("", "")
	if base := strings.TrimSpace(cfg.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Source{
		client:  client,
		timeout: timeout,
		breaker: circuit.NewBreaker("binance-spot", cfg.BreakerThreshold, cfg.BreakerCooldown),
	}
}

// Spot 现价。符号写法 "BTCUSDT"。
func (s *Source) Spot(ctx context.Context, symbol string) (float64, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return 0, fmt.Errorf("%w: empty symbol", ErrUnavailable)
	}
	if !s.breaker.Allow() {
		return 0, fmt.Errorf("%w: circuit open", ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	prices, err := s.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil || len(prices) == 0 {
		s.breaker.RecordFailure()
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	v, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		s.breaker.RecordFailure()
		return 0, fmt.Errorf("%w: bad price %q", ErrUnavailable, prices[0].Price)
	}
	s.breaker.RecordSuccess()
	return v, nil
}

// Klines 近期K线，供指标增强用。
func (s *Source) Klines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrUnavailable)
	}
	if !s.breaker.Allow() {
		return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
	}
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	raw, err := s.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		s.breaker.RecordFailure()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.breaker.RecordSuccess()
	out := make([]Candle, 0, len(raw))
	for _, k := range raw {
		out = append(out, Candle{
			OpenTime: k.OpenTime,
			Open:     parseF(k.Open),
			High:     parseF(k.High),
			Low:      parseF(k.Low),
			Close:    parseF(k.Close),
			Volume:   parseF(k.Volume),
		})
	}
	return out, nil
}

// normalizeSymbol "btc/usdt"、"BTC-USDT" 等写法统一成交易所格式。
func normalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(s)
	return s
}

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
