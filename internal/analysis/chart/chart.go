// Package chart renders a kline snapshot to PNG for published trade setups.
// Rendering needs a headless browser; callers degrade to text-only when it
// is missing or slow.
package chart

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"advisor/internal/gateway/price"
)

const (
	chartWidth    = "900px"
	chartHeight   = "500px"
	renderTimeout = 20 * time.Second
)

// RenderKline 画K线并用 chromedp 截成 PNG。
func RenderKline(ctx context.Context, symbol string, candles []price.Candle) ([]byte, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("chart: no candles for %s", symbol)
	}
	html, err := buildHTML(symbol, candles)
	if err != nil {
		return nil, err
	}
	return screenshot(ctx, html)
}

func buildHTML(symbol string, candles []price.Candle) (string, error) {
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight, BackgroundColor: "#0b1320"}),
		charts.WithTitleOpts(opts.Title{Title: symbol}),
		charts.WithXAxisOpts(opts.XAxis{SplitNumber: 10}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	x := make([]string, 0, len(candles))
	y := make([]opts.KlineData, 0, len(candles))
	for _, c := range candles {
		x = append(x, time.UnixMilli(c.OpenTime).Format("01-02 15:04"))
		y = append(y, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	kline.SetXAxis(x).AddSeries("kline", y)

	dir, err := os.MkdirTemp("", "advisor-chart-*")
	if err != nil {
		return "", fmt.Errorf("chart: temp dir: %w", err)
	}
	path := filepath.Join(dir, "chart.html")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("chart: temp file: %w", err)
	}
	defer f.Close()
	if err := kline.Render(f); err != nil {
		return "", fmt.Errorf("chart: render html: %w", err)
	}
	return path, nil
}

func screenshot(ctx context.Context, htmlPath string) ([]byte, error) {
	defer os.RemoveAll(filepath.Dir(htmlPath))

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancelRun := context.WithTimeout(browserCtx, renderTimeout)
	defer cancelRun()

	var png []byte
	err := chromedp.Run(runCtx,
		chromedp.Navigate("file://"+htmlPath),
		// echarts 动画需要一拍才稳定。
		chromedp.Sleep(700*time.Millisecond),
		chromedp.FullScreenshot(&png, 90),
	)
	if err != nil {
		return nil, fmt.Errorf("chart: screenshot failed: %w", err)
	}
	return png, nil
}
