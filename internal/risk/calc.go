// Package risk computes position sizing for the risk-calculator flow.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNonPositiveDeposit = errors.New("deposit must be positive")
	ErrNonPositiveRisk    = errors.New("risk percent must be positive")
	ErrNonPositiveStop    = errors.New("stop-loss percent must be positive")
)

var hundred = decimal.NewFromInt(100)

// Result 风险计算的输出，金额用 decimal 保住分位精度。
type Result struct {
	RiskAmount   decimal.Decimal
	PositionSize decimal.Decimal
}

// PositionSize 给定本金 D、风险比例 r%、止损幅度 s%：
// riskAmount = D*r/100，positionSize = riskAmount/(s/100)。
// 非正参数在这里拒绝，除法永远不会碰到零。
func PositionSize(deposit, riskPct, stopPct float64) (Result, error) {
	if deposit <= 0 {
		return Result{}, ErrNonPositiveDeposit
	}
	if riskPct <= 0 {
		return Result{}, ErrNonPositiveRisk
	}
	if stopPct <= 0 {
		return Result{}, ErrNonPositiveStop
	}
	d := decimal.NewFromFloat(deposit)
	r := decimal.NewFromFloat(riskPct)
	s := decimal.NewFromFloat(stopPct)

	riskAmount := d.Mul(r).Div(hundred)
	positionSize := riskAmount.Div(s.Div(hundred))
	return Result{RiskAmount: riskAmount, PositionSize: positionSize}, nil
}

// FormatUSD 渲染成 "$500.00" 形式。
func FormatUSD(v decimal.Decimal) string {
	return "$" + v.StringFixed(2)
}
