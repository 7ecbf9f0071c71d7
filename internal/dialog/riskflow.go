package dialog

import (
	"context"
	"fmt"

	"advisor/internal/risk"
)

const (
	FlowRiskCalc = "risk_calc"

	FieldDeposit = "deposit"
	FieldRiskPct = "risk_pct"
	FieldStopPct = "stop_pct"
)

// NewRiskCalcFlow 风控计算器：三问一答，终点纯计算不出网。
func NewRiskCalcFlow() *Flow {
	return &Flow{
		Name: FlowRiskCalc,
		Steps: []Step{
			{
				Field:       FieldDeposit,
				Prompt:      "Enter your deposit size in USD:",
				ErrorPrompt: "Deposit must be a positive number. Try again:",
				Validate:    PositiveNumber,
			},
			{
				Field:       FieldRiskPct,
				Prompt:      "What percent of the deposit are you willing to risk on this trade?",
				ErrorPrompt: "Risk percent must be a positive number. Try again:",
				Validate:    PositiveNumber,
			},
			{
				Field:       FieldStopPct,
				Prompt:      "How far is your stop-loss from the entry, in percent?",
				ErrorPrompt: "Stop-loss percent must be a positive number. Try again:",
				Validate:    PositiveNumber,
			},
		},
		Finish: finishRiskCalc,
	}
}

func finishRiskCalc(_ context.Context, _ int64, fields map[string]string) (string, error) {
	deposit, err := FieldFloat(fields, FieldDeposit)
	if err != nil {
		return "", err
	}
	riskPct, err := FieldFloat(fields, FieldRiskPct)
	if err != nil {
		return "", err
	}
	stopPct, err := FieldFloat(fields, FieldStopPct)
	if err != nil {
		return "", err
	}
	res, err := risk.PositionSize(deposit, riskPct, stopPct)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"Risk amount: %s\nPosition size: %s\n\nWith a %.2f%% stop, a position of %s risks exactly %s of your deposit.",
		risk.FormatUSD(res.RiskAmount),
		risk.FormatUSD(res.PositionSize),
		stopPct,
		risk.FormatUSD(res.PositionSize),
		risk.FormatUSD(res.RiskAmount),
	), nil
}
