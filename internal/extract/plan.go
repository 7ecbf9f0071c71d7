package extract

// Direction 交易方向。
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Advisory texts attached to a parsed plan. Stable strings, asserted in tests.
const (
	WarnInefficientEntry  = "R:R below 1.5 — inefficient entry"
	WarnWeakStructureOnly = "R:R below 3.0 — acceptable only with strong structure"
	WarnDirectionMismatch = "direction/target mismatch"
)

// Plan 从模型自由文本里解析出的交易参数。缺字段是常态不是错误；
// 派生指标每次解析时重新计算，结果值构造后不再修改。
type Plan struct {
	Entry      *float64
	Stop       *float64
	TakeProfit *float64
	Direction  Direction

	RiskAbsolute *float64
	RiskPercent  *float64
	RiskReward   *float64

	Warnings []string
}

// HasCore 入场价和止损价都在才算可用的解析结果。
func (p Plan) HasCore() bool {
	return p.Entry != nil && p.Stop != nil
}

func floatPtr(v float64) *float64 { return &v }
