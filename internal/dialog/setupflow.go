package dialog

const (
	FlowTradeSetup = "trade_setup"

	FieldPair      = "pair"
	FieldDirection = "direction"
	FieldEntry     = "entry"
	FieldStop      = "stop"
	FieldTarget    = "target"
)

// NewTradeSetupFlow 频道发布流程：五问加一张截图。发布动作由调用方
// 注入，流程只负责把字段收齐。
func NewTradeSetupFlow(publish PhotoFinishFunc) *Flow {
	return &Flow{
		Name: FlowTradeSetup,
		Steps: []Step{
			{
				Field:       FieldPair,
				Prompt:      "Which pair is this setup for? (e.g. BTC/USDT)",
				ErrorPrompt: "Pair cannot be empty. Try again:",
				Validate:    NonEmpty,
			},
			{
				Field:       FieldDirection,
				Prompt:      "Long or short?",
				ErrorPrompt: "Please pick Long or Short.",
				Options:     []string{"Long", "Short"},
				Validate:    OneOf("long", "short"),
			},
			{
				Field:       FieldEntry,
				Prompt:      "Entry price:",
				ErrorPrompt: "Entry must be a positive number. Try again:",
				Validate:    PositiveNumber,
			},
			{
				Field:       FieldStop,
				Prompt:      "Stop-loss price:",
				ErrorPrompt: "Stop-loss must be a positive number. Try again:",
				Validate:    PositiveNumber,
			},
			{
				Field:       FieldTarget,
				Prompt:      "Take-profit price:",
				ErrorPrompt: "Take-profit must be a positive number. Try again:",
				Validate:    PositiveNumber,
			},
			{
				Prompt:    "Now send the chart screenshot for this setup.",
				WantPhoto: true,
			},
		},
		FinishPhoto: publish,
	}
}
