package bot

import (
	"strings"

	"advisor/internal/gateway/telegram"
)

// 主菜单按钮文案。回复键盘回传的就是这些字符串。
const (
	btnRiskCalc = "📐 Risk calculator"
	btnAnalyze  = "📊 Chart analysis"
	btnAsk      = "💬 Ask a question"
	btnPublish  = "📤 Publish setup"
)

type intent int

const (
	intentText intent = iota
	intentPhoto
	intentStart
	intentMenu
	intentRiskCalc
	intentAnalyze
	intentAsk
	intentPublishSetup
	intentRefreshAccess
	intentGrant
	intentBroadcast
	intentUnknownCommand
)

// adminOnly 这些意图只对管理员开放。
func (i intent) adminOnly() bool {
	switch i {
	case intentPublishSetup, intentRefreshAccess, intentGrant, intentBroadcast:
		return true
	}
	return false
}

// decodeIntent 在入口处把更新归一成意图，后面的代码不再碰原始文本匹配。
func decodeIntent(msg *telegram.Message) intent {
	if _, ok := msg.LargestPhoto(); ok {
		return intentPhoto
	}
	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, "/") {
		cmd := strings.Fields(text)[0]
		// "/start@SomeBot" 群里会带后缀。
		if at := strings.Index(cmd, "@"); at > 0 {
			cmd = cmd[:at]
		}
		switch cmd {
		case "/start":
			return intentStart
		case "/menu":
			return intentMenu
		case "/risk":
			return intentRiskCalc
		case "/analyze":
			return intentAnalyze
		case "/publish":
			return intentPublishSetup
		case "/refresh_access":
			return intentRefreshAccess
		case "/grant":
			return intentGrant
		case "/broadcast":
			return intentBroadcast
		default:
			return intentUnknownCommand
		}
	}
	switch text {
	case btnRiskCalc:
		return intentRiskCalc
	case btnAnalyze:
		return intentAnalyze
	case btnAsk:
		return intentAsk
	case btnPublish:
		return intentPublishSetup
	}
	return intentText
}
