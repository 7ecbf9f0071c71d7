package bot

// 用户可见文案与模型提示词集中放这里，方便校对。

const (
	welcomeText = "Welcome! I'm your trading assistant.\n\n" +
		"I can size positions, analyze chart screenshots and answer trading questions.\n" +
		"Pick an action from the menu below."

	deniedText = "This bot is available to subscribers only.\n\n" +
		"To get access, complete the payment via the link from the channel description. " +
		"Access is activated automatically within a minute after payment."

	apologyText = "Something went wrong on my side. Please try again in a moment."

	cancelledText = "Cancelled. Back to the menu."

	analyzeHintText = "Send me a chart screenshot and I'll break it down: trend, levels and a possible plan."

	askHintText = "Ask me anything about trading, risk or a specific pair."
)

const qaSystemPrompt = "You are a seasoned trading mentor. Answer the user's question about " +
	"trading, markets or risk management. Be concrete and practical, keep it under 200 words. " +
	"If market data is provided, ground your answer in it. Do not give financial advice " +
	"disclaimers, the audience knows the risks."

const qaSystemPromptStrict = qaSystemPrompt + " You must produce a substantive answer. " +
	"Refusing or returning an empty message is not acceptable; if the question is unclear, " +
	"answer the most likely interpretation."

const visionSystemPrompt = "You are a professional technical analyst. The user sends a chart " +
	"screenshot. Describe the trend, key support and resistance levels and, if the structure " +
	"allows, propose a trade plan with explicit numeric levels. Label them exactly as " +
	"'Entry:', 'Stop:' and 'Target:' each on its own line. Keep it under 250 words."

const visionSystemPromptStrict = visionSystemPrompt + " You must produce an analysis. " +
	"Refusing or returning an empty message is not acceptable; if the image is unclear, " +
	"describe what is visible and say what is missing."

const visionUserPrompt = "Analyze this chart."
