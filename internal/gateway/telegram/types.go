package telegram

// Bot API 里本项目用到的子集。

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text"`
	Caption   string      `json:"caption"`
	Photo     []PhotoSize `json:"photo"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type PhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// LargestPhoto Telegram 按尺寸升序给多个缩略图，取最后一个。
func (m *Message) LargestPhoto() (PhotoSize, bool) {
	if m == nil || len(m.Photo) == 0 {
		return PhotoSize{}, false
	}
	return m.Photo[len(m.Photo)-1], true
}

// ReplyKeyboard 简化的回复键盘：一行一个按钮。
type ReplyKeyboard struct {
	Keyboard        [][]keyboardButton `json:"keyboard"`
	ResizeKeyboard  bool               `json:"resize_keyboard"`
	OneTimeKeyboard bool               `json:"one_time_keyboard"`
}

type keyboardButton struct {
	Text string `json:"text"`
}

// NewReplyKeyboard 从按钮文案构建键盘，每行至多两个。
func NewReplyKeyboard(labels ...string) *ReplyKeyboard {
	kb := &ReplyKeyboard{ResizeKeyboard: true}
	var row []keyboardButton
	for _, l := range labels {
		row = append(row, keyboardButton{Text: l})
		if len(row) == 2 {
			kb.Keyboard = append(kb.Keyboard, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb.Keyboard = append(kb.Keyboard, row)
	}
	return kb
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
}

type updatesResponse struct {
	apiResponse
	Result []Update `json:"result"`
}

type fileResponse struct {
	apiResponse
	Result struct {
		FilePath string `json:"file_path"`
	} `json:"result"`
}

type messageResponse struct {
	apiResponse
	Result Message `json:"result"`
}
