// Package telegram is a thin Bot API client: long polling in, messages out.
// Delivery guarantees stay on Telegram's side; failures here are logged by
// callers and never treated as fatal.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://api.telegram.org"

// Client 单个 bot 的 API 句柄。
type Client struct {
	http  *resty.Client
	token string
}

func NewClient(token string, pollTimeout time.Duration) *Client {
	http := resty.New().
		SetBaseURL(defaultBaseURL).
		// getUpdates 挂起到 pollTimeout，客户端超时要留出余量。
		SetTimeout(pollTimeout + 15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)
	return &Client{http: http, token: token}
}

// SetBaseURL 测试时指向 httptest server。
func (c *Client) SetBaseURL(u string) { c.http.SetBaseURL(u) }

func (c *Client) method(name string) string {
	return fmt.Sprintf("/bot%s/%s", c.token, name)
}

// GetUpdates 长轮询一批更新。offset 为上一批最大 update_id+1。
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var out updatesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"offset":          offset,
			"timeout":         int(timeout.Seconds()),
			"allowed_updates": []string{"message"},
		}).
		SetResult(&out).
		Post(c.method("getUpdates"))
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates: %w", err)
	}
	if err := apiErr(resp, &out.apiResponse); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// SendMessage 发送文本；keyboard 可为 nil。
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, keyboard *ReplyKeyboard) error {
	body := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if keyboard != nil {
		body["reply_markup"] = keyboard
	}
	var out messageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post(c.method("sendMessage"))
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	return apiErr(resp, &out.apiResponse)
}

// SendMessageTo 频道等字符串 chat id 的变体。
func (c *Client) SendMessageTo(ctx context.Context, chatID string, text string) error {
	var out messageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"chat_id": chatID, "text": text}).
		SetResult(&out).
		Post(c.method("sendMessage"))
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	return apiErr(resp, &out.apiResponse)
}

// SendPhotoFileID 转发已在 Telegram 服务器上的图片。
func (c *Client) SendPhotoFileID(ctx context.Context, chatID string, fileID, caption string) (int64, error) {
	var out messageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"chat_id": chatID, "photo": fileID, "caption": caption}).
		SetResult(&out).
		Post(c.method("sendPhoto"))
	if err != nil {
		return 0, fmt.Errorf("telegram sendPhoto: %w", err)
	}
	if err := apiErr(resp, &out.apiResponse); err != nil {
		return 0, err
	}
	return out.Result.MessageID, nil
}

// SendPhotoBytes 上传本地渲染好的图片。
func (c *Client) SendPhotoBytes(ctx context.Context, chatID string, name string, data []byte, caption string) (int64, error) {
	var out messageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("photo", name, bytes.NewReader(data)).
		SetFormData(map[string]string{"chat_id": chatID, "caption": caption}).
		SetResult(&out).
		Post(c.method("sendPhoto"))
	if err != nil {
		return 0, fmt.Errorf("telegram sendPhoto upload: %w", err)
	}
	if err := apiErr(resp, &out.apiResponse); err != nil {
		return 0, err
	}
	return out.Result.MessageID, nil
}

// PinMessage 置顶消息，失败只由调用方记日志。
func (c *Client) PinMessage(ctx context.Context, chatID string, messageID int64) error {
	var out apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id":              chatID,
			"message_id":           messageID,
			"disable_notification": true,
		}).
		SetResult(&out).
		Post(c.method("pinChatMessage"))
	if err != nil {
		return fmt.Errorf("telegram pinChatMessage: %w", err)
	}
	return apiErr(resp, &out)
}

// DownloadFile 取用户发来的图片内容（喂给视觉模型用）。
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	var meta fileResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"file_id": fileID}).
		SetResult(&meta).
		Post(c.method("getFile"))
	if err != nil {
		return nil, fmt.Errorf("telegram getFile: %w", err)
	}
	if err := apiErr(resp, &meta.apiResponse); err != nil {
		return nil, err
	}
	dl, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/file/bot%s/%s", c.token, meta.Result.FilePath))
	if err != nil {
		return nil, fmt.Errorf("telegram file download: %w", err)
	}
	if dl.StatusCode() != 200 {
		return nil, fmt.Errorf("telegram file download: status=%d", dl.StatusCode())
	}
	return dl.Body(), nil
}

func apiErr(resp *resty.Response, api *apiResponse) error {
	if resp.IsError() || !api.OK {
		desc := api.Description
		if desc == "" {
			desc = resp.Status()
		}
		return fmt.Errorf("telegram api: code=%s %s", strconv.Itoa(api.ErrorCode), desc)
	}
	return nil
}
