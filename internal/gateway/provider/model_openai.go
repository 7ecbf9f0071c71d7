package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"advisor/internal/logger"
)

// 中文说明：
// 兼容 OpenAI / DeepSeek / Qwen 的聊天补全客户端（/v1/chat/completions），
// 支持视觉输入（data URI 形式的图片分片）。

// ErrModelEmpty 模型给了空回复或明确拒答；对调用方来说可恢复，
// 允许换强化后的提示词重试一次。
var ErrModelEmpty = errors.New("model returned empty or refused")

var refusalMarkers = []string{
	"i can't help with",
	"i cannot help with",
	"i'm unable to",
	"as an ai",
}

type Client struct {
	BaseURL     string
	APIKey      string
	Model       string
	VisionModel string
	Timeout     time.Duration
	// 429/5xx 的有限重试次数；0 取默认 2。
	MaxRetries int

	httpc *http.Client
}

func NewClient(baseURL, apiKey, model, visionModel string, timeout time.Duration, maxRetries int) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if visionModel == "" {
		visionModel = model
	}
	return &Client{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		Model:       model,
		VisionModel: visionModel,
		Timeout:     timeout,
		MaxRetries:  maxRetries,
		httpc:       &http.Client{Timeout: timeout},
	}
}

// Complete 纯文本补全。
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []map[string]any{}
	if systemPrompt != "" {
		messages = append(messages, map[string]any{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]any{"role": "user", "content": userPrompt})
	return c.call(ctx, c.Model, messages)
}

// CompleteWithImage 带一张 PNG/JPEG 截图的视觉补全。
func (c *Client) CompleteWithImage(ctx context.Context, systemPrompt, userPrompt string, image []byte) (string, error) {
	if len(image) == 0 {
		return c.Complete(ctx, systemPrompt, userPrompt)
	}
	dataURI := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	content := []map[string]any{
		{"type": "text", "text": userPrompt},
		{"type": "image_url", "image_url": map[string]any{"url": dataURI}},
	}
	messages := []map[string]any{}
	if systemPrompt != "" {
		messages = append(messages, map[string]any{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]any{"role": "user", "content": content})
	return c.call(ctx, c.VisionModel, messages)
}

func (c *Client) call(ctx context.Context, model string, messages []map[string]any) (string, error) {
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	// 规范化 BaseURL，容忍把 /chat/completions 也写进配置的情况。
	url := c.BaseURL
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimRight(url, "/")
	url = strings.TrimSuffix(url, "/chat/completions")
	url = url + "/chat/completions"

	body := map[string]any{"model": model, "messages": messages, "temperature": 0.5}
	b, _ := json.Marshal(body)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt == 0 {
			logger.Debugf("[AI] request: POST %s model=%s key=****%s bytes=%d",
				url, model, keyTail(c.APIKey), len(b))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			// 超时与网络错误同等对待，交给上层按失败处理。
			return "", fmt.Errorf("model call failed: %w", err)
		}
		if resp.StatusCode/100 == 2 {
			var r struct {
				Choices []struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
				} `json:"choices"`
			}
			derr := json.NewDecoder(resp.Body).Decode(&r)
			resp.Body.Close()
			if derr != nil {
				return "", fmt.Errorf("model response decode failed: %w", derr)
			}
			if len(r.Choices) == 0 {
				return "", ErrModelEmpty
			}
			content := strings.TrimSpace(r.Choices[0].Message.Content)
			if content == "" || isRefusal(content) {
				return "", ErrModelEmpty
			}
			return content, nil
		}

		var eresp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eresp)
		resp.Body.Close()
		msg := strings.TrimSpace(eresp.Error.Message)
		if msg == "" {
			msg = resp.Status
		}
		lastErr = fmt.Errorf("model status=%d: %s", resp.StatusCode, msg)
		if retryable(resp.StatusCode) && attempt < maxRetries {
			wait := retryAfter(resp.Header.Get("Retry-After"))
			if wait == 0 {
				// 指数退避：0.8s, 1.6s, 3.2s ...
				wait = (800 * time.Millisecond) << attempt
				if wait > 8*time.Second {
					wait = 8 * time.Second
				}
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		break
	}
	return "", lastErr
}

func retryable(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func isRefusal(content string) bool {
	lower := strings.ToLower(content)
	for _, marker := range refusalMarkers {
		if strings.HasPrefix(lower, marker) {
			return true
		}
	}
	return false
}

func keyTail(key string) string {
	if len(key) > 4 {
		return key[len(key)-4:]
	}
	return key
}
