package notify

import (
	"context"
	"errors"
	"testing"

	"advisor/internal/gateway/telegram"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent    []int64
	failIDs map[int64]bool
	texts   []string
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string, _ *telegram.ReplyKeyboard) error {
	if f.failIDs[chatID] {
		return errors.New("blocked by user")
	}
	f.sent = append(f.sent, chatID)
	f.texts = append(f.texts, text)
	return nil
}

func TestBroadcastCountsPartialFailures(t *testing.T) {
	sender := &fakeSender{failIDs: map[int64]bool{20: true, 40: true}}
	d := NewDispatcher(sender, 1000)

	sent, failed := d.Broadcast(context.Background(), []int64{10, 20, 30, 40, 50}, "weekly digest")

	assert.Equal(t, 3, sent)
	assert.Equal(t, []int64{20, 40}, failed)
	assert.Equal(t, []int64{10, 30, 50}, sender.sent)
}

func TestBroadcastEmptyList(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, 1000)

	sent, failed := d.Broadcast(context.Background(), nil, "hello")
	assert.Zero(t, sent)
	assert.Empty(t, failed)
}

func TestBroadcastCancelledContext(t *testing.T) {
	sender := &fakeSender{}
	// 1 msg/s with burst 1: the second Wait blocks long enough for cancel to win.
	d := NewDispatcher(sender, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sent, failed := d.Broadcast(ctx, []int64{1, 2, 3}, "hello")
	assert.Zero(t, sent)
	assert.Len(t, failed, 3)
}

func TestNotifyGrantSendsOnboarding(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, 1000)

	d.NotifyGrant(context.Background(), 777)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(777), sender.sent[0])
	assert.Contains(t, sender.texts[0], "Access confirmed")
}

func TestNotifyGrantSwallowsSendError(t *testing.T) {
	sender := &fakeSender{failIDs: map[int64]bool{5: true}}
	d := NewDispatcher(sender, 1000)

	// 不应 panic，也没有错误外泄。
	d.NotifyGrant(context.Background(), 5)
	assert.Empty(t, sender.sent)
}
