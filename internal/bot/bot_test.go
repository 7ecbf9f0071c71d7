package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"advisor/internal/access"
	"advisor/internal/dialog"
	"advisor/internal/extract"
	"advisor/internal/gateway/price"
	"advisor/internal/gateway/provider"
	"advisor/internal/gateway/telegram"
	"advisor/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	chatID   int64
	text     string
	keyboard *telegram.ReplyKeyboard
}

type fakeAPI struct {
	mu       sync.Mutex
	messages []sentMessage
	photos   []string // captions sent to the channel
	pinned   []int64
	fileData []byte
	fileErr  error
}

func (f *fakeAPI) GetUpdates(context.Context, int64, time.Duration) ([]telegram.Update, error) {
	return nil, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, chatID int64, text string, kb *telegram.ReplyKeyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{chatID: chatID, text: text, keyboard: kb})
	return nil
}

func (f *fakeAPI) SendPhotoFileID(_ context.Context, _ string, _, caption string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, caption)
	return 900, nil
}

func (f *fakeAPI) SendPhotoBytes(_ context.Context, _ string, _ string, _ []byte, caption string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, caption)
	return 901, nil
}

func (f *fakeAPI) PinMessage(_ context.Context, _ string, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned = append(f.pinned, messageID)
	return nil
}

func (f *fakeAPI) DownloadFile(context.Context, string) ([]byte, error) {
	if f.fileErr != nil {
		return nil, f.fileErr
	}
	if f.fileData != nil {
		return f.fileData, nil
	}
	return []byte{0xff, 0xd8}, nil
}

func (f *fakeAPI) lastText(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.messages)
	return f.messages[len(f.messages)-1]
}

func (f *fakeAPI) textsTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.messages {
		if m.chatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

func (f *fakeAPI) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeModel struct {
	replies []string
	errs    []error
	calls   int
	systems []string
	panicOn bool
	block   chan struct{} // non-nil: Complete waits until closed
}

func (m *fakeModel) next() (string, error) {
	i := m.calls
	m.calls++
	var reply string
	var err error
	if i < len(m.replies) {
		reply = m.replies[i]
	}
	if i < len(m.errs) {
		err = m.errs[i]
	}
	return reply, err
}

func (m *fakeModel) Complete(_ context.Context, system, _ string) (string, error) {
	if m.panicOn {
		panic("model exploded")
	}
	if m.block != nil {
		<-m.block
	}
	m.systems = append(m.systems, system)
	return m.next()
}

func (m *fakeModel) CompleteWithImage(_ context.Context, system, _ string, _ []byte) (string, error) {
	m.systems = append(m.systems, system)
	return m.next()
}

type fakeQuoter struct{}

func (fakeQuoter) Spot(context.Context, string) (float64, error) {
	return 0, price.ErrUnavailable
}

func (fakeQuoter) Klines(context.Context, string, string, int) ([]price.Candle, error) {
	return nil, price.ErrUnavailable
}

type fakeBroadcaster struct {
	notified  []int64
	lastText  string
	lastIDs   []int64
	sentCount int
}

func (f *fakeBroadcaster) NotifyGrant(_ context.Context, userID int64) {
	f.notified = append(f.notified, userID)
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, ids []int64, text string) (int, []int64) {
	f.lastIDs = ids
	f.lastText = text
	f.sentCount = len(ids)
	return len(ids), nil
}

type memStore struct {
	mu      sync.Mutex
	records []access.Record
}

func (s *memStore) Append(_ context.Context, rec access.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memStore) All(context.Context) ([]access.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]access.Record(nil), s.records...), nil
}

const (
	memberID = int64(100)
	adminID  = int64(1)
	guestID  = int64(200)
)

type fixture struct {
	bot   *Bot
	api   *fakeAPI
	model *fakeModel
	bcast *fakeBroadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &memStore{records: []access.Record{
		{UserID: memberID, Source: access.SourcePayment, GrantedAt: time.Now()},
	}}
	acl := access.NewCache(store, 5*time.Minute)
	engine := dialog.NewEngine(session.NewStore(nil), []string{"cancel", "отмена"})
	api := &fakeAPI{}
	model := &fakeModel{}
	bcast := &fakeBroadcaster{}
	b, err := New(
		Config{AdminIDs: []int64{adminID}, ChannelID: "@signals", PollTimeout: time.Second},
		api, acl, engine, extract.NewExtractor(nil), model, fakeQuoter{}, bcast,
	)
	require.NoError(t, err)
	return &fixture{bot: b, api: api, model: model, bcast: bcast}
}

func textMsg(userID int64, body string) *telegram.Message {
	return &telegram.Message{
		From: &telegram.User{ID: userID},
		Chat: telegram.Chat{ID: userID},
		Text: body,
	}
}

func photoMsg(userID int64) *telegram.Message {
	return &telegram.Message{
		From:  &telegram.User{ID: userID},
		Chat:  telegram.Chat{ID: userID},
		Photo: []telegram.PhotoSize{{FileID: "small", Width: 90}, {FileID: "big", Width: 800}},
	}
}

func TestDecodeIntent(t *testing.T) {
	cases := []struct {
		msg  *telegram.Message
		want intent
	}{
		{textMsg(1, "/start"), intentStart},
		{textMsg(1, "/start@MyBot"), intentStart},
		{textMsg(1, "/menu"), intentMenu},
		{textMsg(1, "/risk"), intentRiskCalc},
		{textMsg(1, "/grant 5 bob"), intentGrant},
		{textMsg(1, "/broadcast hello"), intentBroadcast},
		{textMsg(1, "/refresh_access"), intentRefreshAccess},
		{textMsg(1, "/frobnicate"), intentUnknownCommand},
		{textMsg(1, btnRiskCalc), intentRiskCalc},
		{textMsg(1, btnAnalyze), intentAnalyze},
		{textMsg(1, btnPublish), intentPublishSetup},
		{textMsg(1, "what do you think about btc?"), intentText},
		{photoMsg(1), intentPhoto},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, decodeIntent(tc.msg), tc.msg.Text)
	}
}

func TestUnauthorizedUserGetsPaymentInstructions(t *testing.T) {
	f := newFixture(t)

	f.bot.handleMessage(context.Background(), textMsg(guestID, "/start"))

	assert.Equal(t, deniedText, f.api.lastText(t).text)
}

func TestAdminOnlyCommandHiddenFromMembers(t *testing.T) {
	f := newFixture(t)

	f.bot.handleMessage(context.Background(), textMsg(memberID, "/broadcast yo"))

	assert.Equal(t, "Unknown command.", f.api.lastText(t).text)
	assert.Empty(t, f.bcast.lastText)
}

func TestStartShowsMenu(t *testing.T) {
	f := newFixture(t)

	f.bot.handleMessage(context.Background(), textMsg(memberID, "/start"))

	last := f.api.lastText(t)
	assert.Equal(t, welcomeText, last.text)
	require.NotNil(t, last.keyboard)
}

func TestRiskCalcFlowThroughFrontend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleMessage(ctx, textMsg(memberID, "/risk"))
	assert.Contains(t, f.api.lastText(t).text, "deposit")

	f.bot.handleMessage(ctx, textMsg(memberID, "1000"))
	f.bot.handleMessage(ctx, textMsg(memberID, "2"))
	f.bot.handleMessage(ctx, textMsg(memberID, "4"))

	last := f.api.lastText(t)
	assert.Contains(t, last.text, "$20.00")
	assert.Contains(t, last.text, "$500.00")
	require.NotNil(t, last.keyboard)
}

func TestFreeTextGoesToModel(t *testing.T) {
	f := newFixture(t)
	f.model.replies = []string{"Watch the 64k level."}

	f.bot.handleMessage(context.Background(), textMsg(memberID, "what about btc/usdt?"))

	assert.Equal(t, "Watch the 64k level.", f.api.lastText(t).text)
}

func TestFreeTextRetriesOnceOnEmptyModel(t *testing.T) {
	f := newFixture(t)
	f.model.replies = []string{"", "Second try answer."}
	f.model.errs = []error{provider.ErrModelEmpty, nil}

	f.bot.handleMessage(context.Background(), textMsg(memberID, "hello there"))

	assert.Equal(t, "Second try answer.", f.api.lastText(t).text)
	require.Len(t, f.model.systems, 2)
	assert.Equal(t, qaSystemPrompt, f.model.systems[0])
	assert.Equal(t, qaSystemPromptStrict, f.model.systems[1])
}

func TestFreeTextApologyAfterHardError(t *testing.T) {
	f := newFixture(t)
	f.model.errs = []error{errors.New("model status=500: boom")}

	f.bot.handleMessage(context.Background(), textMsg(memberID, "hello"))

	assert.Equal(t, apologyText, f.api.lastText(t).text)
	assert.Equal(t, 1, f.model.calls)
}

func TestPhotoOutsideFlowTriggersVision(t *testing.T) {
	f := newFixture(t)
	f.model.replies = []string{"Uptrend intact.\nEntry: 100\nStop: 90\nTarget: 130"}

	f.bot.handleMessage(context.Background(), photoMsg(memberID))

	last := f.api.lastText(t).text
	assert.Contains(t, last, "Uptrend intact.")
	assert.Contains(t, last, "Parsed plan")
	assert.Contains(t, last, "R:R 3.00")
}

func TestGrantCommandNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleMessage(ctx, textMsg(adminID, "/grant 555 bob"))

	assert.Contains(t, f.api.lastText(t).text, "Granted access to 555")
	assert.Equal(t, []int64{555}, f.bcast.notified)
	// The new member can use the bot right away.
	f.bot.handleMessage(ctx, textMsg(555, "/start"))
	assert.Equal(t, welcomeText, f.api.lastText(t).text)
}

func TestBroadcastCommand(t *testing.T) {
	f := newFixture(t)

	f.bot.handleMessage(context.Background(), textMsg(adminID, "/broadcast market update"))

	assert.Equal(t, "market update", f.bcast.lastText)
	assert.Contains(t, f.api.lastText(t).text, "1 sent, 0 failed")
}

func TestRefreshAccessEchoesRawError(t *testing.T) {
	store := &failingStore{}
	acl := access.NewCache(store, time.Millisecond)
	engine := dialog.NewEngine(session.NewStore(nil), nil)
	api := &fakeAPI{}
	b, err := New(Config{AdminIDs: []int64{adminID}}, api, acl, engine,
		extract.NewExtractor(nil), &fakeModel{}, fakeQuoter{}, &fakeBroadcaster{})
	require.NoError(t, err)

	b.handleMessage(context.Background(), textMsg(adminID, "/refresh_access"))

	assert.Contains(t, api.lastText(t).text, "disk on fire")
}

type failingStore struct{}

func (failingStore) Append(context.Context, access.Record) error { return errors.New("disk on fire") }
func (failingStore) All(context.Context) ([]access.Record, error) {
	return nil, errors.New("disk on fire")
}

func TestPanicInHandlerProducesApology(t *testing.T) {
	f := newFixture(t)
	f.model.panicOn = true

	f.bot.safeHandle(context.Background(), telegram.Update{
		UpdateID: 7,
		Message:  textMsg(memberID, "tell me something"),
	})

	assert.Equal(t, apologyText, f.api.lastText(t).text)
}

func TestPublishSetupFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleMessage(ctx, textMsg(adminID, btnPublish))
	f.bot.handleMessage(ctx, textMsg(adminID, "btc/usdt"))
	f.bot.handleMessage(ctx, textMsg(adminID, "Long"))
	f.bot.handleMessage(ctx, textMsg(adminID, "64000"))
	f.bot.handleMessage(ctx, textMsg(adminID, "62000"))
	f.bot.handleMessage(ctx, textMsg(adminID, "70000"))
	assert.Contains(t, f.api.lastText(t).text, "screenshot")

	f.bot.handleMessage(ctx, photoMsg(adminID))

	require.Len(t, f.api.photos, 1)
	caption := f.api.photos[0]
	assert.Contains(t, caption, "BTC/USDT — LONG")
	assert.Contains(t, caption, "🎯 Entry: 64000")
	assert.Contains(t, caption, "R:R 3.00")
	assert.Equal(t, []int64{900}, f.api.pinned)
	assert.Contains(t, f.api.lastText(t).text, "published")
}

func TestCancelWordAbortsFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleMessage(ctx, textMsg(memberID, "/risk"))
	f.bot.handleMessage(ctx, textMsg(memberID, "отмена"))

	assert.Equal(t, cancelledText, f.api.lastText(t).text)
	// Next text goes to Q&A, not the aborted flow.
	f.model.replies = []string{"fresh answer"}
	f.bot.handleMessage(ctx, textMsg(memberID, "a question"))
	assert.Equal(t, "fresh answer", f.api.lastText(t).text)
}

func TestDispatchAppliesUserMessagesInArrivalOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The whole flow enqueued at once: answers only make sense if each
	// message is applied to the step the previous one produced.
	inputs := []string{"/risk", "1000", "2", "4"}
	for i, in := range inputs {
		f.bot.dispatch(ctx, telegram.Update{UpdateID: int64(i + 1), Message: textMsg(memberID, in)})
	}

	require.Eventually(t, func() bool {
		return f.api.messageCount() == len(inputs)
	}, 2*time.Second, 5*time.Millisecond)

	last := f.api.lastText(t)
	assert.Contains(t, last.text, "$20.00")
	assert.Contains(t, last.text, "$500.00")
}

func TestSlowUserDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	release := make(chan struct{})
	f.model.block = release
	f.model.replies = []string{"slow answer"}

	f.bot.dispatch(ctx, telegram.Update{UpdateID: 1, Message: textMsg(memberID, "a slow question")})
	f.bot.dispatch(ctx, telegram.Update{UpdateID: 2, Message: textMsg(adminID, "/start")})

	// The admin is served while the member's model call is still stuck.
	require.Eventually(t, func() bool {
		texts := f.api.textsTo(adminID)
		return len(texts) == 1 && texts[0] == welcomeText
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, f.api.textsTo(memberID))

	close(release)
	require.Eventually(t, func() bool {
		texts := f.api.textsTo(memberID)
		return len(texts) == 1 && texts[0] == "slow answer"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBuildSetupCaptionShort(t *testing.T) {
	caption, err := buildSetupCaption(map[string]string{
		dialog.FieldPair:      "eth/usdt",
		dialog.FieldDirection: "short",
		dialog.FieldEntry:     "3200",
		dialog.FieldStop:      "3300",
		dialog.FieldTarget:    "2900",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(caption, "🔴 ETH/USDT — SHORT"))
	assert.Contains(t, caption, "R:R 3.00")
}
