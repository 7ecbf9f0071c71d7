package dialog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"advisor/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, flows ...*Flow) *Engine {
	t.Helper()
	store := session.NewStore([]string{"market", "strategy"})
	e := NewEngine(store, []string{"exit", "отмена"})
	for _, f := range flows {
		require.NoError(t, e.Register(f))
	}
	return e
}

func TestRiskCalcFlowEndToEnd(t *testing.T) {
	e := newTestEngine(t, NewRiskCalcFlow())

	out, err := e.Start(1, FlowRiskCalc)
	require.NoError(t, err)
	assert.Equal(t, OutcomePrompt, out.Kind)

	out = e.HandleText(context.Background(), 1, "1000")
	assert.Equal(t, OutcomePrompt, out.Kind)

	out = e.HandleText(context.Background(), 1, "2")
	assert.Equal(t, OutcomePrompt, out.Kind)

	out = e.HandleText(context.Background(), 1, "4")
	require.Equal(t, OutcomeDone, out.Kind)
	require.NoError(t, out.Err)
	assert.Contains(t, out.Reply, "$500.00")
	assert.Contains(t, out.Reply, "$20.00")

	_, active := e.Active(1)
	assert.False(t, active, "flow must be closed after completion")
}

func TestValidationFailureRepromptsInPlace(t *testing.T) {
	e := newTestEngine(t, NewRiskCalcFlow())
	_, err := e.Start(1, FlowRiskCalc)
	require.NoError(t, err)

	out := e.HandleText(context.Background(), 1, "not a number")
	assert.Equal(t, OutcomeReprompt, out.Kind)
	assert.NotEmpty(t, out.Prompt)

	// Still on the same step: a zero stop-style invalid value re-prompts too.
	out = e.HandleText(context.Background(), 1, "-5")
	assert.Equal(t, OutcomeReprompt, out.Kind)

	// Valid input then advances.
	out = e.HandleText(context.Background(), 1, "1000")
	assert.Equal(t, OutcomePrompt, out.Kind)
}

func TestZeroStopLossNeverReachesDivision(t *testing.T) {
	e := newTestEngine(t, NewRiskCalcFlow())
	_, err := e.Start(1, FlowRiskCalc)
	require.NoError(t, err)

	e.HandleText(context.Background(), 1, "1000")
	e.HandleText(context.Background(), 1, "2")
	out := e.HandleText(context.Background(), 1, "0")
	assert.Equal(t, OutcomeReprompt, out.Kind)
}

func TestExitSentinelFromEveryState(t *testing.T) {
	for step := 0; step < 3; step++ {
		t.Run(fmt.Sprintf("step_%d", step), func(t *testing.T) {
			e := newTestEngine(t, NewRiskCalcFlow())
			_, err := e.Start(1, FlowRiskCalc)
			require.NoError(t, err)

			inputs := []string{"1000", "2"}
			for i := 0; i < step; i++ {
				e.HandleText(context.Background(), 1, inputs[i])
			}
			out := e.HandleText(context.Background(), 1, "Отмена")
			assert.Equal(t, OutcomeAborted, out.Kind)
			_, active := e.Active(1)
			assert.False(t, active)
		})
	}
}

func TestAbortClearsFieldsButKeepsPreservedKeys(t *testing.T) {
	store := session.NewStore([]string{"market"})
	e := NewEngine(store, []string{"exit"})
	require.NoError(t, e.Register(NewRiskCalcFlow()))

	store.Mutate(1, func(s *session.Session) {
		s.Fields["market"] = "BTCUSDT"
	})

	_, err := e.Start(1, FlowRiskCalc)
	require.NoError(t, err)
	e.HandleText(context.Background(), 1, "1000")
	out := e.HandleText(context.Background(), 1, "exit")
	assert.Equal(t, OutcomeAborted, out.Kind)

	store.View(1, func(s *session.Session) {
		assert.Equal(t, "BTCUSDT", s.Fields["market"])
		_, hasDeposit := s.Fields[FieldDeposit]
		assert.False(t, hasDeposit, "collected fields must not survive an abort")
	})
}

func TestStartingNewFlowDiscardsPreviousFields(t *testing.T) {
	other := &Flow{
		Name:  "other",
		Steps: []Step{{Field: "x", Prompt: "x?", Validate: NonEmpty}},
		Finish: func(_ context.Context, _ int64, fields map[string]string) (string, error) {
			return fields["x"], nil
		},
	}
	store := session.NewStore([]string{"market"})
	e := NewEngine(store, []string{"exit"})
	require.NoError(t, e.Register(NewRiskCalcFlow()))
	require.NoError(t, e.Register(other))

	_, err := e.Start(1, FlowRiskCalc)
	require.NoError(t, err)
	e.HandleText(context.Background(), 1, "1000")

	_, err = e.Start(1, "other")
	require.NoError(t, err)
	store.View(1, func(s *session.Session) {
		_, hasDeposit := s.Fields[FieldDeposit]
		assert.False(t, hasDeposit)
	})
}

func TestSlowFinishDiscardedAfterAbort(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	slow := &Flow{
		Name:  "slow",
		Steps: []Step{{Field: "q", Prompt: "q?", Validate: NonEmpty}},
		Finish: func(_ context.Context, _ int64, _ map[string]string) (string, error) {
			close(started)
			<-release
			return "late result", nil
		},
	}
	e := newTestEngine(t, slow)
	_, err := e.Start(1, "slow")
	require.NoError(t, err)

	done := make(chan Outcome, 1)
	go func() {
		done <- e.HandleText(context.Background(), 1, "question")
	}()

	<-started
	// The user bails out while the model call is still in flight.
	e.Abort(1)
	close(release)

	out := <-done
	assert.Equal(t, OutcomeStale, out.Kind, "in-flight result must be discarded, not delivered")
}

func TestPhotoFlowAndTextFallback(t *testing.T) {
	publish := &Flow{
		Name: "publish",
		Steps: []Step{
			{Field: "pair", Prompt: "which pair?", Validate: NonEmpty},
			{Prompt: "now send the chart screenshot", WantPhoto: true},
		},
		FinishPhoto: func(_ context.Context, _ int64, fileID string, fields map[string]string) (string, error) {
			return "published " + fields["pair"] + " " + fileID, nil
		},
	}
	e := newTestEngine(t, publish)
	_, err := e.Start(1, "publish")
	require.NoError(t, err)

	// A photo before its step is rejected with the current prompt.
	out := e.HandlePhoto(context.Background(), 1, "file-1")
	assert.Equal(t, OutcomeReprompt, out.Kind)

	out = e.HandleText(context.Background(), 1, "BTCUSDT")
	assert.Equal(t, OutcomePrompt, out.Kind)

	// Text during a photo step re-prompts for the photo.
	out = e.HandleText(context.Background(), 1, "here you go")
	assert.Equal(t, OutcomeNeedPhoto, out.Kind)

	out = e.HandlePhoto(context.Background(), 1, "file-2")
	require.Equal(t, OutcomeDone, out.Kind)
	assert.Equal(t, "published BTCUSDT file-2", out.Reply)
}

func TestFinishErrorClosesFlowAndSurfacesError(t *testing.T) {
	boom := errors.New("upstream unavailable")
	failing := &Flow{
		Name:  "failing",
		Steps: []Step{{Field: "q", Prompt: "q?", Validate: NonEmpty}},
		Finish: func(_ context.Context, _ int64, _ map[string]string) (string, error) {
			return "", boom
		},
	}
	e := newTestEngine(t, failing)
	_, err := e.Start(1, "failing")
	require.NoError(t, err)

	out := e.HandleText(context.Background(), 1, "hello")
	assert.Equal(t, OutcomeDone, out.Kind)
	assert.ErrorIs(t, out.Err, boom)
	_, active := e.Active(1)
	assert.False(t, active, "a failed finish still closes the flow")
}

func TestInputWithoutActiveFlow(t *testing.T) {
	e := newTestEngine(t, NewRiskCalcFlow())
	out := e.HandleText(context.Background(), 1, "hello")
	assert.Equal(t, OutcomeNone, out.Kind)
}
