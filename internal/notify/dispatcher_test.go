package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/gameresult-crawler/internal/game"
)

type fakeChannel struct {
	name       string
	configured bool
	err        error
	panicMsg   string
	block      bool

	mu   sync.Mutex
	sent []Message
}

func (f *fakeChannel) Name() string     { return f.name }
func (f *fakeChannel) Configured() bool { return f.configured }

func (f *fakeChannel) Send(ctx context.Context, msg Message) error {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	return f.err
}

func (f *fakeChannel) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.sent...)
}

func sampleCandidate() game.Candidate {
	return game.Candidate{
		GameType:    game.TaiXiu,
		Result:      "tai",
		SessionID:   "tai_xiu_1",
		Fingerprint: "0123456789abcdef0123456789abcdef",
		Timestamp:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func outcomeFor(t *testing.T, outcomes []Outcome, name string) Outcome {
	t.Helper()
	for _, o := range outcomes {
		if o.Channel == name {
			return o
		}
	}
	t.Fatalf("no outcome for %s in %+v", name, outcomes)
	return Outcome{}
}

func TestDispatchNewResultPartialFailure(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	failing := &fakeChannel{name: "webhook", configured: true, err: errors.New("502 bad gateway")}
	working := &fakeChannel{name: "telegram", configured: true}
	d := NewDispatcher(Config{Timeout: time.Second}, []Channel{failing, working}, zap.New(core))

	outcomes := d.DispatchNewResult(context.Background(), game.TaiXiu, sampleCandidate())
	require.Len(t, outcomes, 2)
	require.Error(t, outcomeFor(t, outcomes, "webhook").Err)
	require.NoError(t, outcomeFor(t, outcomes, "telegram").Err)

	sent := working.messages()
	require.Len(t, sent, 1)
	require.Equal(t, KindResult, sent[0].Kind)
	require.Equal(t, "New TAI_XIU Result", sent[0].Subject)
	require.Contains(t, sent[0].Text, "Tài Xỉu")
	require.Equal(t, "tai", sent[0].Result.Result)

	failed := logs.FilterMessage("notification failed").All()
	require.Len(t, failed, 1)
	require.Equal(t, zap.ErrorLevel, failed[0].Level)
	require.Equal(t, "webhook", failed[0].ContextMap()["channel"])
}

func TestDispatchSkipsUnconfiguredChannels(t *testing.T) {
	t.Parallel()

	skipped := &fakeChannel{name: "email"}
	used := &fakeChannel{name: "telegram", configured: true}
	d := NewDispatcher(Config{}, []Channel{skipped, used}, nil)
	require.Equal(t, []string{"telegram"}, d.Configured())

	outcomes := d.DispatchNewResult(context.Background(), game.TaiXiu, sampleCandidate())
	require.Len(t, outcomes, 1)
	require.Equal(t, "telegram", outcomes[0].Channel)
	require.Empty(t, skipped.messages())
}

func TestDispatchNoChannels(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(Config{}, nil, nil)
	require.Empty(t, d.DispatchNewResult(context.Background(), game.BanDo, sampleCandidate()))
	require.Empty(t, d.SendTest(context.Background()))
}

func TestDispatchContainsPanicsAndTimeouts(t *testing.T) {
	t.Parallel()

	panicking := &fakeChannel{name: "pubsub", configured: true, panicMsg: "nil topic"}
	slow := &fakeChannel{name: "email", configured: true, block: true}
	fine := &fakeChannel{name: "live", configured: true}
	d := NewDispatcher(Config{Timeout: 20 * time.Millisecond}, []Channel{panicking, slow, fine}, nil)

	outcomes := d.DispatchSystemEvent(context.Background(), "crawler started", SeverityInfo)
	require.Len(t, outcomes, 3)
	require.ErrorContains(t, outcomeFor(t, outcomes, "pubsub").Err, "panicked")
	require.ErrorIs(t, outcomeFor(t, outcomes, "email").Err, context.DeadlineExceeded)
	require.NoError(t, outcomeFor(t, outcomes, "live").Err)
	require.Len(t, fine.messages(), 1)
}

func TestDeliverHonoursJobChannels(t *testing.T) {
	t.Parallel()

	a := &fakeChannel{name: "telegram", configured: true}
	b := &fakeChannel{name: "webhook", configured: true}
	d := NewDispatcher(Config{}, []Channel{a, b}, nil)

	job := d.NewJob(game.BanDo, sampleCandidate())
	require.Equal(t, []string{"telegram", "webhook"}, job.Channels)
	job.Channels = []string{"webhook"}

	outcomes := d.Deliver(context.Background(), job)
	require.Len(t, outcomes, 1)
	require.Empty(t, a.messages())
	require.Len(t, b.messages(), 1)
}

func TestSendTest(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{name: "telegram", configured: true}
	d := NewDispatcher(Config{}, []Channel{ch}, nil)

	outcomes := d.SendTest(context.Background())
	require.Len(t, outcomes, 1)
	msg := ch.messages()[0]
	require.Equal(t, KindSystem, msg.Kind)
	require.Equal(t, SeverityTest, msg.Severity)
	require.Equal(t, TestBody, msg.Body)
	require.Contains(t, msg.Text, "🤖 **System TEST**")
}
