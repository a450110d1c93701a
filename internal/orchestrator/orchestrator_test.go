package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/glintlabs/glint/internal/capture"
	"github.com/glintlabs/glint/internal/config"
	"github.com/glintlabs/glint/internal/eventbus"
	"github.com/glintlabs/glint/internal/models"
	"github.com/glintlabs/glint/internal/provider"
)

// ----- fakes -----

type fakeResolver struct {
	err error
}

func (r fakeResolver) CurrentModel() (ModelConfig, error) {
	if r.err != nil {
		return ModelConfig{}, r.err
	}
	return ModelConfig{Provider: "test", Model: "test-model", Credential: "key"}, nil
}

type fakeTrigger struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (t *fakeTrigger) CaptureNow() (models.ScreenshotEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.err != nil {
		return models.ScreenshotEntry{}, t.err
	}
	return models.ScreenshotEntry{ImageBytes: []byte("fresh"), CapturedAt: time.Now()}, nil
}

func (t *fakeTrigger) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

type fakeStore struct {
	mu       sync.Mutex
	sessErr  error
	messages []models.Message
}

func (s *fakeStore) GetOrCreateActiveSession(kind string) (string, error) {
	if s.sessErr != nil {
		return "", s.sessErr
	}
	return "session-1", nil
}

func (s *fakeStore) AppendMessage(sessionID string, role models.MessageRole, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, models.Message{SessionID: sessionID, Role: role, Content: content})
	return nil
}

func (s *fakeStore) History(sessionID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out, nil
}

func (s *fakeStore) persisted() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// fakeStream delivers scripted deltas; with hold set it blocks after the
// deltas until the context is cancelled.
type fakeStream struct {
	deltas []string
	hold   bool
	closed bool
}

func (f *fakeStream) Read(ctx context.Context, onDelta func(string)) (string, error) {
	var b strings.Builder
	for _, d := range f.deltas {
		if err := ctx.Err(); err != nil {
			return b.String(), err
		}
		b.WriteString(d)
		if onDelta != nil {
			onDelta(d)
		}
	}
	if f.hold {
		<-ctx.Done()
		return b.String(), ctx.Err()
	}
	return b.String(), nil
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

type openCall struct {
	payload provider.Payload
	ctx     context.Context
}

// fakeGateway scripts successive Open results.
type fakeGateway struct {
	mu      sync.Mutex
	results []func() (provider.StreamHandle, error)
	calls   []openCall
}

func (g *fakeGateway) Open(ctx context.Context, payload provider.Payload) (provider.StreamHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, openCall{payload: payload, ctx: ctx})
	if len(g.results) == 0 {
		return &fakeStream{}, nil
	}
	next := g.results[0]
	g.results = g.results[1:]
	return next()
}

func (g *fakeGateway) openCalls() []openCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]openCall, len(g.calls))
	copy(out, g.calls)
	return out
}

func succeed(deltas ...string) func() (provider.StreamHandle, error) {
	return func() (provider.StreamHandle, error) { return &fakeStream{deltas: deltas}, nil }
}

func succeedHolding(deltas ...string) func() (provider.StreamHandle, error) {
	return func() (provider.StreamHandle, error) { return &fakeStream{deltas: deltas, hold: true}, nil }
}

func fail(err error) func() (provider.StreamHandle, error) {
	return func() (provider.StreamHandle, error) { return nil, err }
}

type fixture struct {
	orch    *Orchestrator
	bus     *eventbus.EventBus
	queue   *capture.Queue
	trigger *fakeTrigger
	store   *fakeStore
	gateway *fakeGateway
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	bus := eventbus.NewEventBus()
	queue := capture.NewQueue(capture.DefaultCapacity)
	trigger := &fakeTrigger{}
	st := &fakeStore{}
	gw := &fakeGateway{}

	baseOpts := []Option{
		WithResolver(fakeResolver{}),
		WithGatewayFactory(func(ModelConfig) provider.Gateway { return gw }),
	}
	orch := New(&config.Config{}, bus, queue, trigger, st, zaptest.NewLogger(t), append(baseOpts, opts...)...)

	return &fixture{orch: orch, bus: bus, queue: queue, trigger: trigger, store: st, gateway: gw}
}

// drainSnapshots collects every snapshot currently buffered on the bus.
func (f *fixture) drainSnapshots() []models.RequestState {
	var out []models.RequestState
	for {
		select {
		case event := <-f.bus.CoreToUI():
			if update, ok := event.(eventbus.StateUpdateEvent); ok {
				out = append(out, update.State)
			}
		default:
			return out
		}
	}
}

// ----- tests -----

func TestSubmitStreamsAndPersistsAnswer(t *testing.T) {
	f := newFixture(t)
	f.queue.Enqueue(models.ScreenshotEntry{ImageBytes: []byte("queued"), CapturedAt: time.Now()})
	f.gateway.results = append(f.gateway.results, succeed("Hel", "lo"))

	err := f.orch.Submit("What is on screen?")
	require.NoError(t, err)

	calls := f.gateway.openCalls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].payload.Screenshots, 1)
	assert.Equal(t, "queued", string(calls[0].payload.Screenshots[0].ImageBytes))
	assert.Equal(t, "What is on screen?", calls[0].payload.Question)

	// Queued screenshot wins: no fresh capture was triggered
	assert.Equal(t, 0, f.trigger.callCount())
	assert.True(t, f.queue.Empty())

	// Answer observed as prefix-extension: "Hel" then "Hello"
	snapshots := f.drainSnapshots()
	var answers []string
	for _, s := range snapshots {
		answers = append(answers, s.Answer)
	}
	assert.Contains(t, answers, "Hel")
	assert.Contains(t, answers, "Hello")
	prev := ""
	for _, a := range answers {
		if a == "" {
			prev = ""
			continue
		}
		assert.True(t, strings.HasPrefix(a, prev), "answer %q does not extend %q", a, prev)
		prev = a
	}

	// Final persisted transcript: question then full answer
	persisted := f.store.persisted()
	require.Len(t, persisted, 2)
	assert.Equal(t, models.RoleUser, persisted[0].Role)
	assert.Equal(t, "What is on screen?", persisted[0].Content)
	assert.Equal(t, models.RoleAssistant, persisted[1].Role)
	assert.Equal(t, "Hello", persisted[1].Content)

	final := f.orch.Snapshot()
	assert.False(t, final.Loading)
	assert.False(t, final.Streaming)
	assert.Equal(t, "Hello", final.Answer)
	assert.True(t, final.Visible)
}

func TestSubmitCapturesFreshWhenQueueEmpty(t *testing.T) {
	f := newFixture(t)
	f.gateway.results = append(f.gateway.results, succeed("ok"))

	require.NoError(t, f.orch.Submit("question"))

	assert.Equal(t, 1, f.trigger.callCount())
	calls := f.gateway.openCalls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].payload.Screenshots, 1)
	assert.Equal(t, "fresh", string(calls[0].payload.Screenshots[0].ImageBytes))
}

func TestSubmitProceedsTextOnlyWhenCaptureFails(t *testing.T) {
	f := newFixture(t)
	f.trigger.err = errors.New("no display")
	f.gateway.results = append(f.gateway.results, succeed("ok"))

	require.NoError(t, f.orch.Submit("question"))

	calls := f.gateway.openCalls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].payload.Screenshots)
	assert.Equal(t, "ok", f.orch.Snapshot().Answer)
}

func TestMultimodalFallbackRetriesOnceWithoutImages(t *testing.T) {
	f := newFixture(t)
	f.queue.Enqueue(models.ScreenshotEntry{ImageBytes: []byte("shot"), CapturedAt: time.Now()})
	f.gateway.results = append(f.gateway.results,
		fail(&provider.StatusError{Status: 400, BodySnippet: "vision not supported"}),
		succeed("text answer"),
	)

	require.NoError(t, f.orch.Submit("describe"))

	calls := f.gateway.openCalls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[0].payload.Screenshots, 1)
	assert.Empty(t, calls[1].payload.Screenshots)
	assert.Equal(t, calls[0].payload.Question, calls[1].payload.Question)
	assert.Equal(t, "text answer", f.orch.Snapshot().Answer)
}

func TestSecondMultimodalRejectionIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.queue.Enqueue(models.ScreenshotEntry{ImageBytes: []byte("shot"), CapturedAt: time.Now()})
	rejection := &provider.StatusError{Status: 400, BodySnippet: "invalid request"}
	f.gateway.results = append(f.gateway.results, fail(rejection), fail(rejection))

	err := f.orch.Submit("describe")
	require.Error(t, err)

	// Exactly two opens: original plus one fallback, never a third
	assert.Len(t, f.gateway.openCalls(), 2)

	final := f.orch.Snapshot()
	assert.False(t, final.Loading)
	assert.False(t, final.Streaming)
	assert.Error(t, final.Err)
}

func TestTransportErrorSkipsFallback(t *testing.T) {
	f := newFixture(t)
	f.queue.Enqueue(models.ScreenshotEntry{ImageBytes: []byte("shot"), CapturedAt: time.Now()})
	f.gateway.results = append(f.gateway.results,
		fail(&provider.StatusError{Status: 503, BodySnippet: "overloaded"}),
	)

	err := f.orch.Submit("describe")
	require.Error(t, err)

	assert.Len(t, f.gateway.openCalls(), 1)
	assert.Error(t, f.orch.Snapshot().Err)
}

func TestNotConfiguredSurfacesWithoutOpening(t *testing.T) {
	f := newFixture(t, WithResolver(fakeResolver{err: provider.ErrNotConfigured}))

	err := f.orch.Submit("question")
	require.ErrorIs(t, err, provider.ErrNotConfigured)

	assert.Empty(t, f.gateway.openCalls())
	final := f.orch.Snapshot()
	assert.False(t, final.Loading)
	assert.ErrorIs(t, final.Err, provider.ErrNotConfigured)
}

func TestCancelIdleIsNoOp(t *testing.T) {
	f := newFixture(t)

	before := f.orch.Snapshot()
	f.orch.Cancel("nothing to do")
	after := f.orch.Snapshot()

	assert.Equal(t, before, after)
}

func TestCancelPersistsPartialAnswer(t *testing.T) {
	f := newFixture(t)
	f.gateway.results = append(f.gateway.results, succeedHolding("partial "))

	done := make(chan error, 1)
	go func() { done <- f.orch.Submit("question") }()

	// Wait for the stream to deliver its delta, then cancel
	require.Eventually(t, func() bool {
		return f.orch.Snapshot().Answer == "partial "
	}, time.Second, 5*time.Millisecond)

	f.orch.Cancel("superseded by test")
	require.NoError(t, <-done)

	persisted := f.store.persisted()
	require.Len(t, persisted, 2)
	assert.Equal(t, models.RoleAssistant, persisted[1].Role)
	assert.Equal(t, "partial ", persisted[1].Content)

	final := f.orch.Snapshot()
	assert.False(t, final.Loading)
	assert.False(t, final.Streaming)
	// Cancellation is not a user-visible error
	assert.NoError(t, final.Err)
}

func TestNewSubmitCancelsPriorStream(t *testing.T) {
	f := newFixture(t)
	f.gateway.results = append(f.gateway.results,
		succeedHolding("first "),
		succeed("second"),
	)

	done := make(chan error, 1)
	go func() { done <- f.orch.Submit("first question") }()

	require.Eventually(t, func() bool {
		return f.orch.Snapshot().Answer == "first "
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.orch.Submit("second question"))
	require.NoError(t, <-done)

	// The first stream's context was cancelled by the second submission
	calls := f.gateway.openCalls()
	require.Len(t, calls, 2)
	assert.ErrorIs(t, calls[0].ctx.Err(), context.Canceled)
	assert.NoError(t, calls[1].ctx.Err())

	// No interleaving: the final answer belongs to the second question only
	final := f.orch.Snapshot()
	assert.Equal(t, "second question", final.Question)
	assert.Equal(t, "second", final.Answer)
}

func TestToggleDroppedWhileBusy(t *testing.T) {
	f := newFixture(t)
	f.gateway.results = append(f.gateway.results, succeedHolding("streaming "))

	done := make(chan error, 1)
	go func() { done <- f.orch.Submit("busy question") }()

	require.Eventually(t, func() bool {
		return f.orch.Snapshot().Streaming
	}, time.Second, 5*time.Millisecond)

	before := f.orch.Snapshot()
	f.orch.ToggleAsk("ignored question")
	after := f.orch.Snapshot()

	assert.Equal(t, before, after)
	assert.Len(t, f.gateway.openCalls(), 1)

	f.orch.Cancel("test cleanup")
	<-done
}

func TestToggleShowsHiddenSurface(t *testing.T) {
	f := newFixture(t)

	require.False(t, f.orch.Snapshot().Visible)

	f.orch.ToggleAsk("")

	state := f.orch.Snapshot()
	assert.True(t, state.Visible)
	assert.True(t, state.ShowComposer)
	assert.Empty(t, f.gateway.openCalls())
}

func TestToggleFlipsComposerOnVisibleContent(t *testing.T) {
	f := newFixture(t)
	f.gateway.results = append(f.gateway.results, succeed("answer"))
	require.NoError(t, f.orch.Submit("question"))

	require.True(t, f.orch.Snapshot().Visible)
	require.False(t, f.orch.Snapshot().ShowComposer)

	f.orch.ToggleAsk("")
	assert.True(t, f.orch.Snapshot().ShowComposer)

	f.orch.ToggleAsk("")
	assert.False(t, f.orch.Snapshot().ShowComposer)

	// Never started a new request
	assert.Len(t, f.gateway.openCalls(), 1)
}

func TestCloseResetsToIdleHidden(t *testing.T) {
	f := newFixture(t)
	f.gateway.results = append(f.gateway.results, succeed("answer"))
	require.NoError(t, f.orch.Submit("question"))

	f.orch.Close()

	state := f.orch.Snapshot()
	assert.False(t, state.Visible)
	assert.False(t, state.Loading)
	assert.False(t, state.Streaming)
	assert.Empty(t, state.Answer)
	assert.Empty(t, state.Question)
	assert.True(t, state.ShowComposer)
}

func TestLoadingAndStreamingNeverBothTrue(t *testing.T) {
	f := newFixture(t)
	f.gateway.results = append(f.gateway.results, succeed("a", "b", "c"))

	require.NoError(t, f.orch.Submit("question"))

	for _, s := range f.drainSnapshots() {
		assert.False(t, s.Loading && s.Streaming, "loading and streaming both true in snapshot")
	}
}

func TestStopWhileStreamingFinalizesBeforeBusClose(t *testing.T) {
	f := newFixture(t)
	f.gateway.results = append(f.gateway.results, succeedHolding("partial "))

	done := make(chan error, 1)
	go func() { done <- f.orch.Submit("question") }()

	require.Eventually(t, func() bool {
		return f.orch.Snapshot().Answer == "partial "
	}, time.Second, 5*time.Millisecond)

	// Stop must join the run goroutine, so its final publication lands
	// before the bus channels close.
	f.orch.Stop()
	f.bus.Close()

	require.NoError(t, <-done)

	persisted := f.store.persisted()
	require.Len(t, persisted, 2)
	assert.Equal(t, models.RoleAssistant, persisted[1].Role)
	assert.Equal(t, "partial ", persisted[1].Content)
}

func TestCaptureDuringStreamKeepsPublicationsOrdered(t *testing.T) {
	f := newFixture(t)

	deltas := make([]string, 200)
	for i := range deltas {
		deltas[i] = "x"
	}
	f.gateway.results = append(f.gateway.results, succeedHolding(deltas...))

	// Collect every published answer until the bus closes
	var mu sync.Mutex
	var answers []string
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for event := range f.bus.CoreToUI() {
			if update, ok := event.(eventbus.StateUpdateEvent); ok {
				mu.Lock()
				answers = append(answers, update.State.Answer)
				mu.Unlock()
			}
		}
	}()

	done := make(chan error, 1)
	go func() { done <- f.orch.Submit("question") }()

	// Capture path publishes concurrently with the stream's deltas
	captures := make(chan struct{})
	go func() {
		defer close(captures)
		for i := 0; i < 50; i++ {
			f.orch.CaptureToQueue()
		}
	}()

	require.Eventually(t, func() bool {
		return len(f.orch.Snapshot().Answer) == len(deltas)
	}, time.Second, 5*time.Millisecond)
	<-captures

	f.orch.Cancel("test cleanup")
	require.NoError(t, <-done)
	f.orch.Stop()
	f.bus.Close()
	<-collected

	// Answer text never regresses across publications, regardless of
	// which path produced each snapshot
	prev := ""
	for _, a := range answers {
		assert.True(t, strings.HasPrefix(a, prev), "answer %q does not extend %q", a, prev)
		prev = a
	}
}

func TestStoreFailureDegradesToUnpersisted(t *testing.T) {
	f := newFixture(t)
	f.store.sessErr = errors.New("disk full")
	f.gateway.results = append(f.gateway.results, succeed("answer"))

	require.NoError(t, f.orch.Submit("question"))

	assert.Empty(t, f.store.persisted())
	assert.Equal(t, "answer", f.orch.Snapshot().Answer)
}
