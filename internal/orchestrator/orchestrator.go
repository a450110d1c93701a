package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/glintlabs/glint/internal/capture"
	"github.com/glintlabs/glint/internal/config"
	"github.com/glintlabs/glint/internal/eventbus"
	"github.com/glintlabs/glint/internal/models"
	"github.com/glintlabs/glint/internal/prompt"
	"github.com/glintlabs/glint/internal/provider"
)

const historyLimit = 20

// ModelConfig is the resolved provider target for one submission.
type ModelConfig struct {
	Provider   string
	Model      string
	BaseURL    string
	Credential string
}

// ModelResolver yields the model/credential to use for the next request.
// Returns provider.ErrNotConfigured when nothing usable exists.
type ModelResolver interface {
	CurrentModel() (ModelConfig, error)
}

// ConversationStore persists the transcript. Satisfied by *store.Store.
type ConversationStore interface {
	GetOrCreateActiveSession(kind string) (string, error)
	AppendMessage(sessionID string, role models.MessageRole, content string) error
	History(sessionID string, limit int) ([]models.Message, error)
}

// GatewayFactory builds a gateway for a resolved model. Swappable in tests.
type GatewayFactory func(ModelConfig) provider.Gateway

// pendingRequest is the single in-flight submission. Created on submit,
// destroyed on completion, cancellation, or a superseding submit. answer
// is written only by the owning run goroutine.
type pendingRequest struct {
	question    string
	screenshots []models.ScreenshotEntry
	sessionID   string
	generation  uint64
	answer      string
	ctx         context.Context
	cancel      context.CancelFunc
}

// Orchestrator owns the request lifecycle: it holds the authoritative
// RequestState, guarantees at most one pendingRequest exists, drains the
// screenshot queue into payloads, applies the one-shot multimodal
// fallback, and publishes state snapshots to the UI on every change.
type Orchestrator struct {
	state    *requestState
	queue    *capture.Queue
	trigger  capture.Trigger
	store    ConversationStore
	resolver ModelResolver
	gateway  GatewayFactory
	bus      *eventbus.EventBus
	logger   *zap.Logger

	kind          prompt.ProfileKind
	searchEnabled bool

	mu      sync.Mutex // guards pending
	pending *pendingRequest

	// Serializes snapshot-then-send so concurrent publishers (stream
	// deltas, capture path) cannot deliver snapshots out of order.
	pubMu sync.Mutex

	// Tracks the goroutines handling submissions and captures so Stop
	// can wait for their final publications before the bus closes.
	wg sync.WaitGroup

	loopCtx    context.Context
	loopCancel context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGatewayFactory overrides how gateways are built (tests).
func WithGatewayFactory(factory GatewayFactory) Option {
	return func(o *Orchestrator) { o.gateway = factory }
}

// WithResolver overrides credential/model resolution (tests).
func WithResolver(resolver ModelResolver) Option {
	return func(o *Orchestrator) { o.resolver = resolver }
}

// WithProfileKind selects the assistant persona.
func WithProfileKind(kind prompt.ProfileKind) Option {
	return func(o *Orchestrator) { o.kind = kind }
}

func New(cfg *config.Config, bus *eventbus.EventBus, queue *capture.Queue, trigger capture.Trigger, st ConversationStore, logger *zap.Logger, opts ...Option) *Orchestrator {
	loopCtx, loopCancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		state:         newRequestState(),
		queue:         queue,
		trigger:       trigger,
		store:         st,
		resolver:      configResolver{cfg: cfg},
		bus:           bus,
		logger:        logger,
		kind:          prompt.KindAssistant,
		searchEnabled: cfg.SearchEnabled,
		loopCtx:       loopCtx,
		loopCancel:    loopCancel,
	}
	o.gateway = func(mc ModelConfig) provider.Gateway {
		return provider.NewOpenAIGateway(mc.BaseURL, mc.Credential, logger)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start publishes the initial state and begins consuming UI events.
func (o *Orchestrator) Start() {
	o.publish()
	go o.eventLoop()
}

// Stop cancels any in-flight request and the event loop, then waits for
// the run goroutine to finalize. The bus channels must stay open until
// Stop returns: finalize publishes a last snapshot on its way out.
func (o *Orchestrator) Stop() {
	o.Cancel("shutdown")
	o.loopCancel()
	o.wg.Wait()
}

func (o *Orchestrator) eventLoop() {
	for {
		select {
		case <-o.loopCtx.Done():
			return
		case event, ok := <-o.bus.UIToCore():
			if !ok {
				return
			}
			o.handleUIEvent(event)
		}
	}
}

func (o *Orchestrator) handleUIEvent(event eventbus.UIEvent) {
	switch e := event.(type) {
	case eventbus.AskEvent:
		go o.Submit(e.Question)
	case eventbus.ToggleAskEvent:
		go o.ToggleAsk(e.Question)
	case eventbus.CaptureEvent:
		go o.CaptureToQueue()
	case eventbus.CancelEvent:
		o.Cancel(e.Reason)
	case eventbus.CloseEvent:
		o.Close()
	}
}

// Submit is the primary entry point. It always accepts: any prior request
// is cancelled before the new Loading state is published. Returns once the
// stream completes or fails definitively; progress is observed through
// state publications.
func (o *Orchestrator) Submit(question string) error {
	o.wg.Add(1)
	defer o.wg.Done()

	p := o.replacePending(question)
	p.generation = o.state.beginSubmission(question)
	o.publish()
	return o.run(p)
}

// ToggleAsk is the low-priority entry point used by external triggers. It
// never cancels an in-flight request: when one exists the call is dropped.
// On an idle, visible surface with prior content it flips the composer; on
// a hidden surface it only reveals it.
func (o *Orchestrator) ToggleAsk(question string) {
	o.wg.Add(1)
	defer o.wg.Done()

	if o.state.busy() {
		o.logger.Debug("toggle dropped: request in flight")
		return
	}
	if o.state.visibleWithContent() {
		o.state.flipComposer()
		o.publish()
		return
	}
	if !o.state.isVisible() {
		o.state.show()
		o.publish()
		return
	}
	// Idle, visible, nothing on screen yet: behaves like a submission
	// when there is a question to send.
	if question != "" {
		o.Submit(question)
	}
}

// Cancel aborts the in-flight request, if any. Idempotent: with no pending
// request it is a no-op and leaves state untouched. State reset happens in
// the run goroutine's finalize path, not here.
func (o *Orchestrator) Cancel(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		return
	}
	o.logger.Info("cancelling request", zap.String("reason", reason))
	o.pending.cancel()
}

// Close cancels and resets everything to the initial hidden idle state.
func (o *Orchestrator) Close() {
	o.Cancel("closed")
	o.state.resetIdle()
	o.publish()
}

// CaptureToQueue captures the screen into the supplementary queue without
// starting a request. Runs on the capture path, independent of any
// in-flight stream.
func (o *Orchestrator) CaptureToQueue() {
	o.wg.Add(1)
	defer o.wg.Done()

	entry, err := o.trigger.CaptureNow()
	if err != nil {
		o.logger.Warn("capture failed", zap.Error(err))
		return
	}
	o.queue.Enqueue(entry)
	o.logger.Debug("screenshot queued", zap.Int("queue_len", o.queue.Len()))
	o.publish()
}

// replacePending cancels the current pending request (if any) and installs
// a fresh one under the lock, so at most one exists at a time.
func (o *Orchestrator) replacePending(question string) *pendingRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending != nil {
		o.pending.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.pending = &pendingRequest{
		question: question,
		ctx:      ctx,
		cancel:   cancel,
	}
	return o.pending
}

// clearPending removes p if it is still the current request.
func (o *Orchestrator) clearPending(p *pendingRequest) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == p {
		o.pending = nil
	}
}

// run drives one submission end to end. finalize always runs: it persists
// whatever answer accumulated, resets loading/streaming, and publishes,
// regardless of completion, cancellation, or error.
func (o *Orchestrator) run(p *pendingRequest) error {
	defer o.finalize(p)

	modelCfg, err := o.resolver.CurrentModel()
	if err != nil {
		o.state.finishWithError(p.generation, provider.ErrNotConfigured)
		return provider.ErrNotConfigured
	}

	// Queued screenshots win over a fresh capture; the queue is drained
	// whole. An empty queue triggers one capture, and a capture failure
	// degrades to a text-only payload instead of failing the request.
	p.screenshots = o.queue.DrainAll()
	if len(p.screenshots) == 0 {
		entry, captureErr := o.trigger.CaptureNow()
		if captureErr != nil {
			o.logger.Warn("no screenshot source, continuing text-only", zap.Error(captureErr))
		} else {
			p.screenshots = []models.ScreenshotEntry{entry}
		}
	}

	history := o.prepareSession(p)

	payload := provider.Payload{
		Model:        modelCfg.Model,
		SystemPrompt: prompt.BuildSystemPrompt(o.kind, historyLines(history), o.searchEnabled),
		Question:     p.question,
		History:      history,
		Screenshots:  p.screenshots,
	}

	gw := o.gateway(modelCfg)
	handle, err := o.openWithFallback(gw, p, payload)
	if err != nil {
		kind := provider.Classify(err, payload.HasImages())
		if kind == provider.KindCancelled {
			return nil
		}
		wrapped := fmt.Errorf("request failed: %w", err)
		o.state.finishWithError(p.generation, wrapped)
		return wrapped
	}
	defer handle.Close()

	_, streamErr := handle.Read(p.ctx, func(delta string) {
		if o.state.appendDelta(p.generation, delta) {
			p.answer += delta
			o.publish()
		}
	})

	if streamErr != nil && !errors.Is(streamErr, context.Canceled) {
		wrapped := fmt.Errorf("stream failed: %w", streamErr)
		o.state.finishWithError(p.generation, wrapped)
		return wrapped
	}

	o.state.finish(p.generation)
	return nil
}

// openWithFallback opens the stream, retrying exactly once with an
// image-free payload when the provider rejects multimodal input. A second
// rejection, or any other failure class, is terminal.
func (o *Orchestrator) openWithFallback(gw provider.Gateway, p *pendingRequest, payload provider.Payload) (provider.StreamHandle, error) {
	handle, err := gw.Open(p.ctx, payload)
	if err == nil {
		return handle, nil
	}

	if provider.Classify(err, payload.HasImages()) != provider.KindMultimodalRejected {
		return nil, err
	}

	o.logger.Warn("provider rejected image content, retrying text-only", zap.Error(err))
	return gw.Open(p.ctx, payload.WithoutImages())
}

// prepareSession resolves the active session, loads recent history, and
// persists the user question. Store failures degrade to an unpersisted
// request rather than failing the submission.
func (o *Orchestrator) prepareSession(p *pendingRequest) []models.Message {
	sessionID, err := o.store.GetOrCreateActiveSession(string(o.kind))
	if err != nil {
		o.logger.Warn("session unavailable, transcript will not persist", zap.Error(err))
		return nil
	}
	p.sessionID = sessionID

	history, err := o.store.History(sessionID, historyLimit)
	if err != nil {
		o.logger.Warn("failed to load history", zap.Error(err))
		history = nil
	}

	if err := o.store.AppendMessage(sessionID, models.RoleUser, p.question); err != nil {
		o.logger.Warn("failed to persist question", zap.Error(err))
	}
	return history
}

// finalize is the guaranteed-run cleanup for one submission: persist the
// accumulated answer (partial answers included), drop the pending slot,
// and publish the terminal state.
func (o *Orchestrator) finalize(p *pendingRequest) {
	if p.answer != "" && p.sessionID != "" {
		if err := o.store.AppendMessage(p.sessionID, models.RoleAssistant, p.answer); err != nil {
			o.logger.Warn("failed to persist answer", zap.Error(err))
		}
	}
	o.state.settle(p.generation)
	o.clearPending(p)
	o.publish()
}

// publish pushes an immutable state snapshot to observers. Fire and
// forget: a full bus is logged, not retried.
func (o *Orchestrator) publish() {
	o.pubMu.Lock()
	defer o.pubMu.Unlock()

	if err := o.bus.SendToUI(eventbus.StateUpdateEvent{
		State:    o.state.Snapshot(),
		QueueLen: o.queue.Len(),
	}); err != nil {
		o.logger.Warn("failed to publish state", zap.Error(err))
	}
}

// Snapshot exposes the current state for callers outside the bus.
func (o *Orchestrator) Snapshot() models.RequestState {
	return o.state.Snapshot()
}

func historyLines(history []models.Message) []string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return lines
}

// configResolver reads the active profile on every submission so profile
// switches take effect without restart.
type configResolver struct {
	cfg *config.Config
}

func (r configResolver) CurrentModel() (ModelConfig, error) {
	if !r.cfg.IsValid() {
		return ModelConfig{}, provider.ErrNotConfigured
	}
	return ModelConfig{
		Provider:   r.cfg.GetProvider(),
		Model:      r.cfg.GetModel(),
		BaseURL:    r.cfg.GetBaseURL(),
		Credential: r.cfg.GetCredential(),
	}, nil
}
