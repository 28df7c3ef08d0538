package conversation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/whatsapp-concierge/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

const (
	phaseRegistration = "registration"
	phaseTermsGuard   = "terms_guard"
	phaseRouter       = "router"
	phaseIgnored      = "ignored"

	releaseTimeout = 5 * time.Second
)

var errSaveSuppressed = errors.New("conversation: state not persisted, replies suppressed")

// Orchestrator is the single entry point for inbound WhatsApp events.
type Orchestrator struct {
	dedup        Deduplicator
	store        Store
	gateway      DeliveryGateway
	registration *RegistrationFlow
	router       *InteractionRouter
	prompts      Prompts
	logger       *logging.Logger
	tracer       trace.Tracer
	metrics      *metrics.ConversationMetrics
}

var _ Handler = (*Orchestrator)(nil)

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithTracer overrides the tracer used for per-event spans.
func WithTracer(tracer trace.Tracer) OrchestratorOption {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithMetrics records handling outcomes on m.
func WithMetrics(m *metrics.ConversationMetrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// NewOrchestrator wires the orchestration engine.
func NewOrchestrator(dedup Deduplicator, store Store, gateway DeliveryGateway, prompts Prompts, router *InteractionRouter, logger *logging.Logger, opts ...OrchestratorOption) *Orchestrator {
	if dedup == nil {
		panic("conversation: deduplicator cannot be nil")
	}
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if gateway == nil {
		panic("conversation: delivery gateway cannot be nil")
	}
	if router == nil {
		panic("conversation: router cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := &Orchestrator{
		dedup:        dedup,
		store:        store,
		gateway:      gateway,
		registration: NewRegistrationFlow(prompts),
		router:       router,
		prompts:      prompts,
		logger:       logger,
		tracer:       otel.Tracer("concierge.internal.conversation.orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle processes one inbound text. Failures are logged here and never
// returned; the caller only needs to acknowledge the event.
func (o *Orchestrator) Handle(ctx context.Context, sender, text, messageID string) {
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()
	ctx, span := o.tracer.Start(ctx, "conversation.handle", trace.WithAttributes(
		attribute.String("whatsapp.message_id", messageID),
	))
	defer span.End()

	log := o.logger.With("sender", sender, "message_id", messageID)

	admitted, err := o.dedup.Admit(ctx, messageID)
	if err != nil {
		span.RecordError(err)
		log.Error("dedup admit failed, dropping event", "error", err)
		o.metrics.ObserveHandled("dedup_error")
		return
	}
	if !admitted {
		log.Debug("duplicate inbound event dropped")
		o.metrics.ObserveDuplicate()
		return
	}
	defer o.release(ctx, messageID, log)

	defer func() {
		if r := recover(); r != nil {
			span.SetStatus(codes.Error, "panic")
			log.Error("panic while handling inbound event", "panic", r, "stack", string(debug.Stack()))
			o.metrics.ObserveHandled("panic")
		}
	}()

	phase, err := o.process(ctx, sender, text, messageID, log)
	o.metrics.ObserveHandleLatency(phase, time.Since(started).Seconds())
	span.SetAttributes(attribute.String("conversation.phase", phase))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome := "failed"
		if errors.Is(err, errSaveSuppressed) {
			outcome = "suppressed"
		}
		log.Error("inbound event handling failed", "phase", phase, "error", err)
		o.metrics.ObserveHandled(outcome)
		return
	}
	o.metrics.ObserveHandled("ok")
}

func (o *Orchestrator) release(ctx context.Context, messageID string, log *logging.Logger) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := o.dedup.Release(releaseCtx, messageID); err != nil {
		log.Warn("dedup release failed", "error", err)
	}
}

func (o *Orchestrator) process(ctx context.Context, sender, text, messageID string, log *logging.Logger) (string, error) {
	user, err := o.findOrCreate(ctx, sender)
	if err != nil {
		return phaseIgnored, err
	}
	log = log.With("conversation_id", user.ID)

	if err := o.gateway.MarkRead(ctx, messageID); err != nil {
		log.Warn("mark read failed", "error", err)
	}

	if user.Disabled {
		log.Info("ignoring message from disabled user")
		return phaseIgnored, nil
	}

	var (
		tr    Transition
		phase string
	)
	switch {
	case !user.IsRegistered:
		phase = phaseRegistration
		tr = o.registration.Next(user, text)
	case !user.TermsAccepted:
		phase = phaseTermsGuard
		tr = o.termsGuard(user, text)
	default:
		phase = phaseRouter
		tr = o.router.Route(ctx, user, text)
	}

	if tr.Err != nil {
		if errors.Is(tr.Err, ErrValidationSkip) {
			log.Debug("registration answer rejected", "step", user.RegistrationStep)
		} else {
			log.Warn("transition completed with errors", "phase", phase, "error", tr.Err)
		}
	}

	if tr.Changed {
		if err := tr.Next.Validate(); err != nil {
			return phase, fmt.Errorf("%w: %w", errSaveSuppressed, err)
		}
		if _, err := o.store.Save(ctx, tr.Next); err != nil {
			return phase, fmt.Errorf("%w: %w", errSaveSuppressed, err)
		}
		o.metrics.ObserveTransition(phase, transitionLabel(tr.Next))
	}

	for _, out := range tr.Outbound {
		if err := o.gateway.Send(ctx, sender, out.Text, messageID); err != nil {
			log.Warn("outbound send failed", "error", err)
			o.metrics.ObserveOutbound("failed")
			continue
		}
		o.metrics.ObserveOutbound("sent")
	}
	return phase, nil
}

// findOrCreate resolves the sender's record; a lost creation race is
// resolved by one re-fetch.
func (o *Orchestrator) findOrCreate(ctx context.Context, sender string) (*UserConversation, error) {
	user, err := o.store.FindBySender(ctx, sender)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("conversation: find sender: %w", err)
	}

	user, err = o.store.Create(ctx, sender)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrConflict) {
		return nil, fmt.Errorf("conversation: create sender: %w", err)
	}

	user, err = o.store.FindBySender(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("conversation: re-fetch after conflict: %w", err)
	}
	return user, nil
}

// termsGuard handles a registered record that never accepted the terms.
func (o *Orchestrator) termsGuard(user *UserConversation, text string) Transition {
	next := user.Clone()
	if normalizeInput(text) != normalizeInput(o.prompts.TermsAcceptKeyword) {
		return Transition{Next: next, Outbound: []Outbound{{Text: o.prompts.Terms}}}
	}
	next.TermsAccepted = true
	if next.MainState == StateNone {
		next.MainState = StateMenu
	}
	next.UpdatedAt = time.Now()
	return Transition{
		Next:     next,
		Outbound: []Outbound{{Text: o.prompts.MainMenu}},
		Changed:  true,
	}
}

func transitionLabel(user *UserConversation) string {
	if user.IsRegistered {
		return string(user.MainState)
	}
	return string(user.RegistrationStep)
}
