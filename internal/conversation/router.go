package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type routeAction string

const (
	actionShowMenu   routeAction = "show_menu"
	actionListFAQs   routeAction = "list_faqs"
	actionStartChat  routeAction = "start_chat"
	actionExit       routeAction = "exit"
	actionAskAI      routeAction = "ask_ai"
	actionSessionEnd routeAction = "session_ended"
)

// decide maps the current state and normalized input to an action and the
// state that follows it.
func decide(state MainState, input string) (routeAction, MainState) {
	if input == "menu" {
		return actionShowMenu, StateMenu
	}
	switch state {
	case StateChat:
		return actionAskAI, StateChat
	case StateEnd:
		return actionSessionEnd, StateEnd
	default:
		switch input {
		case "1", "faqs":
			return actionListFAQs, StateMenu
		case "2", "chat":
			return actionStartChat, StateChat
		case "3", "exit":
			return actionExit, StateEnd
		default:
			return actionShowMenu, StateMenu
		}
	}
}

func normalizeInput(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// InteractionRouter drives registered users through the menu, FAQ and chat states.
type InteractionRouter struct {
	prompts   Prompts
	store     Store
	faqs      FAQSource
	generator ResponseGenerator
	now       func() time.Time
}

// NewInteractionRouter wires a router. When faqs is nil the store serves FAQ content.
func NewInteractionRouter(prompts Prompts, store Store, faqs FAQSource, generator ResponseGenerator) *InteractionRouter {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if generator == nil {
		panic("conversation: response generator cannot be nil")
	}
	if faqs == nil {
		faqs = store
	}
	return &InteractionRouter{
		prompts:   prompts,
		store:     store,
		faqs:      faqs,
		generator: generator,
		now:       time.Now,
	}
}

// Route applies one inbound text to a registered user. The returned
// transition carries any failure in Err; outbound messages are still valid.
func (r *InteractionRouter) Route(ctx context.Context, user *UserConversation, text string) Transition {
	next := user.Clone()
	state := next.MainState
	if state != StateMenu && state != StateChat && state != StateEnd {
		state = StateMenu
	}

	action, nextState := decide(state, normalizeInput(text))
	changed := nextState != next.MainState
	next.MainState = nextState
	if changed {
		next.UpdatedAt = r.now()
	}

	tr := Transition{Next: next, Changed: changed}
	switch action {
	case actionShowMenu:
		tr.Outbound = []Outbound{{Text: r.prompts.MainMenu}}
	case actionStartChat:
		tr.Outbound = []Outbound{{Text: r.prompts.ChatActivated}}
	case actionExit:
		tr.Outbound = []Outbound{{Text: r.prompts.Farewell}}
	case actionSessionEnd:
		tr.Outbound = []Outbound{{Text: r.prompts.SessionEnded}}
	case actionListFAQs:
		msg, err := r.faqList(ctx, next.Profile.OrganizationUnit)
		tr.Outbound = []Outbound{{Text: msg}}
		tr.Err = err
	case actionAskAI:
		msg, err := r.chatTurn(ctx, next.ID, strings.TrimSpace(text))
		tr.Outbound = []Outbound{{Text: msg}}
		tr.Err = err
	}
	return tr
}

func (r *InteractionRouter) faqList(ctx context.Context, unit string) (string, error) {
	faqs, err := r.faqs.FAQsByOrganizationUnit(ctx, unit)
	if err != nil {
		return r.prompts.AssistantFailure, fmt.Errorf("conversation: load faqs: %w", err)
	}
	if len(faqs) == 0 {
		return r.prompts.FAQEmpty, nil
	}
	return RenderFAQs(r.prompts.FAQHeader, faqs), nil
}

// RenderFAQs formats FAQs as a numbered list under header.
func RenderFAQs(header string, faqs []FAQ) string {
	var b strings.Builder
	if header != "" {
		b.WriteString(header)
		b.WriteString("\n\n")
	}
	for i, faq := range faqs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s\n%s", i+1, strings.TrimSpace(faq.Question), strings.TrimSpace(faq.Answer))
	}
	return b.String()
}

func (r *InteractionRouter) chatTurn(ctx context.Context, conversationID, text string) (string, error) {
	var errs []error
	if err := r.store.AppendLog(ctx, conversationID, DirectionInbound, text); err != nil {
		errs = append(errs, fmt.Errorf("conversation: append inbound log: %w", err))
	}

	history, err := r.store.History(ctx, conversationID)
	if err != nil {
		errs = append(errs, fmt.Errorf("conversation: load history: %w", err))
		history = []MessageLogEntry{{
			ConversationID: conversationID,
			Direction:      DirectionInbound,
			Text:           text,
			CreatedAt:      r.now(),
		}}
	}

	reply, err := r.generator.Reply(ctx, conversationID, history)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		errs = append(errs, NewTransportError("generate reply", err))
		return r.prompts.AssistantFailure, errors.Join(errs...)
	}

	if err := r.store.AppendLog(ctx, conversationID, DirectionOutbound, reply); err != nil {
		errs = append(errs, fmt.Errorf("conversation: append outbound log: %w", err))
	}
	return reply, errors.Join(errs...)
}
