package conversation

import (
	"context"
	"sync"
)

type sentMessage struct {
	To        string
	Text      string
	InReplyTo string
}

type fakeGateway struct {
	mu      sync.Mutex
	sent    []sentMessage
	read    []string
	sendErr error
	readErr error
}

func (g *fakeGateway) Send(ctx context.Context, address, text, inReplyTo string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return g.sendErr
	}
	g.sent = append(g.sent, sentMessage{To: address, Text: text, InReplyTo: inReplyTo})
	return nil
}

func (g *fakeGateway) MarkRead(ctx context.Context, messageID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.read = append(g.read, messageID)
	return g.readErr
}

func (g *fakeGateway) texts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.sent))
	for _, m := range g.sent {
		out = append(out, m.Text)
	}
	return out
}

func (g *fakeGateway) last() string {
	texts := g.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	history []MessageLogEntry
	reply   string
	err     error
	panic   bool
}

func (f *fakeGenerator) Reply(ctx context.Context, conversationID string, history []MessageLogEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		panic("generator exploded")
	}
	f.calls++
	f.history = append([]MessageLogEntry(nil), history...)
	return f.reply, f.err
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingDedup wraps another deduplicator and counts releases.
type recordingDedup struct {
	Deduplicator
	mu       sync.Mutex
	released []string
	admitErr error
}

func (r *recordingDedup) Admit(ctx context.Context, id string) (bool, error) {
	if r.admitErr != nil {
		return false, r.admitErr
	}
	return r.Deduplicator.Admit(ctx, id)
}

func (r *recordingDedup) Release(ctx context.Context, id string) error {
	r.mu.Lock()
	r.released = append(r.released, id)
	r.mu.Unlock()
	return r.Deduplicator.Release(ctx, id)
}

// setDedup is a minimal in-package deduplicator for tests.
type setDedup struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newSetDedup() *setDedup {
	return &setDedup{ids: make(map[string]struct{})}
}

func (s *setDedup) Admit(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false, nil
	}
	s.ids[id] = struct{}{}
	return true, nil
}

func (s *setDedup) Release(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
	return nil
}

func registeredUser(id, sender, unit string, state MainState) *UserConversation {
	return &UserConversation{
		ID:               id,
		SenderAddress:    sender,
		Profile:          Profile{FirstName: "Ana", LastName: "Lima", OrganizationUnit: unit, WorkStation: "B-12"},
		TermsAccepted:    true,
		IsRegistered:     true,
		RegistrationStep: StepCompleted,
		MainState:        state,
		Version:          1,
	}
}
