package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used for local development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	bySender map[string]*UserConversation
	byID     map[string]string
	logs     map[string][]MessageLogEntry
	faqs     []FAQ
	nextLog  int64
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store seeded with the given FAQs.
func NewMemoryStore(faqs ...FAQ) *MemoryStore {
	return &MemoryStore{
		bySender: make(map[string]*UserConversation),
		byID:     make(map[string]string),
		logs:     make(map[string][]MessageLogEntry),
		faqs:     append([]FAQ(nil), faqs...),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FindBySender returns a copy of the sender's record or ErrNotFound.
func (s *MemoryStore) FindBySender(ctx context.Context, address string) (*UserConversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.bySender[address]
	if !ok {
		return nil, ErrNotFound
	}
	return user.Clone(), nil
}

// Create registers a fresh record for address. ErrConflict reports an
// existing one.
func (s *MemoryStore) Create(ctx context.Context, address string) (*UserConversation, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("%w: sender address required", ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySender[address]; exists {
		return nil, fmt.Errorf("%w: sender %s already exists", ErrConflict, address)
	}
	user := NewUserConversation(uuid.NewString(), address, s.now())
	user.Version = 1
	s.bySender[address] = user
	s.byID[user.ID] = address
	return user.Clone(), nil
}

// Save validates user and replaces the stored copy.
func (s *MemoryStore) Save(ctx context.Context, user *UserConversation) (*UserConversation, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.bySender[user.SenderAddress]
	if !ok || current.ID != user.ID {
		return nil, ErrNotFound
	}
	if current.Version != user.Version {
		return nil, fmt.Errorf("%w: version %d is stale (current %d)", ErrConflict, user.Version, current.Version)
	}
	if current.IsRegistered && !user.IsRegistered {
		return nil, fmt.Errorf("%w: registration cannot be reverted", ErrInvalidRecord)
	}

	saved := user.Clone()
	saved.Version = current.Version + 1
	saved.CreatedAt = current.CreatedAt
	saved.UpdatedAt = s.now()
	s.bySender[saved.SenderAddress] = saved
	return saved.Clone(), nil
}

// AppendLog records one message for the conversation.
func (s *MemoryStore) AppendLog(ctx context.Context, conversationID string, direction Direction, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[conversationID]; !ok {
		return ErrNotFound
	}
	s.nextLog++
	s.logs[conversationID] = append(s.logs[conversationID], MessageLogEntry{
		ID:             s.nextLog,
		ConversationID: conversationID,
		Direction:      direction,
		Text:           text,
		CreatedAt:      s.now(),
	})
	return nil
}

// History returns the conversation log, oldest first.
func (s *MemoryStore) History(ctx context.Context, conversationID string) ([]MessageLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := append([]MessageLogEntry(nil), s.logs[conversationID]...)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// FAQsByOrganizationUnit filters the seeded FAQs by unit, ignoring case.
// A blank unit matches nothing.
func (s *MemoryStore) FAQsByOrganizationUnit(ctx context.Context, unit string) ([]FAQ, error) {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return []FAQ{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []FAQ{}
	for _, faq := range s.faqs {
		if strings.EqualFold(strings.TrimSpace(faq.OrganizationUnit), unit) {
			out = append(out, faq)
		}
	}
	return out, nil
}

// Count returns the number of stored conversations.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySender)
}
