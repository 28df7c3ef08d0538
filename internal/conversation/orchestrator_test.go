package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/whatsapp-concierge/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

type orchestratorFixture struct {
	orch    *Orchestrator
	store   *MemoryStore
	gateway *fakeGateway
	gen     *fakeGenerator
	dedup   *recordingDedup
}

func newOrchestratorFixture(t *testing.T, store Store, faqs ...FAQ) *orchestratorFixture {
	t.Helper()
	mem, _ := store.(*MemoryStore)
	if store == nil {
		mem = NewMemoryStore(faqs...)
		store = mem
	}
	gateway := &fakeGateway{}
	gen := &fakeGenerator{reply: "happy to help"}
	dedup := &recordingDedup{Deduplicator: newSetDedup()}
	prompts := DefaultPrompts()
	router := NewInteractionRouter(prompts, store, nil, gen)
	orch := NewOrchestrator(dedup, store, gateway, prompts, router, logging.Default(),
		WithMetrics(metrics.NewConversationMetrics(prometheus.NewRegistry())))
	return &orchestratorFixture{orch: orch, store: mem, gateway: gateway, gen: gen, dedup: dedup}
}

func TestOrchestrator_EndToEndRegistration(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	ctx := context.Background()
	prompts := DefaultPrompts()

	f.orch.Handle(ctx, "+1000", "hi", "wamid.1")
	user, err := f.store.FindBySender(ctx, "+1000")
	require.NoError(t, err)
	assert.Equal(t, StepFirstName, user.RegistrationStep)
	assert.Equal(t, prompts.FirstName, f.gateway.last())

	f.orch.Handle(ctx, "+1000", "Ana", "wamid.2")
	user, _ = f.store.FindBySender(ctx, "+1000")
	assert.Equal(t, "Ana", user.Profile.FirstName)
	assert.Equal(t, StepLastName, user.RegistrationStep)
	assert.Equal(t, prompts.LastName, f.gateway.last())

	f.orch.Handle(ctx, "+1000", "Lima", "wamid.3")
	f.orch.Handle(ctx, "+1000", "2", "wamid.4")
	f.orch.Handle(ctx, "+1000", "B-12", "wamid.5")
	user, _ = f.store.FindBySender(ctx, "+1000")
	assert.Equal(t, StepTerms, user.RegistrationStep)
	assert.Equal(t, "Human Resources", user.Profile.OrganizationUnit)

	f.orch.Handle(ctx, "+1000", "accept", "wamid.6")
	user, _ = f.store.FindBySender(ctx, "+1000")
	assert.True(t, user.IsRegistered)
	assert.True(t, user.TermsAccepted)
	assert.Equal(t, StateMenu, user.MainState)
	assert.Equal(t, prompts.MainMenu, f.gateway.last())

	assert.Equal(t, 1, f.store.Count())
	assert.Len(t, f.gateway.read, 6, "every event is marked read")
	assert.Len(t, f.dedup.released, 6, "every admitted event is released")
	for _, m := range f.gateway.sent {
		assert.Equal(t, "+1000", m.To)
	}
}

func TestOrchestrator_RegisteredMenuFAQs(t *testing.T) {
	f := newOrchestratorFixture(t, nil, FAQ{ID: "1", Question: "Leave?", Answer: "Portal.", OrganizationUnit: "Finance"})
	ctx := context.Background()
	seedRegistered(t, f.store, "+3000", "Finance", StateMenu)

	f.orch.Handle(ctx, "+3000", "1", "wamid.faq")

	assert.Equal(t, RenderFAQs(DefaultPrompts().FAQHeader, []FAQ{{Question: "Leave?", Answer: "Portal."}}), f.gateway.last())
	user, _ := f.store.FindBySender(ctx, "+3000")
	assert.Equal(t, StateMenu, user.MainState)
}

func TestOrchestrator_ChatFlow(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	ctx := context.Background()
	seedRegistered(t, f.store, "+3000", "Finance", StateMenu)

	f.orch.Handle(ctx, "+3000", "chat", "wamid.a")
	assert.Equal(t, DefaultPrompts().ChatActivated, f.gateway.last())

	f.orch.Handle(ctx, "+3000", "what's the wifi password?", "wamid.b")
	assert.Equal(t, "happy to help", f.gateway.last())
	assert.Equal(t, 1, f.gen.callCount())

	f.orch.Handle(ctx, "+3000", "menu", "wamid.c")
	assert.Equal(t, DefaultPrompts().MainMenu, f.gateway.last())
	assert.Equal(t, 1, f.gen.callCount())
}

func TestOrchestrator_DuplicateDeliveriesHandledOnce(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	ctx := context.Background()

	// Hold the marker as if another worker were mid-flight.
	ok, err := f.dedup.Admit(ctx, "wamid.dup")
	require.NoError(t, err)
	require.True(t, ok)

	f.orch.Handle(ctx, "+1000", "hi", "wamid.dup")
	assert.Empty(t, f.gateway.sent)
	assert.Zero(t, f.store.Count())
	assert.Empty(t, f.dedup.released, "a rejected event must not release the other holder's marker")
}

func TestOrchestrator_ConcurrentFirstContactCreatesOneRecord(t *testing.T) {
	f := newOrchestratorFixture(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.orch.Handle(context.Background(), "+5000", "hi", fmt.Sprintf("wamid.%d", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.store.Count())
	user, err := f.store.FindBySender(context.Background(), "+5000")
	require.NoError(t, err)
	assert.NotEqual(t, StepNone, user.RegistrationStep)
}

// conflictStore loses the creation race once, like a concurrent insert would.
type conflictStore struct {
	*MemoryStore
	once sync.Once
}

func (s *conflictStore) Create(ctx context.Context, address string) (*UserConversation, error) {
	var raced bool
	s.once.Do(func() {
		_, _ = s.MemoryStore.Create(ctx, address)
		raced = true
	})
	if raced {
		return nil, ErrConflict
	}
	return s.MemoryStore.Create(ctx, address)
}

func TestOrchestrator_CreateConflictRefetches(t *testing.T) {
	mem := NewMemoryStore()
	store := &conflictStore{MemoryStore: mem}
	f := newOrchestratorFixture(t, store)

	f.orch.Handle(context.Background(), "+6000", "hi", "wamid.1")

	assert.Equal(t, 1, mem.Count())
	assert.Equal(t, DefaultPrompts().FirstName, f.gateway.last())
}

// failingSaveStore rejects every write.
type failingSaveStore struct {
	*MemoryStore
}

func (s failingSaveStore) Save(context.Context, *UserConversation) (*UserConversation, error) {
	return nil, errors.New("db down")
}

func TestOrchestrator_SaveFailureSuppressesReply(t *testing.T) {
	mem := NewMemoryStore()
	f := newOrchestratorFixture(t, failingSaveStore{mem})

	f.orch.Handle(context.Background(), "+7000", "hi", "wamid.1")

	assert.Empty(t, f.gateway.sent, "no reply when the transition was not persisted")
	assert.Len(t, f.dedup.released, 1)
	user, err := mem.FindBySender(context.Background(), "+7000")
	require.NoError(t, err)
	assert.Equal(t, StepNone, user.RegistrationStep)
}

// racingStore lets another writer win between the orchestrator's read and write.
type racingStore struct {
	*MemoryStore
}

func (s racingStore) Save(ctx context.Context, user *UserConversation) (*UserConversation, error) {
	current, err := s.MemoryStore.FindBySender(ctx, user.SenderAddress)
	if err != nil {
		return nil, err
	}
	current.Profile.WorkStation = "touched elsewhere"
	if _, err := s.MemoryStore.Save(ctx, current); err != nil {
		return nil, err
	}
	return s.MemoryStore.Save(ctx, user)
}

func TestOrchestrator_StaleVersionSuppressesReply(t *testing.T) {
	mem := NewMemoryStore()
	f := newOrchestratorFixture(t, racingStore{mem})

	f.orch.Handle(context.Background(), "+7100", "hi", "wamid.1")

	assert.Empty(t, f.gateway.sent)
	user, err := mem.FindBySender(context.Background(), "+7100")
	require.NoError(t, err)
	assert.Equal(t, StepNone, user.RegistrationStep)
	assert.Equal(t, "touched elsewhere", user.Profile.WorkStation)
}

func TestOrchestrator_MarkReadFailureDoesNotAbort(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.gateway.readErr = errors.New("graph api 500")

	f.orch.Handle(context.Background(), "+8000", "hi", "wamid.1")
	assert.Equal(t, DefaultPrompts().FirstName, f.gateway.last())
}

func TestOrchestrator_SendFailureKeepsState(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.gateway.sendErr = errors.New("timeout")

	f.orch.Handle(context.Background(), "+8100", "hi", "wamid.1")
	user, err := f.store.FindBySender(context.Background(), "+8100")
	require.NoError(t, err)
	assert.Equal(t, StepFirstName, user.RegistrationStep)
	assert.Len(t, f.dedup.released, 1)
}

func TestOrchestrator_DisabledUserIgnored(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	ctx := context.Background()
	user := seedRegistered(t, f.store, "+9000", "Finance", StateMenu)
	user.Disabled = true
	_, err := f.store.Save(ctx, user)
	require.NoError(t, err)

	f.orch.Handle(ctx, "+9000", "1", "wamid.1")
	assert.Empty(t, f.gateway.sent)
	assert.Equal(t, []string{"wamid.1"}, f.gateway.read)
}

func TestOrchestrator_TermsGuard(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	ctx := context.Background()
	user := seedRegistered(t, f.store, "+9100", "Finance", StateMenu)
	user.TermsAccepted = false
	_, err := f.store.Save(ctx, user)
	require.NoError(t, err)

	f.orch.Handle(ctx, "+9100", "1", "wamid.1")
	assert.Equal(t, DefaultPrompts().Terms, f.gateway.last())

	f.orch.Handle(ctx, "+9100", "ACCEPT", "wamid.2")
	assert.Equal(t, DefaultPrompts().MainMenu, f.gateway.last())
	user, _ = f.store.FindBySender(ctx, "+9100")
	assert.True(t, user.TermsAccepted)
}

// legacyRowStore serves a registered row whose profile predates validation.
type legacyRowStore struct {
	*MemoryStore
}

func (s legacyRowStore) FindBySender(ctx context.Context, address string) (*UserConversation, error) {
	user, err := s.MemoryStore.FindBySender(ctx, address)
	if err != nil {
		return nil, err
	}
	user.TermsAccepted = false
	user.Profile.WorkStation = ""
	return user, nil
}

func TestOrchestrator_TermsGuardRejectsIncompleteProfile(t *testing.T) {
	mem := NewMemoryStore()
	seedRegistered(t, mem, "+9150", "Finance", StateMenu)
	f := newOrchestratorFixture(t, legacyRowStore{mem})

	f.orch.Handle(context.Background(), "+9150", "accept", "wamid.1")

	assert.Empty(t, f.gateway.sent, "an incomplete registered record is never persisted")
	user, err := mem.FindBySender(context.Background(), "+9150")
	require.NoError(t, err)
	assert.Equal(t, "B-12", user.Profile.WorkStation)
}

func TestOrchestrator_PanicReleasesMarker(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	seedRegistered(t, f.store, "+9200", "Finance", StateChat)
	f.gen.panic = true

	assert.NotPanics(t, func() {
		f.orch.Handle(context.Background(), "+9200", "boom", "wamid.p")
	})
	assert.Equal(t, []string{"wamid.p"}, f.dedup.released)

	ok, err := f.dedup.Admit(context.Background(), "wamid.p")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOrchestrator_AdmitErrorDropsEvent(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.dedup.admitErr = errors.New("redis down")

	f.orch.Handle(context.Background(), "+9300", "hi", "wamid.1")
	assert.Empty(t, f.gateway.sent)
	assert.Zero(t, f.store.Count())
	assert.Empty(t, f.dedup.released)
}

func seedRegistered(t *testing.T, store *MemoryStore, sender, unit string, state MainState) *UserConversation {
	t.Helper()
	ctx := context.Background()
	created, err := store.Create(ctx, sender)
	require.NoError(t, err)
	user := registeredUser(created.ID, sender, unit, state)
	user.Version = created.Version
	saved, err := store.Save(ctx, user)
	require.NoError(t, err)
	return saved
}
