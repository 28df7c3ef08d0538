package faq

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
)

type fakeCatalog struct {
	units     []string
	saved     []conversation.FAQ
	deleted   []string
	listErr   error
	deleteErr error
}

func (f *fakeCatalog) List(ctx context.Context, units []string) ([]conversation.FAQ, error) {
	f.units = units
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []conversation.FAQ{{ID: "f-1", Question: "Q", Answer: "A", OrganizationUnit: "Finance"}}, nil
}

func (f *fakeCatalog) Upsert(ctx context.Context, entry *conversation.FAQ) (string, error) {
	if err := Validate(*entry); err != nil {
		return "", err
	}
	if entry.ID == "" {
		entry.ID = "generated"
	}
	f.saved = append(f.saved, *entry)
	return "", nil
}

func (f *fakeCatalog) Delete(ctx context.Context, id string) (string, error) {
	if f.deleteErr != nil {
		return "", f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return "Finance", nil
}

type fakeInvalidator struct {
	units []string
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, unit string) error {
	f.units = append(f.units, unit)
	return nil
}

// memCatalog keeps entries by id and serves them per unit, like the faqs table.
type memCatalog struct {
	entries map[string]conversation.FAQ
}

func (m *memCatalog) List(ctx context.Context, units []string) ([]conversation.FAQ, error) {
	out := []conversation.FAQ{}
	for _, f := range m.entries {
		out = append(out, f)
	}
	return out, nil
}

func (m *memCatalog) Upsert(ctx context.Context, entry *conversation.FAQ) (string, error) {
	if err := Validate(*entry); err != nil {
		return "", err
	}
	previous := m.entries[entry.ID].OrganizationUnit
	m.entries[entry.ID] = *entry
	return previous, nil
}

func (m *memCatalog) Delete(ctx context.Context, id string) (string, error) {
	f, ok := m.entries[id]
	if !ok {
		return "", conversation.ErrNotFound
	}
	delete(m.entries, id)
	return f.OrganizationUnit, nil
}

func (m *memCatalog) FAQsByOrganizationUnit(ctx context.Context, unit string) ([]conversation.FAQ, error) {
	out := []conversation.FAQ{}
	for _, f := range m.entries {
		if strings.EqualFold(f.OrganizationUnit, unit) {
			out = append(out, f)
		}
	}
	return out, nil
}

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/admin/faqs", h.List)
	r.Post("/admin/faqs", h.Upsert)
	r.Delete("/admin/faqs/{id}", h.Delete)
	return r
}

func TestHandler_List(t *testing.T) {
	catalog := &fakeCatalog{}
	router := newTestRouter(NewHandler(catalog, nil, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/faqs?unit=Finance,Operations", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Finance", "Operations"}, catalog.units)
	var body struct {
		FAQs []conversation.FAQ `json:"faqs"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.FAQs, 1)
}

func TestHandler_ListError(t *testing.T) {
	router := newTestRouter(NewHandler(&fakeCatalog{listErr: errors.New("boom")}, nil, nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/faqs", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandler_Upsert(t *testing.T) {
	catalog := &fakeCatalog{}
	cache := &fakeInvalidator{}
	router := newTestRouter(NewHandler(catalog, cache, nil))

	rec := httptest.NewRecorder()
	body := `{"question":"Payday?","answer":"Last Friday","organization_unit":"Finance"}`
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/faqs", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, catalog.saved, 1)
	assert.Equal(t, "generated", catalog.saved[0].ID)
	assert.Equal(t, []string{"Finance"}, cache.units)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/faqs", strings.NewReader(`{"question":"only"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/faqs", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Delete(t *testing.T) {
	catalog := &fakeCatalog{}
	cache := &fakeInvalidator{}
	router := newTestRouter(NewHandler(catalog, cache, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/faqs/f-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"f-1"}, catalog.deleted)
	assert.Equal(t, []string{"Finance"}, cache.units)

	catalog.deleteErr = conversation.ErrNotFound
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/faqs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_UpsertMovingUnitInvalidatesBothUnits(t *testing.T) {
	_, client := newTestRedis(t)
	catalog := &memCatalog{entries: map[string]conversation.FAQ{
		"f-1": {ID: "f-1", Question: "Q", Answer: "A", OrganizationUnit: "Finance"},
	}}
	cached := NewCachedCatalog(catalog, client, time.Minute, nil)
	router := newTestRouter(NewHandler(catalog, cached, nil))
	ctx := context.Background()

	warm, err := cached.FAQsByOrganizationUnit(ctx, "Finance")
	require.NoError(t, err)
	require.Len(t, warm, 1)

	rec := httptest.NewRecorder()
	body := `{"id":"f-1","question":"Q","answer":"A","organization_unit":"Operations"}`
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/faqs", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	finance, err := cached.FAQsByOrganizationUnit(ctx, "Finance")
	require.NoError(t, err)
	assert.Empty(t, finance, "the old unit no longer lists the moved entry")

	operations, err := cached.FAQsByOrganizationUnit(ctx, "Operations")
	require.NoError(t, err)
	require.Len(t, operations, 1)
	assert.Equal(t, "f-1", operations[0].ID)
}

func TestHandler_UpsertSameUnitInvalidatesOnce(t *testing.T) {
	catalog := &memCatalog{entries: map[string]conversation.FAQ{
		"f-1": {ID: "f-1", Question: "Q", Answer: "A", OrganizationUnit: "Finance"},
	}}
	cache := &fakeInvalidator{}
	router := newTestRouter(NewHandler(catalog, cache, nil))

	rec := httptest.NewRecorder()
	body := `{"id":"f-1","question":"Q2","answer":"A2","organization_unit":"finance"}`
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/faqs", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"finance"}, cache.units)
}
