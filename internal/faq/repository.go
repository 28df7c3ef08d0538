// Package faq manages the per-organization-unit FAQ catalog shown from the main menu.
package faq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
)

// SQLRepository reads and writes the faqs table through database/sql.
type SQLRepository struct {
	db *sql.DB
}

var _ conversation.FAQSource = (*SQLRepository)(nil)

// NewSQLRepository wraps an open database handle.
func NewSQLRepository(db *sql.DB) *SQLRepository {
	if db == nil {
		panic("faq: db cannot be nil")
	}
	return &SQLRepository{db: db}
}

// FAQsByOrganizationUnit returns the entries for one unit, oldest first.
// A blank unit matches nothing.
func (r *SQLRepository) FAQsByOrganizationUnit(ctx context.Context, unit string) ([]conversation.FAQ, error) {
	if strings.TrimSpace(unit) == "" {
		return []conversation.FAQ{}, nil
	}
	return r.List(ctx, []string{unit})
}

// List returns entries for the given units. An empty unit list returns the whole catalog.
func (r *SQLRepository) List(ctx context.Context, units []string) ([]conversation.FAQ, error) {
	query := `
		SELECT id, question, answer, organization_unit
		FROM faqs
		ORDER BY organization_unit ASC, created_at ASC, id ASC`
	var args []any
	if normalized := normalizeUnits(units); len(normalized) > 0 {
		query = conversation.FAQsByUnitsQuery
		args = append(args, pq.Array(normalized))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("faq: list: %w", err)
	}
	defer rows.Close()

	out := []conversation.FAQ{}
	for rows.Next() {
		var f conversation.FAQ
		if err := rows.Scan(&f.ID, &f.Question, &f.Answer, &f.OrganizationUnit); err != nil {
			return nil, fmt.Errorf("faq: scan: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Upsert inserts f, or replaces the entry with the same id. A missing id is generated.
// It returns the unit the entry belonged to before the write, or "" for a new entry.
func (r *SQLRepository) Upsert(ctx context.Context, f *conversation.FAQ) (string, error) {
	if f == nil {
		return "", errors.New("faq: entry cannot be nil")
	}
	if err := Validate(*f); err != nil {
		return "", err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	var previous sql.NullString
	err := r.db.QueryRowContext(ctx, `
		WITH prev AS (SELECT organization_unit FROM faqs WHERE id = $1)
		INSERT INTO faqs (id, question, answer, organization_unit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO UPDATE SET
		    question=EXCLUDED.question, answer=EXCLUDED.answer,
		    organization_unit=EXCLUDED.organization_unit, updated_at=$5
		RETURNING (SELECT organization_unit FROM prev)`,
		f.ID, f.Question, f.Answer, f.OrganizationUnit, now).Scan(&previous)
	if err != nil {
		return "", fmt.Errorf("faq: upsert %s: %w", f.ID, err)
	}
	return previous.String, nil
}

// Delete removes one entry and returns the unit it belonged to.
func (r *SQLRepository) Delete(ctx context.Context, id string) (string, error) {
	var unit string
	err := r.db.QueryRowContext(ctx, `DELETE FROM faqs WHERE id = $1 RETURNING organization_unit`, id).Scan(&unit)
	if errors.Is(err, sql.ErrNoRows) {
		return "", conversation.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("faq: delete %s: %w", id, err)
	}
	return unit, nil
}

// ErrInvalidEntry is returned for entries missing a question, answer or unit.
var ErrInvalidEntry = errors.New("faq: question, answer and organization_unit are required")

// Validate reports ErrInvalidEntry for incomplete entries.
func Validate(f conversation.FAQ) error {
	if strings.TrimSpace(f.Question) == "" || strings.TrimSpace(f.Answer) == "" || strings.TrimSpace(f.OrganizationUnit) == "" {
		return ErrInvalidEntry
	}
	return nil
}

func normalizeUnits(units []string) []string {
	var out []string
	for _, u := range units {
		u = strings.ToLower(strings.TrimSpace(u))
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}
