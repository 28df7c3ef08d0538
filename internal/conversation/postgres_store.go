package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists conversations in Postgres. Sender uniqueness is
// enforced by the whatsapp_users_sender_key constraint.
type PostgresStore struct {
	pool rowQuerier
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

func newPostgresStoreWithQuerier(q rowQuerier) *PostgresStore {
	if q == nil {
		panic("conversation: querier required")
	}
	return &PostgresStore{pool: q}
}

const userColumns = `id, sender_address, first_name, last_name, organization_unit, work_station,
	terms_accepted, is_registered, registration_step, main_state, is_disabled, version, created_at, updated_at`

func scanUser(row pgx.Row) (*UserConversation, error) {
	var (
		u         UserConversation
		step      string
		mainState string
	)
	if err := row.Scan(
		&u.ID,
		&u.SenderAddress,
		&u.Profile.FirstName,
		&u.Profile.LastName,
		&u.Profile.OrganizationUnit,
		&u.Profile.WorkStation,
		&u.TermsAccepted,
		&u.IsRegistered,
		&step,
		&mainState,
		&u.Disabled,
		&u.Version,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}

	parsedStep, err := ParseRegistrationStep(step)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	u.RegistrationStep = parsedStep

	// Unknown states are kept as-is; the router treats them as MENU.
	if parsed, err := ParseMainState(mainState); err == nil {
		u.MainState = parsed
	} else {
		u.MainState = MainState(mainState)
	}
	return &u, nil
}

func (s *PostgresStore) FindBySender(ctx context.Context, address string) (*UserConversation, error) {
	query := `SELECT ` + userColumns + ` FROM whatsapp_users WHERE sender_address = $1`
	user, err := scanUser(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("conversation: find by sender: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) Create(ctx context.Context, address string) (*UserConversation, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("%w: sender address required", ErrInvalidRecord)
	}
	query := `
		INSERT INTO whatsapp_users (id, sender_address, registration_step, main_state)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	user, err := scanUser(s.pool.QueryRow(ctx, query, uuid.NewString(), address, string(StepNone), string(StateNone)))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sender %s already exists", ErrConflict, address)
		}
		return nil, fmt.Errorf("conversation: create user: %w", err)
	}
	return user, nil
}

// Save writes user if its version is current. Registration is never reverted.
func (s *PostgresStore) Save(ctx context.Context, user *UserConversation) (*UserConversation, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	query := `
		UPDATE whatsapp_users SET
			first_name = $3,
			last_name = $4,
			organization_unit = $5,
			work_station = $6,
			terms_accepted = $7,
			is_registered = $8,
			registration_step = $9,
			main_state = $10,
			is_disabled = $11,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2 AND (is_registered = FALSE OR $8 = TRUE)
		RETURNING ` + userColumns
	saved, err := scanUser(s.pool.QueryRow(ctx, query,
		user.ID,
		user.Version,
		user.Profile.FirstName,
		user.Profile.LastName,
		user.Profile.OrganizationUnit,
		user.Profile.WorkStation,
		user.TermsAccepted,
		user.IsRegistered,
		string(user.RegistrationStep),
		string(user.MainState),
		user.Disabled,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s changed since version %d", ErrConflict, user.ID, user.Version)
		}
		return nil, fmt.Errorf("conversation: save user: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) AppendLog(ctx context.Context, conversationID string, direction Direction, text string) error {
	query := `INSERT INTO message_logs (conversation_id, direction, body) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, conversationID, string(direction), text); err != nil {
		return fmt.Errorf("conversation: append log: %w", err)
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, conversationID string) ([]MessageLogEntry, error) {
	query := `
		SELECT id, conversation_id, direction, body, created_at
		FROM message_logs
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load history: %w", err)
	}
	defer rows.Close()

	var entries []MessageLogEntry
	for rows.Next() {
		var (
			entry     MessageLogEntry
			direction string
			createdAt time.Time
		)
		if err := rows.Scan(&entry.ID, &entry.ConversationID, &direction, &entry.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("conversation: scan history: %w", err)
		}
		entry.Direction = Direction(direction)
		entry.CreatedAt = createdAt
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate history: %w", err)
	}
	return entries, nil
}

// FAQsByUnitsQuery selects the catalog entries whose lowercased unit is in
// the $1 array. The FAQ repository and PostgresStore share it so both
// return the same order.
const FAQsByUnitsQuery = `
		SELECT id, question, answer, organization_unit
		FROM faqs
		WHERE LOWER(organization_unit) = ANY($1)
		ORDER BY organization_unit ASC, created_at ASC, id ASC`

// FAQsByOrganizationUnit reads the catalog straight from the pool. Runtime
// wiring prefers the FAQ repository; this keeps the Store contract whole.
// A blank unit matches nothing.
func (s *PostgresStore) FAQsByOrganizationUnit(ctx context.Context, unit string) ([]FAQ, error) {
	unit = strings.ToLower(strings.TrimSpace(unit))
	if unit == "" {
		return []FAQ{}, nil
	}
	rows, err := s.pool.Query(ctx, FAQsByUnitsQuery, []string{unit})
	if err != nil {
		return nil, fmt.Errorf("conversation: load faqs: %w", err)
	}
	defer rows.Close()

	faqs := []FAQ{}
	for rows.Next() {
		var faq FAQ
		if err := rows.Scan(&faq.ID, &faq.Question, &faq.Answer, &faq.OrganizationUnit); err != nil {
			return nil, fmt.Errorf("conversation: scan faq: %w", err)
		}
		faqs = append(faqs, faq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate faqs: %w", err)
	}
	return faqs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
