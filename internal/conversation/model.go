package conversation

import (
	"fmt"
	"strings"
	"time"
)

// RegistrationStep identifies the field the registration flow is waiting for.
type RegistrationStep string

const (
	StepNone             RegistrationStep = "none"
	StepFirstName        RegistrationStep = "firstName"
	StepLastName         RegistrationStep = "lastName"
	StepOrganizationUnit RegistrationStep = "organizationUnit"
	StepWorkStation      RegistrationStep = "workStation"
	StepTerms            RegistrationStep = "terms"
	StepCompleted        RegistrationStep = "completed"
)

var registrationOrder = []RegistrationStep{
	StepNone,
	StepFirstName,
	StepLastName,
	StepOrganizationUnit,
	StepWorkStation,
	StepTerms,
	StepCompleted,
}

// ParseRegistrationStep converts a stored value into a RegistrationStep.
// Empty values map to StepNone.
func ParseRegistrationStep(raw string) (RegistrationStep, error) {
	if strings.TrimSpace(raw) == "" {
		return StepNone, nil
	}
	for _, step := range registrationOrder {
		if string(step) == raw {
			return step, nil
		}
	}
	return StepNone, fmt.Errorf("conversation: unknown registration step %q", raw)
}

// Index reports the position of the step in the registration order, or -1.
func (s RegistrationStep) Index() int {
	for i, step := range registrationOrder {
		if step == s {
			return i
		}
	}
	return -1
}

// Next returns the step that follows s. StepCompleted is terminal.
func (s RegistrationStep) Next() RegistrationStep {
	idx := s.Index()
	if idx < 0 || idx >= len(registrationOrder)-1 {
		return StepCompleted
	}
	return registrationOrder[idx+1]
}

// MainState is the post-registration interaction state.
type MainState string

const (
	StateNone MainState = "none"
	StateMenu MainState = "MENU"
	StateChat MainState = "CHAT"
	StateEnd  MainState = "END"
)

// ParseMainState converts a stored value into a MainState. Unrecognised
// values are reported as an error alongside StateMenu so callers can fall back.
func ParseMainState(raw string) (MainState, error) {
	switch MainState(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", "NONE":
		return StateNone, nil
	case StateMenu:
		return StateMenu, nil
	case StateChat:
		return StateChat, nil
	case StateEnd:
		return StateEnd, nil
	default:
		return StateMenu, fmt.Errorf("conversation: unknown main state %q", raw)
	}
}

// Profile is the data collected during registration.
type Profile struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	OrganizationUnit string `json:"organization_unit"`
	WorkStation      string `json:"work_station"`
}

// Complete reports whether every registration answer is present.
func (p Profile) Complete() bool {
	for _, v := range []string{p.FirstName, p.LastName, p.OrganizationUnit, p.WorkStation} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// UserConversation is the durable per-sender conversation record.
type UserConversation struct {
	ID               string           `json:"id"`
	SenderAddress    string           `json:"sender_address"`
	Profile          Profile          `json:"profile"`
	TermsAccepted    bool             `json:"terms_accepted"`
	IsRegistered     bool             `json:"is_registered"`
	RegistrationStep RegistrationStep `json:"registration_step"`
	MainState        MainState        `json:"main_state"`
	Disabled         bool             `json:"disabled"`
	Version          int64            `json:"version"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// NewUserConversation returns a fresh unregistered record for sender.
func NewUserConversation(id, sender string, now time.Time) *UserConversation {
	return &UserConversation{
		ID:               id,
		SenderAddress:    sender,
		RegistrationStep: StepNone,
		MainState:        StateNone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Clone returns a copy that can be modified without touching u.
func (u *UserConversation) Clone() *UserConversation {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Validate checks that exactly one phase is active.
func (u *UserConversation) Validate() error {
	if u == nil {
		return fmt.Errorf("%w: nil conversation", ErrInvalidRecord)
	}
	if strings.TrimSpace(u.SenderAddress) == "" {
		return fmt.Errorf("%w: sender address required", ErrInvalidRecord)
	}
	if u.RegistrationStep.Index() < 0 {
		return fmt.Errorf("%w: unknown registration step %q", ErrInvalidRecord, u.RegistrationStep)
	}
	if u.IsRegistered {
		if u.RegistrationStep != StepCompleted {
			return fmt.Errorf("%w: registered user at step %s", ErrInvalidRecord, u.RegistrationStep)
		}
		if u.MainState == StateNone {
			return fmt.Errorf("%w: registered user without main state", ErrInvalidRecord)
		}
		if !u.Profile.Complete() {
			return fmt.Errorf("%w: registered user with incomplete profile", ErrInvalidRecord)
		}
		return nil
	}
	if u.RegistrationStep == StepCompleted {
		return fmt.Errorf("%w: completed registration without registered flag", ErrInvalidRecord)
	}
	if u.MainState != StateNone {
		return fmt.Errorf("%w: unregistered user in main state %s", ErrInvalidRecord, u.MainState)
	}
	return nil
}

// Direction marks a log entry as user-originated or system-originated.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageLogEntry is one turn of the chat history.
type MessageLogEntry struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Direction      Direction `json:"direction"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

// FAQ is a question/answer pair scoped to an organization unit.
type FAQ struct {
	ID               string `json:"id"`
	Question         string `json:"question"`
	Answer           string `json:"answer"`
	OrganizationUnit string `json:"organization_unit"`
}
