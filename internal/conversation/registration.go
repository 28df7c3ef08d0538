package conversation

import (
	"strings"
	"time"
)

// Outbound is one message to deliver after a transition is persisted.
type Outbound struct {
	Text string
}

// Transition is the result of applying one inbound text to a record.
type Transition struct {
	Next     *UserConversation
	Outbound []Outbound
	// Changed reports whether Next differs from the input and must be saved.
	Changed bool
	// Err carries ErrValidationSkip when the input was rejected.
	Err error
}

// RegistrationFlow advances the onboarding questionnaire one answer at a time.
type RegistrationFlow struct {
	prompts Prompts
	now     func() time.Time
}

// NewRegistrationFlow creates a flow using the given prompts.
func NewRegistrationFlow(prompts Prompts) *RegistrationFlow {
	return &RegistrationFlow{prompts: prompts, now: time.Now}
}

// Next applies input to user without mutating it.
func (f *RegistrationFlow) Next(user *UserConversation, input string) Transition {
	next := user.Clone()
	text := strings.TrimSpace(input)

	step := next.RegistrationStep
	if step == "" {
		step = StepNone
	}

	switch step {
	case StepNone:
		// The first message only opens the conversation; it is not an answer.
		next.RegistrationStep = StepFirstName
		return f.advanced(next, f.prompts.FirstName)
	case StepCompleted:
		return Transition{Next: next}
	}

	if text == "" {
		return Transition{
			Next:     next,
			Outbound: []Outbound{{Text: f.prompts.PromptFor(step)}},
			Err:      ErrValidationSkip,
		}
	}

	switch step {
	case StepFirstName:
		next.Profile.FirstName = text
	case StepLastName:
		next.Profile.LastName = text
	case StepOrganizationUnit:
		next.Profile.OrganizationUnit = f.organizationUnit(text)
	case StepWorkStation:
		next.Profile.WorkStation = text
	case StepTerms:
		if !strings.EqualFold(text, f.prompts.TermsAcceptKeyword) {
			return Transition{
				Next:     next,
				Outbound: []Outbound{{Text: f.prompts.Terms}},
				Err:      ErrValidationSkip,
			}
		}
		next.TermsAccepted = true
		next.IsRegistered = true
		next.MainState = StateMenu
		next.RegistrationStep = StepCompleted
		next.UpdatedAt = f.now()
		return Transition{
			Next: next,
			Outbound: []Outbound{
				{Text: f.prompts.RegistrationDone},
				{Text: f.prompts.MainMenu},
			},
			Changed: true,
		}
	}

	next.RegistrationStep = step.Next()
	return f.advanced(next, f.prompts.PromptFor(next.RegistrationStep))
}

func (f *RegistrationFlow) advanced(next *UserConversation, prompt string) Transition {
	next.UpdatedAt = f.now()
	return Transition{
		Next:     next,
		Outbound: []Outbound{{Text: prompt}},
		Changed:  true,
	}
}

// organizationUnit resolves a numeric shortcut to its canonical name.
func (f *RegistrationFlow) organizationUnit(text string) string {
	if name, ok := f.prompts.OrganizationUnits[text]; ok && name != "" {
		return name
	}
	return text
}
