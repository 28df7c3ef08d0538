package conversation

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Prompts holds every user-facing message the engine sends.
type Prompts struct {
	FirstName          string            `yaml:"first_name"`
	LastName           string            `yaml:"last_name"`
	OrganizationUnit   string            `yaml:"organization_unit"`
	WorkStation        string            `yaml:"work_station"`
	Terms              string            `yaml:"terms"`
	RegistrationDone   string            `yaml:"registration_done"`
	MainMenu           string            `yaml:"main_menu"`
	ChatActivated      string            `yaml:"chat_activated"`
	Farewell           string            `yaml:"farewell"`
	SessionEnded       string            `yaml:"session_ended"`
	FAQHeader          string            `yaml:"faq_header"`
	FAQEmpty           string            `yaml:"faq_empty"`
	AssistantFailure   string            `yaml:"assistant_failure"`
	SystemPrompt       string            `yaml:"system_prompt"`
	OrganizationUnits  map[string]string `yaml:"organization_units"`
	TermsAcceptKeyword string            `yaml:"terms_accept_keyword"`
}

// DefaultPrompts returns the built-in wording.
func DefaultPrompts() Prompts {
	return Prompts{
		FirstName:        "Welcome! Please provide your first name.",
		LastName:         "Thank you! Now, please provide your last name.",
		OrganizationUnit: "Great! Now, please provide your organization unit:\n1. Finance\n2. Human Resources\n3. Information Technology\n4. Operations\nor type its name.",
		WorkStation:      "Almost done! Please provide your work station.",
		Terms:            `Finally, please accept our terms by typing "accept".`,
		RegistrationDone: "Thank you for completing the registration! How can I assist you today?",
		MainMenu:         "Please choose an option:\n1. Get FAQs\n2. Chat with AI\n3. Exit",
		ChatActivated:    "Chat mode activated. Ask me anything, or type \"menu\" to go back.",
		Farewell:         "Goodbye! Type \"menu\" whenever you want to start again.",
		SessionEnded:     "This session has ended. Type \"menu\" to see the options again.",
		FAQHeader:        "Frequently asked questions:",
		FAQEmpty:         "There are no FAQs available for your organization unit yet.",
		AssistantFailure: "Sorry, I am unable to process your request at the moment.",
		SystemPrompt: "You are HSBot, a friendly assistant communicating via WhatsApp. " +
			"Keep answers short and easy to read, break information into small chunks, " +
			"use emojis sparingly and stay warm and approachable.",
		OrganizationUnits: map[string]string{
			"1": "Finance",
			"2": "Human Resources",
			"3": "Information Technology",
			"4": "Operations",
		},
		TermsAcceptKeyword: "accept",
	}
}

// LoadPrompts reads a YAML prompts file and merges it over the defaults.
// An empty path returns the defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if strings.TrimSpace(path) == "" {
		return prompts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("conversation: read prompts file: %w", err)
	}
	return ParsePrompts(data)
}

// ParsePrompts decodes YAML prompt overrides on top of the defaults.
func ParsePrompts(data []byte) (Prompts, error) {
	prompts := DefaultPrompts()
	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return prompts, fmt.Errorf("conversation: parse prompts: %w", err)
	}
	prompts.merge(override)
	return prompts, nil
}

func (p *Prompts) merge(o Prompts) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&p.FirstName, o.FirstName)
	set(&p.LastName, o.LastName)
	set(&p.OrganizationUnit, o.OrganizationUnit)
	set(&p.WorkStation, o.WorkStation)
	set(&p.Terms, o.Terms)
	set(&p.RegistrationDone, o.RegistrationDone)
	set(&p.MainMenu, o.MainMenu)
	set(&p.ChatActivated, o.ChatActivated)
	set(&p.Farewell, o.Farewell)
	set(&p.SessionEnded, o.SessionEnded)
	set(&p.FAQHeader, o.FAQHeader)
	set(&p.FAQEmpty, o.FAQEmpty)
	set(&p.AssistantFailure, o.AssistantFailure)
	set(&p.SystemPrompt, o.SystemPrompt)
	set(&p.TermsAcceptKeyword, o.TermsAcceptKeyword)
	if len(o.OrganizationUnits) > 0 {
		p.OrganizationUnits = o.OrganizationUnits
	}
}

// PromptFor returns the prompt that asks for the field at step.
func (p Prompts) PromptFor(step RegistrationStep) string {
	switch step {
	case StepNone, StepFirstName:
		return p.FirstName
	case StepLastName:
		return p.LastName
	case StepOrganizationUnit:
		return p.OrganizationUnit
	case StepWorkStation:
		return p.WorkStation
	case StepTerms:
		return p.Terms
	default:
		return p.RegistrationDone
	}
}
