// Package assistant streams AI chat replies for CRM users, falling back
// across providers in a fixed order.
package assistant

import "errors"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Mode selects the base role prompt and the context that is assembled.
type Mode string

const (
	ModeGeneral Mode = "general"
	ModeCRM     Mode = "crm"
)

// Locale is a supported reply language.
type Locale string

const (
	LocaleEnglish Locale = "en"
	LocaleArabic  Locale = "ar"
)

// MaxHistoryTurns is how many prior turns are sent ahead of the new user turn.
const MaxHistoryTurns = 15

// ChatMessage is one role-tagged conversation turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a caller's chat turn. The last message must be the user's.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	Mode     Mode          `json:"mode,omitempty"`
	Locale   string        `json:"locale,omitempty"`
	LeadID   string        `json:"lead_id,omitempty"`
}

// CompletionRequest is what a provider receives.
type CompletionRequest struct {
	System   string
	Messages []ChatMessage
}

// Chunk is one element of an orchestrated stream. Exactly one chunk with
// Done or Err set ends every stream.
type Chunk struct {
	Text string
	Done bool
	Err  error
}

var (
	ErrNoCaller            = errors.New("assistant: caller is required")
	ErrEmptyConversation   = errors.New("assistant: conversation must end with a user message")
	ErrNoProviders         = errors.New("assistant: no providers configured")
	ErrAllProvidersFailed  = errors.New("assistant: all providers failed")
	ErrStreamInterrupted   = errors.New("assistant: provider stream interrupted")
	ErrForbidden           = errors.New("assistant: caller may not view this lead")
	ErrLeadNotFound        = errors.New("assistant: lead not found")
	errEmptyProviderResult = errors.New("assistant: provider returned no text")
)
