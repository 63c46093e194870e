package reporting

import (
	"time"

	"loanvoice-platform/internal/calls"
)

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Attempt is one immutable dispatch-outcome record for a borrower.
// Outcomes are appended when a call reaches a terminal state; the journal
// is never rewritten.

type Attempt struct {
	ID    string       `json:"id" db:"id"`
	Phone string       `json:"phone" db:"phone"`
	Room  string       `json:"room,omitempty" db:"room"`
	Final calls.Status `json:"final_status" db:"final_status"`

	// LastMessage is the closing status line from the call channel.
	LastMessage string `json:"last_message,omitempty" db:"last_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// BorrowerSummaryRequest requests per-borrower attempt metrics.

type BorrowerSummaryRequest struct {
	Phone string    `json:"phone"`
	Range TimeRange `json:"range"`
}

type BorrowerSummary struct {
	Phone string `json:"phone"`

	TotalAttempts  int `json:"total_attempts"`
	CompletedCalls int `json:"completed_calls"`
	FailedCalls    int `json:"failed_calls"`

	LastStatus    calls.Status `json:"last_status,omitempty"`
	LastAttemptAt time.Time    `json:"last_attempt_at"`
}

// CampaignSummaryRequest requests book-wide attempt metrics.

type CampaignSummaryRequest struct {
	Range TimeRange `json:"range"`
}

type CampaignSummary struct {
	TotalAttempts      int `json:"total_attempts"`
	BorrowersAttempted int `json:"borrowers_attempted"`
	CompletedCalls     int `json:"completed_calls"`
	FailedCalls        int `json:"failed_calls"`

	CompletionRate float64 `json:"completion_rate"`
}
