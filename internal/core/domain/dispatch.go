package domain

import "time"

// DispatchRecord describes an outbound request just before it is handed to
// the provider client.
type DispatchRecord struct {
	RequestID     string    `json:"request_id,omitempty" db:"request_id"`
	CallType      CallType  `json:"call_type" db:"call_type"`
	Model         string    `json:"model" db:"model"`
	MessageCount  int       `json:"message_count" db:"message_count"`
	Messages      string    `json:"messages" db:"messages"`
	Raw           bool      `json:"raw,omitempty" db:"raw"`
	TokenEstimate int       `json:"token_estimate" db:"token_estimate"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
