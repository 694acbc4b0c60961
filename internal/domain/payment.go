package domain

import (
	"strings"
	"time"
)

// PaymentStatus is the lifecycle state of a PaymentIntent
type PaymentStatus string

// Payment statuses. Only pending may change, and only to one of the others.
const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// FreeSessionPrefix marks synthesized sessions for free-access users
const FreeSessionPrefix = "free_"

// IsTerminal reports whether no further transition is possible
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentCancelled
}

// PaymentIntent tracks one checkout for a set of photos
type PaymentIntent struct {
	ID                string        `json:"id" db:"id"`
	UserID            string        `json:"user_id" db:"user_id"`
	ProviderSessionID string        `json:"provider_session_id" db:"provider_session_id"`
	ProviderPaymentID *string       `json:"provider_payment_id,omitempty" db:"provider_payment_id"`
	Status            PaymentStatus `json:"status" db:"status"`
	Amount            int64         `json:"amount" db:"amount"`
	Currency          string        `json:"currency" db:"currency"`
	PhotoCount        int           `json:"photo_count" db:"photo_count"`
	PhotoIDs          []string      `json:"photo_ids" db:"photo_ids"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}

// IsFree reports whether the intent was synthesized for a free-access user
func (p *PaymentIntent) IsFree() bool {
	return strings.HasPrefix(p.ProviderSessionID, FreeSessionPrefix)
}

// Covers reports whether the intent includes every id in photoIDs
func (p *PaymentIntent) Covers(photoIDs []string) bool {
	paid := make(map[string]struct{}, len(p.PhotoIDs))
	for _, id := range p.PhotoIDs {
		paid[id] = struct{}{}
	}
	for _, id := range photoIDs {
		if _, ok := paid[id]; !ok {
			return false
		}
	}
	return true
}

// DedupIDs removes duplicates while preserving first-seen order
func DedupIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
