package model

import "time"

// SubmissionAttempt is one inbound contact-form submission, constructed per
// request and never persisted. ClientIP is the raw network address; only its
// salted hash ever reaches the store.
type SubmissionAttempt struct {
	Email   string
	Subject string
	Message string

	// HoneypotFields maps hidden field names to their submitted values.
	// Every value must be empty for a human submission.
	HoneypotFields map[string]string

	CaptchaToken string
	FormToken    string

	// FormStartTime is the client-reported epoch timestamp in milliseconds
	// of when the form was opened. Zero means the client did not report it.
	FormStartTime int64

	// Interaction counters reported by the client. MouseMovements is always
	// expected; KeyPresses and FocusEvents are optional companions and a
	// value of -1 marks them as not reported.
	MouseMovements int
	KeyPresses     int
	FocusEvents    int

	ClientIP string
}

// RateLimitRecord is the per-identity record persisted in the store for the
// duration of the rate-limit window.
type RateLimitRecord struct {
	Email     string `json:"email"`
	Subject   string `json:"subject"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"` // RFC 3339
}

// NewRateLimitRecord builds a record for an accepted attempt, stamping it
// with the given time.
func NewRateLimitRecord(a *SubmissionAttempt, at time.Time) *RateLimitRecord {
	return &RateLimitRecord{
		Email:     a.Email,
		Subject:   a.Subject,
		Message:   a.Message,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

// Time parses the record's timestamp. An error means the record is
// malformed; callers decide how to degrade.
func (r *RateLimitRecord) Time() (time.Time, error) {
	return time.Parse(time.RFC3339, r.Timestamp)
}

// CleanupResult summarizes one sweep or purge run.
type CleanupResult struct {
	Scanned      int `json:"scanned"`
	DeletedCount int `json:"deletedCount"`
}
