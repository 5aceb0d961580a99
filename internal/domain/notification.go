package domain

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies a notification template and the dedup category it belongs to.
type Kind string

const (
	KindRaw                   Kind = "raw"
	KindEmailVerification     Kind = "email_verification"
	KindTranscriptionFinished Kind = "transcription_finished"
	KindTranscriptionFailed   Kind = "transcription_failed"
	KindJobDeleted            Kind = "job_deleted"
	KindJobPendingDeletion    Kind = "job_pending_deletion"
	KindNewUserCreated        Kind = "new_user_created"
	KindAccountActivated      Kind = "account_activated"
	KindQuotaAlert            Kind = "quota_alert"
	KindGroupQuotaAlert       Kind = "group_quota_alert"
	KindWeeklyUsageReport     Kind = "weekly_usage_report"
)

// kindParams lists the substitution parameters each templated kind accepts.
// A template may only reference names listed for its kind.
var kindParams = map[Kind][]string{
	KindEmailVerification:     nil,
	KindTranscriptionFinished: nil,
	KindTranscriptionFailed:   nil,
	KindJobDeleted:            nil,
	KindJobPendingDeletion:    nil,
	KindNewUserCreated:        {"username"},
	KindAccountActivated:      nil,
	KindQuotaAlert: {
		"customer_name", "usage_percent", "blocks_purchased",
		"minutes_included", "minutes_consumed", "remaining_minutes",
	},
	KindGroupQuotaAlert: {
		"group_name", "usage_percent", "quota_minutes", "used_minutes", "remaining_minutes",
	},
	KindWeeklyUsageReport: {
		"customer_name", "total_users", "transcribed_files", "transcribed_minutes",
		"transcribed_minutes_external", "blocks_purchased", "blocks_consumed",
		"minutes_included", "remaining_minutes", "overage_minutes",
	},
}

// TemplatedKinds returns every kind that is rendered from a template.
func TemplatedKinds() []Kind {
	return []Kind{
		KindEmailVerification, KindTranscriptionFinished, KindTranscriptionFailed,
		KindJobDeleted, KindJobPendingDeletion, KindNewUserCreated, KindAccountActivated,
		KindQuotaAlert, KindGroupQuotaAlert, KindWeeklyUsageReport,
	}
}

// Params returns the parameter names accepted by a templated kind.
// ok is false for kinds that are not rendered from a template.
func (k Kind) Params() (params []string, ok bool) {
	params, ok = kindParams[k]
	return params, ok
}

// Job is a pending unit of delivery work. It is never modified after enqueue.
type Job struct {
	Recipients []string
	Subject    string
	Body       string
	Kind       Kind
	EnqueuedAt time.Time
}

// DedupKey identifies a notification that must only be sent once.
// SubjectID is usually a user id, EntityID a job or customer id.
type DedupKey struct {
	SubjectID string
	EntityID  string
	Kind      Kind
}

func (k DedupKey) Validate() error {
	if strings.TrimSpace(k.SubjectID) == "" ||
		strings.TrimSpace(k.EntityID) == "" ||
		strings.TrimSpace(string(k.Kind)) == "" {
		return ErrInvalidDedupKey
	}
	return nil
}

func (k DedupKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.SubjectID, k.EntityID, k.Kind)
}

// EnqueueRequest is the inbound payload for a raw notification.
type EnqueueRequest struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

func (r *EnqueueRequest) Validate() error {
	if len(r.Recipients) == 0 {
		return ErrNoRecipients
	}
	for _, rcpt := range r.Recipients {
		if strings.TrimSpace(rcpt) == "" {
			return ErrNoRecipients
		}
	}
	if r.Subject == "" || r.Body == "" {
		return ErrInvalidBody
	}
	return nil
}

// MaxBatchSize bounds EnqueueBatchRequest.
const MaxBatchSize = 1000

// EnqueueBatchRequest carries several raw notifications in one call.
type EnqueueBatchRequest struct {
	Notifications []EnqueueRequest `json:"notifications"`
}

// Validate checks every entry; the batch is accepted or rejected as a whole.
func (r *EnqueueBatchRequest) Validate() error {
	if len(r.Notifications) == 0 {
		return ErrBatchEmpty
	}
	if len(r.Notifications) > MaxBatchSize {
		return ErrBatchTooLarge
	}
	for i := range r.Notifications {
		if err := r.Notifications[i].Validate(); err != nil {
			return fmt.Errorf("notification %d: %w", i, err)
		}
	}
	return nil
}

// TestNotificationsRequest asks for one notification of every templated kind.
// A repeated RunID only sends the kinds that were not sent under it before.
type TestNotificationsRequest struct {
	To       string `json:"to"`
	Username string `json:"username,omitempty"`
	RunID    string `json:"run_id,omitempty"`
}

func (r *TestNotificationsRequest) Validate() error {
	if strings.TrimSpace(r.To) == "" {
		return ErrNoRecipients
	}
	return nil
}
