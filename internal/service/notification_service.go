package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/scribe-dispatch/internal/dispatcher"
	"github.com/notifyhub/scribe-dispatch/internal/domain"
	"github.com/notifyhub/scribe-dispatch/internal/ledger"
)

// Ledger outcomes reported to the metrics hook.
const (
	OutcomeSent      = "sent"
	OutcomeSkipped   = "skipped"
	OutcomeSendError = "send_error"
	OutcomeLedgerErr = "ledger_error"
)

// Queue is the raw side of the dispatcher.
type Queue interface {
	Enqueue(recipients []string, subject, body string) error
	Pending() int
}

// Senders renders and enqueues one templated notification per call.
type Senders interface {
	SendEmailVerification(to string) error
	SendTranscriptionFinished(to string) error
	SendTranscriptionFailed(to string) error
	SendJobDeleted(to string) error
	SendJobPendingDeletion(to string) error
	SendNewUserCreated(to, username string) error
	SendAccountActivated(to string) error
	SendQuotaAlert(to string, alert dispatcher.QuotaAlert) error
	SendGroupQuotaAlert(to string, alert dispatcher.GroupQuotaAlert) error
	SendWeeklyUsageReport(to string, report dispatcher.WeeklyUsageReport) error
}

// Dispatcher is the part of *dispatcher.Dispatcher the service needs.
type Dispatcher interface {
	Queue
	Senders
}

// NotificationService sits between producers (HTTP handlers, business
// rules) and the dispatcher plus dedup ledger. The queue and the ledger stay
// independent; this is the one place that orders calls across them.
type NotificationService struct {
	q        Dispatcher
	ledger   ledger.Ledger
	logger   *zap.Logger
	onLedger func(kind domain.Kind, outcome string)
}

func NewNotificationService(
	q Dispatcher,
	l ledger.Ledger,
	onLedger func(kind domain.Kind, outcome string),
	logger *zap.Logger,
) *NotificationService {
	if onLedger == nil {
		onLedger = func(domain.Kind, string) {}
	}
	return &NotificationService{q: q, ledger: l, logger: logger, onLedger: onLedger}
}

// Enqueue validates a raw notification request and hands it to the queue.
func (s *NotificationService) Enqueue(req domain.EnqueueRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return s.q.Enqueue(req.Recipients, req.Subject, req.Body)
}

func (s *NotificationService) Pending() int {
	return s.q.Pending()
}

// NotifyOnce calls send unless key is already in the ledger, and records key
// after send succeeds.
//
// send normally enqueues, so "sent" means accepted for delivery. If send
// fails nothing is recorded and the caller may try again later. If Record
// fails the notification has already been queued; the error is returned and
// a later call may send a duplicate.
func (s *NotificationService) NotifyOnce(ctx context.Context, key domain.DedupKey, send func() error) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	log := s.logger.With(zap.String("dedup_key", key.String()))

	seen, err := s.ledger.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	if seen {
		s.onLedger(key.Kind, OutcomeSkipped)
		log.Debug("notification already sent; skipping")
		return false, nil
	}

	if err := send(); err != nil {
		s.onLedger(key.Kind, OutcomeSendError)
		return false, err
	}

	if err := s.ledger.Record(ctx, key); err != nil {
		s.onLedger(key.Kind, OutcomeLedgerErr)
		log.Error("notification sent but not recorded", zap.Error(err))
		return true, fmt.Errorf("record sent notification: %w", err)
	}
	s.onLedger(key.Kind, OutcomeSent)
	return true, nil
}

// TestSetResult reports what SendTestSet did for each kind.
type TestSetResult struct {
	RunID   string        `json:"run_id"`
	SentTo  string        `json:"sent_to"`
	Sent    []domain.Kind `json:"sent"`
	Skipped []domain.Kind `json:"skipped"`
}

// SendTestSet sends one notification of every templated kind to req.To with
// fixed sample figures. Each send goes through NotifyOnce keyed on the run id,
// so replaying a run only sends what it missed. An empty RunID starts a new run.
func (s *NotificationService) SendTestSet(ctx context.Context, req domain.TestNotificationsRequest) (TestSetResult, error) {
	if err := req.Validate(); err != nil {
		return TestSetResult{}, err
	}
	if req.Username == "" {
		req.Username = "testuser"
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	res := TestSetResult{RunID: req.RunID, SentTo: req.To}
	to := req.To

	sends := []struct {
		kind domain.Kind
		send func() error
	}{
		{domain.KindEmailVerification, func() error { return s.q.SendEmailVerification(to) }},
		{domain.KindTranscriptionFinished, func() error { return s.q.SendTranscriptionFinished(to) }},
		{domain.KindTranscriptionFailed, func() error { return s.q.SendTranscriptionFailed(to) }},
		{domain.KindJobDeleted, func() error { return s.q.SendJobDeleted(to) }},
		{domain.KindJobPendingDeletion, func() error { return s.q.SendJobPendingDeletion(to) }},
		{domain.KindNewUserCreated, func() error { return s.q.SendNewUserCreated(to, req.Username) }},
		{domain.KindAccountActivated, func() error { return s.q.SendAccountActivated(to) }},
		{domain.KindQuotaAlert, func() error {
			return s.q.SendQuotaAlert(to, dispatcher.QuotaAlert{
				CustomerName:     "Test Customer",
				UsagePercent:     96,
				BlocksPurchased:  10,
				MinutesIncluded:  40000,
				MinutesConsumed:  38400,
				RemainingMinutes: 1600,
			})
		}},
		{domain.KindGroupQuotaAlert, func() error {
			return s.q.SendGroupQuotaAlert(to, dispatcher.GroupQuotaAlert{
				GroupName:        "Test Group",
				UsagePercent:     97,
				QuotaMinutes:     5000,
				UsedMinutes:      4850,
				RemainingMinutes: 150,
			})
		}},
		{domain.KindWeeklyUsageReport, func() error {
			return s.q.SendWeeklyUsageReport(to, dispatcher.WeeklyUsageReport{
				CustomerName:               "Test Customer",
				TotalUsers:                 25,
				TranscribedFiles:           142,
				TranscribedMinutes:         8500,
				TranscribedMinutesExternal: 1200,
				BlocksPurchased:            10,
				BlocksConsumed:             2.13,
				MinutesIncluded:            40000,
				RemainingMinutes:           31500,
			})
		}},
	}

	for _, item := range sends {
		key := domain.DedupKey{SubjectID: to, EntityID: "test-notifications:" + req.RunID, Kind: item.kind}
		sent, err := s.NotifyOnce(ctx, key, item.send)
		if err != nil {
			return res, fmt.Errorf("%s: %w", item.kind, err)
		}
		if sent {
			res.Sent = append(res.Sent, item.kind)
		} else {
			res.Skipped = append(res.Skipped, item.kind)
		}
	}
	s.logger.Info("test notifications queued",
		zap.String("sent_to", to),
		zap.String("run_id", req.RunID),
		zap.Int("sent", len(res.Sent)))
	return res, nil
}
