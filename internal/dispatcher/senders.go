package dispatcher

import (
	"fmt"
	"strconv"

	"github.com/notifyhub/scribe-dispatch/internal/domain"
)

// QuotaAlert carries the figures reported when a customer nears its
// transcription quota.
type QuotaAlert struct {
	CustomerName     string
	UsagePercent     int
	BlocksPurchased  int
	MinutesIncluded  int
	MinutesConsumed  int
	RemainingMinutes int
}

func (a QuotaAlert) params() map[string]string {
	return map[string]string{
		"customer_name":     a.CustomerName,
		"usage_percent":     strconv.Itoa(a.UsagePercent),
		"blocks_purchased":  strconv.Itoa(a.BlocksPurchased),
		"minutes_included":  strconv.Itoa(a.MinutesIncluded),
		"minutes_consumed":  strconv.Itoa(a.MinutesConsumed),
		"remaining_minutes": strconv.Itoa(a.RemainingMinutes),
	}
}

// GroupQuotaAlert is the group-level variant of QuotaAlert.
type GroupQuotaAlert struct {
	GroupName        string
	UsagePercent     int
	QuotaMinutes     int
	UsedMinutes      int
	RemainingMinutes int
}

func (a GroupQuotaAlert) params() map[string]string {
	return map[string]string{
		"group_name":        a.GroupName,
		"usage_percent":     strconv.Itoa(a.UsagePercent),
		"quota_minutes":     strconv.Itoa(a.QuotaMinutes),
		"used_minutes":      strconv.Itoa(a.UsedMinutes),
		"remaining_minutes": strconv.Itoa(a.RemainingMinutes),
	}
}

type WeeklyUsageReport struct {
	CustomerName               string
	TotalUsers                 int
	TranscribedFiles           int
	TranscribedMinutes         int
	TranscribedMinutesExternal int
	BlocksPurchased            int
	BlocksConsumed             float64
	MinutesIncluded            int
	RemainingMinutes           int
	OverageMinutes             int
}

func (r WeeklyUsageReport) params() map[string]string {
	return map[string]string{
		"customer_name":                r.CustomerName,
		"total_users":                  strconv.Itoa(r.TotalUsers),
		"transcribed_files":            strconv.Itoa(r.TranscribedFiles),
		"transcribed_minutes":          strconv.Itoa(r.TranscribedMinutes),
		"transcribed_minutes_external": strconv.Itoa(r.TranscribedMinutesExternal),
		"blocks_purchased":             strconv.Itoa(r.BlocksPurchased),
		"blocks_consumed":              strconv.FormatFloat(r.BlocksConsumed, 'f', -1, 64),
		"minutes_included":             strconv.Itoa(r.MinutesIncluded),
		"remaining_minutes":            strconv.Itoa(r.RemainingMinutes),
		"overage_minutes":              strconv.Itoa(r.OverageMinutes),
	}
}

func (d *Dispatcher) SendEmailVerification(to string) error {
	return d.sendTemplated(domain.KindEmailVerification, to, nil)
}

func (d *Dispatcher) SendTranscriptionFinished(to string) error {
	return d.sendTemplated(domain.KindTranscriptionFinished, to, nil)
}

func (d *Dispatcher) SendTranscriptionFailed(to string) error {
	return d.sendTemplated(domain.KindTranscriptionFailed, to, nil)
}

func (d *Dispatcher) SendJobDeleted(to string) error {
	return d.sendTemplated(domain.KindJobDeleted, to, nil)
}

func (d *Dispatcher) SendJobPendingDeletion(to string) error {
	return d.sendTemplated(domain.KindJobPendingDeletion, to, nil)
}

// SendNewUserCreated tells an administrator that username is waiting for
// activation.
func (d *Dispatcher) SendNewUserCreated(to, username string) error {
	return d.sendTemplated(domain.KindNewUserCreated, to, map[string]string{"username": username})
}

func (d *Dispatcher) SendAccountActivated(to string) error {
	return d.sendTemplated(domain.KindAccountActivated, to, nil)
}

func (d *Dispatcher) SendQuotaAlert(to string, alert QuotaAlert) error {
	return d.sendTemplated(domain.KindQuotaAlert, to, alert.params())
}

func (d *Dispatcher) SendGroupQuotaAlert(to string, alert GroupQuotaAlert) error {
	return d.sendTemplated(domain.KindGroupQuotaAlert, to, alert.params())
}

func (d *Dispatcher) SendWeeklyUsageReport(to string, report WeeklyUsageReport) error {
	return d.sendTemplated(domain.KindWeeklyUsageReport, to, report.params())
}

// sendTemplated renders before enqueueing, so a template error reaches the
// caller and nothing is buffered.
func (d *Dispatcher) sendTemplated(kind domain.Kind, to string, params map[string]string) error {
	if d.templates == nil {
		return fmt.Errorf("%w: no template store configured", domain.ErrTemplate)
	}
	subject, body, err := d.templates.Render(kind, params)
	if err != nil {
		return err
	}
	return d.enqueue(kind, []string{to}, subject, body)
}
