package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notifyhub/scribe-dispatch/internal/domain"
)

func TestRedisKey_PartsCannotCollide(t *testing.T) {
	r := &Redis{prefix: "notifications_sent:"}

	a := domain.DedupKey{SubjectID: "user/1", EntityID: "job", Kind: domain.KindQuotaAlert}
	b := domain.DedupKey{SubjectID: "user", EntityID: "1/job", Kind: domain.KindQuotaAlert}

	assert.NotEqual(t, r.key(a), r.key(b))
	assert.Equal(t, "notifications_sent:user%2F1/job/quota_alert", r.key(a))
	assert.Equal(t, "notifications_sent:user-7/job-42/job_deleted",
		r.key(domain.DedupKey{SubjectID: "user-7", EntityID: "job-42", Kind: domain.KindJobDeleted}))
}
