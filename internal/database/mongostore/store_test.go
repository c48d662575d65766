package mongostore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"bytebuddy/internal/database"
	"bytebuddy/internal/usage"
)

func TestAccountModelRoundTrip(t *testing.T) {
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	acct := &database.Account{ID: "a1", Username: "Alice", Email: "alice@example.com", PasswordHash: "h", IsActive: true}
	acct.Prepare(now)
	acct.Usage.Counters[usage.FeatureQuizzes] = 4

	m := toAccountModel(acct)
	assert.Equal(t, "alice", m.UsernameLower)
	assert.Equal(t, "2024-01", m.MonthlyUsage.Month)
	assert.Equal(t, int64(4), m.MonthlyUsage.Counters["quizzesTaken"])
	assert.NotNil(t, m.ToolsData.WeakAreas)

	back := fromAccountModel(m)
	assert.Equal(t, acct.Usage, back.Usage)
	assert.Equal(t, usage.TierFree, back.SubscriptionTier)
}

func TestFromUsageModelFillsMissingCounters(t *testing.T) {
	l := fromUsageModel(usageModel{Month: "2024-03", Counters: map[string]int64{"notesGenerated": 2}})
	assert.Equal(t, int64(2), l.Used(usage.FeatureNotes))
	assert.Len(t, l.Counters, len(usage.AllFeatures()))
	assert.Zero(t, l.Used(usage.FeatureHabits))
}

func TestConsumeFilterSelectsLimitByTier(t *testing.T) {
	req := database.UsageRequest{
		Feature: usage.FeatureCareer,
		Period:  "2024-02",
		Limits:  usage.TierLimits{Free: 3, Premium: 100, Enterprise: 1000},
	}
	f := consumeFilter("acct", req)
	assert.Equal(t, "acct", f["_id"])

	expr, ok := f["$expr"].(bson.M)
	require.True(t, ok)
	lte, ok := expr["$lte"].(bson.A)
	require.True(t, ok)
	require.Len(t, lte, 2)

	sw := lte[1].(bson.M)["$switch"].(bson.M)
	branches := sw["branches"].(bson.A)
	require.Len(t, branches, 3)
	assert.Equal(t, int64(3), branches[0].(bson.M)["then"])
	assert.Equal(t, int64(100), branches[1].(bson.M)["then"])
	assert.Equal(t, int64(1000), branches[2].(bson.M)["then"])
	assert.Equal(t, -1, sw["default"])
}

func TestConsumeUpdateResetsThenIncrements(t *testing.T) {
	req := database.UsageRequest{Feature: usage.FeatureHabits, Period: "2024-02"}
	p := consumeUpdate(req, time.Now())
	require.Len(t, p, 2)

	assert.Equal(t, "$set", p[0][0].Key)
	assert.Contains(t, p[0][0].Value.(bson.M), "monthly_usage")

	second := p[1][0].Value.(bson.M)
	assert.Contains(t, second, "monthly_usage.counters.habitEntries")
	assert.Contains(t, second, "updated_at")
}

func TestMigrationIndexesUniqueLogin(t *testing.T) {
	idx := migrationIndexes()[colAccounts]
	require.Len(t, idx, 2)
	for _, m := range idx {
		assert.NotNil(t, m.Options)
	}
}
