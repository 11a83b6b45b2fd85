package collab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/collabgraph/server/internal/models"
	"github.com/collabgraph/server/internal/telemetry"
)

func TestRegistry_JoinOrCreateCreatesSessionOnFirstJoin(t *testing.T) {
	reg := NewRegistry(t.TempDir(), DefaultGlobalSessionCap, DefaultPerSessionUserCap, telemetry.New(), zap.NewNop())
	defer reg.ShutdownAll()

	r1 := newFakeRecipient("u1")
	err := reg.JoinOrCreate("sess-1", "u1", "Ada", r1, time.Now().UnixMilli())
	require.NoError(t, err)

	actor, ok := reg.Lookup("sess-1")
	require.True(t, ok)
	assert.Equal(t, 1, actor.ActiveUserCount())
}

func TestRegistry_GlobalSessionCapRejectsNewSession(t *testing.T) {
	reg := NewRegistry(t.TempDir(), 1, DefaultPerSessionUserCap, telemetry.New(), zap.NewNop())
	defer reg.ShutdownAll()

	r1 := newFakeRecipient("u1")
	require.NoError(t, reg.JoinOrCreate("sess-1", "u1", "Ada", r1, time.Now().UnixMilli()))

	r2 := newFakeRecipient("u2")
	err := reg.JoinOrCreate("sess-2", "u2", "Bea", r2, time.Now().UnixMilli())
	require.Error(t, err)
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrGlobalSessionLimit, rej.Code)
}

func TestRegistry_PerSessionUserCapEnforcedAcrossJoins(t *testing.T) {
	reg := NewRegistry(t.TempDir(), DefaultGlobalSessionCap, 1, telemetry.New(), zap.NewNop())
	defer reg.ShutdownAll()

	r1 := newFakeRecipient("u1")
	require.NoError(t, reg.JoinOrCreate("sess-1", "u1", "Ada", r1, time.Now().UnixMilli()))

	r2 := newFakeRecipient("u2")
	err := reg.JoinOrCreate("sess-1", "u2", "Bea", r2, time.Now().UnixMilli())
	require.Error(t, err)
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrSessionFull, rej.Code)
}

func TestRegistry_SessionsReportsCounts(t *testing.T) {
	reg := NewRegistry(t.TempDir(), DefaultGlobalSessionCap, DefaultPerSessionUserCap, telemetry.New(), zap.NewNop())
	defer reg.ShutdownAll()

	r1 := newFakeRecipient("u1")
	require.NoError(t, reg.JoinOrCreate("sess-1", "u1", "Ada", r1, time.Now().UnixMilli()))

	actor, _ := reg.Lookup("sess-1")
	actor.Submit(Command{
		Kind:         models.EventCreateObject,
		SourceUserID: "u1",
		TimestampMs:  time.Now().UnixMilli(),
		Payload:      models.CreateObjectPayload{ObjectID: "obj-1", Type: models.KindCube},
		From:         r1,
		ReceivedAt:   time.Now(),
	})

	require.Eventually(t, func() bool {
		summaries := reg.Sessions()
		return len(summaries) == 1 && summaries[0].ObjectCount == 1
	}, time.Second, 5*time.Millisecond)

	summaries := reg.Sessions()
	require.Len(t, summaries, 1)
	assert.Equal(t, "sess-1", summaries[0].SessionID)
	assert.Equal(t, 1, summaries[0].UserCount)
}
