package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"
)

// ValkeySink mirrors structured event records onto a Valkey stream so
// an external dashboard can tail collaboration activity across
// processes. It is entirely optional: the in-process Metrics snapshot
// stays authoritative for GET /metrics regardless of whether this sink
// is configured.
type ValkeySink struct {
	client valkey.Client
	stream string
	logger *zap.Logger
}

// NewValkeySink dials addr (a single Valkey/Redis-protocol node) and
// returns a sink that XADDs to streamKey.
func NewValkeySink(addr, streamKey string, logger *zap.Logger) (*ValkeySink, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, err
	}
	return &ValkeySink{client: client, stream: streamKey, logger: logger}, nil
}

// Record XADDs one event record. Failures are logged, not surfaced:
// this sink is an observability convenience, never on the correctness
// path of a session actor.
func (v *ValkeySink) Record(rec EventRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	cmd := v.client.B().Xadd().Key(v.stream).Id("*").
		FieldValue().
		FieldValue("event_type", rec.EventType).
		FieldValue("session_id", rec.SessionID).
		FieldValue("user_id", rec.UserID).
		FieldValue("object_id", rec.ObjectID).
		FieldValue("duration_ms", strconv.FormatFloat(rec.DurationMs, 'f', 3, 64)).
		FieldValue("occurred_at", strconv.FormatInt(rec.OccurredAt.UnixMilli(), 10)).
		Build()

	if err := v.client.Do(ctx, cmd).Error(); err != nil && v.logger != nil {
		v.logger.Warn("valkey event export failed", zap.Error(err))
	}
}

// Close releases the underlying Valkey connection pool.
func (v *ValkeySink) Close() {
	v.client.Close()
}
