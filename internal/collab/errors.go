package collab

import (
	"errors"
	"fmt"

	"github.com/collabgraph/server/internal/models"
)

// RejectionError is returned by a Session State transition that a command
// was refused for a semantic reason. It carries the wire ErrorCode the
// Connection Handler should relay to the offending connection.
type RejectionError struct {
	Code    models.ErrorCode
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func reject(code models.ErrorCode, format string, args ...any) *RejectionError {
	return &RejectionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinel routing/protocol/capacity errors. ErrNotJoined and
// ErrIdentityMismatch are surfaced by the Connection Handler before a
// command ever reaches a Session Actor; ErrSessionFull is returned by
// the Session Actor's JOIN handling.
var (
	ErrNotJoined        = &RejectionError{Code: models.ErrNotJoined, Message: "no successful JOIN_SESSION on this connection"}
	ErrIdentityMismatch = &RejectionError{Code: models.ErrIdentityMismatch, Message: "source_user_id does not match joined identity"}
	ErrMalformed        = &RejectionError{Code: models.ErrMalformed, Message: "envelope could not be parsed"}
	ErrRateLimited      = &RejectionError{Code: models.ErrRateLimited, Message: "message rate exceeded"}
	ErrGlobalSessionCap = &RejectionError{Code: models.ErrGlobalSessionLimit, Message: "global session limit reached"}
	ErrSessionFull      = &RejectionError{Code: models.ErrSessionFull, Message: "session user limit reached"}
	ErrOverloaded       = &RejectionError{Code: models.ErrOverloaded, Message: "egress queue saturated"}
)

// AsRejection extracts a *RejectionError from err, if any, the way callers
// pick a wire ErrorCode out of an arbitrary error return.
func AsRejection(err error) (*RejectionError, bool) {
	var r *RejectionError
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// DurabilityError wraps an I/O failure from the Event Log Store. It is
// never fatal: the Session Actor logs it and continues serving, since
// correctness lives in memory and durability catches up on the next
// successful append or snapshot.
type DurabilityError struct {
	Op  string
	Err error
}

func (e *DurabilityError) Error() string {
	return fmt.Sprintf("durability degraded during %s: %v", e.Op, e.Err)
}

func (e *DurabilityError) Unwrap() error { return e.Err }
