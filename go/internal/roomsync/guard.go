package roomsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gamemate/go/internal/remote"
)

// DefaultWriteTimeout tolerates degraded mobile networks.
const DefaultWriteTimeout = 30 * time.Second

// Kind classifies a failed guarded write.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindPermissionDenied
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindPermissionDenied:
		return "permission_denied"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// WriteError is the terminal result of a guarded write that did not succeed.
type WriteError struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *WriteError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("write %s: %s", e.Kind, e.Detail)
	}
	return "write " + e.Kind.String()
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is matches any *WriteError of the same kind, so callers can test against
// ErrTimeout and friends with errors.Is.
func (e *WriteError) Is(target error) bool {
	t, ok := target.(*WriteError)
	return ok && t.Kind == e.Kind
}

var (
	ErrTimeout          = &WriteError{Kind: KindTimeout}
	ErrPermissionDenied = &WriteError{Kind: KindPermissionDenied}
	ErrUnavailable      = &WriteError{Kind: KindUnavailable}
	ErrUnknown          = &WriteError{Kind: KindUnknown}
)

// WriteOp is one remote write.
type WriteOp func(ctx context.Context) (remote.DocumentRef, error)

// Guard races remote writes against a timer. It never retries.
type Guard struct {
	clock   clockwork.Clock
	timeout time.Duration
}

// NewGuard creates a Guard. A zero timeout means DefaultWriteTimeout.
func NewGuard(clock clockwork.Clock, timeout time.Duration) *Guard {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &Guard{clock: clock, timeout: timeout}
}

type writeResult struct {
	ref remote.DocumentRef
	err error
}

// Write runs op and waits at most timeout for it (the guard default when
// timeout is zero). When the timer wins the op keeps running: the store has
// no cancellation primitive and the document may still land and be delivered
// through the subscription. Its late result is only logged.
func (g *Guard) Write(ctx context.Context, op WriteOp, timeout time.Duration) (remote.DocumentRef, error) {
	if timeout <= 0 {
		timeout = g.timeout
	}

	results := make(chan writeResult)
	abandoned := make(chan struct{})
	defer close(abandoned)

	// The op must outlive this call, so it does not inherit cancellation.
	opCtx := context.WithoutCancel(ctx)
	go func() {
		ref, err := op(opCtx)
		select {
		case results <- writeResult{ref: ref, err: err}:
		case <-abandoned:
			log.Debug().
				Str("doc_id", ref.ID).
				Err(err).
				Msg("guarded write resolved after caller stopped waiting")
		}
	}()

	timer := g.clock.NewTimer(timeout)
	defer stopAndDrainTimer(timer)

	select {
	case r := <-results:
		if r.err != nil {
			return remote.DocumentRef{}, classify(r.err)
		}
		return r.ref, nil
	case <-timer.Chan():
		log.Warn().Dur("timeout", timeout).Msg("guarded write timed out")
		return remote.DocumentRef{}, &WriteError{
			Kind:   KindTimeout,
			Detail: fmt.Sprintf("no acknowledgement within %s", timeout),
		}
	case <-ctx.Done():
		return remote.DocumentRef{}, &WriteError{Kind: KindUnavailable, Detail: ctx.Err().Error(), Err: ctx.Err()}
	}
}

func classify(err error) *WriteError {
	var we *WriteError
	if errors.As(err, &we) {
		return we
	}
	switch {
	case errors.Is(err, remote.ErrPermissionDenied):
		return &WriteError{Kind: KindPermissionDenied, Detail: err.Error(), Err: err}
	case errors.Is(err, remote.ErrUnavailable):
		return &WriteError{Kind: KindUnavailable, Detail: err.Error(), Err: err}
	default:
		return &WriteError{Kind: KindUnknown, Detail: err.Error(), Err: err}
	}
}

// stopAndDrainTimer stops timer and drains a pending tick.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
