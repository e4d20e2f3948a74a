package checker

import (
	"context"
	"time"

	"github.com/osops/oschecks/pkg/types/check"
	"github.com/pkg/errors"
)

// ErrTimeout indicates the probe did not answer within the configured bound.
var ErrTimeout = errors.New("check timed out")

type boundedReply struct {
	outcome check.Outcome
	err     error
}

// runBounded executes the probe with an upper time bound. The probe runs in
// its own goroutine against a child context carrying the deadline, so
// cooperative I/O cancels on its own; a probe that ignores the context still
// cannot block the caller because the reply channel is buffered and control
// returns at the deadline regardless.
//
// A timeout is terminal for the invocation. Nothing is retried here; a probe
// wanting retries must fit them inside this single window.
func runBounded(ctx context.Context, d time.Duration, probe check.Probe) (check.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	reply := make(chan boundedReply, 1)
	go func() {
		// A panicking client library must surface as an unclassified
		// error, not kill the process before the verdict is printed.
		defer func() {
			if r := recover(); r != nil {
				reply <- boundedReply{err: errors.Errorf("probe panicked: %v", r)}
			}
		}()
		outcome, err := probe(ctx)
		reply <- boundedReply{outcome: outcome, err: err}
	}()

	select {
	case r := <-reply:
		return r.outcome, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return check.Outcome{}, errors.Wrapf(ErrTimeout, "%s elapsed", d)
		}
		return check.Outcome{}, ctx.Err()
	}
}
