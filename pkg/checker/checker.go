// Package checker runs one probe under the shared check harness: resolve
// the configuration, execute the probe's single service call under a time
// bound, map the outcome to a plugin status, and produce exactly one result.
package checker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/osops/oschecks/pkg/config"
	"github.com/osops/oschecks/pkg/threshold"
	"github.com/osops/oschecks/pkg/types/check"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// NewChecker creates a checker for one invocation.
func NewChecker(opts ...CheckerOption) *Checker {
	c := &Checker{
		now:  time.Now,
		name: "check",
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CheckerOption describe optional arguments for the checker.
type CheckerOption func(*Checker)

// WithName sets the check name used for logging and perfdata labels.
func WithName(name string) CheckerOption {
	return func(c *Checker) {
		c.name = strcase.ToSnake(name)
	}
}

// WithConfig sets the resolved credential set and execution parameters.
func WithConfig(cfg config.Config) CheckerOption {
	return func(c *Checker) {
		c.cfg = cfg
	}
}

// WithThreshold sets the raw --warning / --critical range specs. They are
// parsed during config resolution so a malformed spec reports UNKNOWN
// before any network call.
func WithThreshold(warning, critical string) CheckerOption {
	return func(c *Checker) {
		c.warning = warning
		c.critical = critical
	}
}

// WithTimeout overrides the timeout carried by the config.
func WithTimeout(timeout time.Duration) CheckerOption {
	return func(c *Checker) {
		c.cfg.Timeout = timeout
	}
}

// WithNow injects the clock; tests use it to pin durations.
func WithNow(now func() time.Time) CheckerOption {
	return func(c *Checker) {
		c.now = now
	}
}

// WithValidate overrides the config validation step. Checks that do not
// authenticate against the identity service (broker, DNS) supply their own
// precondition here; the default demands a fully resolved credential set.
func WithValidate(f func() error) CheckerOption {
	return func(c *Checker) {
		c.validate = f
	}
}

// Checker holds the per-invocation harness state. It is built fresh for
// every process run and never shared.
type Checker struct {
	now      func() time.Time
	name     string
	cfg      config.Config
	warning  string
	critical string
	validate func() error
}

// Execute runs the probe and maps every possible outcome to a Result. It
// never returns an error and never panics outward; the supervisor contract
// requires one verdict per invocation no matter what went wrong.
func (c *Checker) Execute(ctx context.Context, probe check.Probe) (result check.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = check.Result{
				Status:  check.StatusUnknown,
				Message: fmt.Sprintf("check panicked: %v", r),
			}
		}
	}()

	ll := log.Ctx(ctx).With().Str("check", c.name).Logger()

	// Resolve config before anything touches the network.
	validate := c.validate
	if validate == nil {
		validate = c.cfg.Validate
	}
	if err := validate(); err != nil {
		return check.Result{Status: check.StatusUnknown, Message: err.Error()}
	}
	bounds, err := threshold.Parse(c.warning, c.critical)
	if err != nil {
		return check.Result{Status: check.StatusUnknown, Message: err.Error()}
	}

	ll.Debug().Dur("timeout", c.cfg.Timeout).Msg("check started")
	start := c.now()
	outcome, err := runBounded(ctx, c.cfg.Timeout, probe)
	elapsed := c.now().Sub(start)
	ll.Debug().Dur("duration", elapsed).Err(err).Msg("check finished")

	durMetric := check.Metric{
		Name:  c.name + "_time",
		Value: elapsed.Seconds(),
		Unit:  "s",
		Min:   "0",
	}

	if err != nil {
		msg := summarize(err)
		if errors.Is(err, ErrTimeout) {
			msg = fmt.Sprintf("timeout: no answer from service after %s", c.cfg.Timeout)
		}
		return check.Result{
			Status:  check.StatusUnknown,
			Message: msg,
			Metrics: []check.Metric{durMetric},
		}
	}

	var status check.Status
	switch {
	case outcome.Value != nil:
		status = bounds.Evaluate(*outcome.Value)
	case outcome.IsFailure():
		status = check.StatusCritical
	default:
		status = check.StatusOK
	}

	metrics := make([]check.Metric, 0, len(outcome.Metrics)+2)
	if outcome.Value != nil {
		metrics = append(metrics, check.Metric{
			Name:  c.name,
			Value: *outcome.Value,
			Unit:  outcome.Unit,
			Warn:  c.warning,
			Crit:  c.critical,
		})
	}
	metrics = append(metrics, outcome.Metrics...)
	metrics = append(metrics, durMetric)

	return check.Result{
		Status:  status,
		Message: outcome.Message,
		Metrics: metrics,
	}
}

// summarize flattens an error to a single line. Supervisors treat the first
// output line as the whole verdict, so stack traces and multi-line driver
// errors have no business there.
func summarize(err error) string {
	return strings.Join(strings.Fields(err.Error()), " ")
}
