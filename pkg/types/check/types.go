package check

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Status is the four-level plugin verdict understood by Nagios-compatible
// supervisors. The exit code and the "LEVEL:" prefix on the first output
// line are both part of the contract; neither may drift.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusCritical
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ExitCode maps the status to the plugin protocol exit code.
func (s Status) ExitCode() int {
	switch s {
	case StatusOK:
		return 0
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	default:
		return 3
	}
}

// severity orders statuses for aggregation. CRITICAL outranks UNKNOWN:
// a confirmed failure is more actionable than an indeterminate one.
func (s Status) severity() int {
	switch s {
	case StatusOK:
		return 0
	case StatusWarning:
		return 1
	case StatusUnknown:
		return 2
	case StatusCritical:
		return 3
	default:
		return 2
	}
}

// Worst returns the more severe of two statuses.
func Worst(a, b Status) Status {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// Metric is a single perfdata sample appended after the status line as
// name=value[unit];warn;crit;min;max. Trailing empty fields are trimmed.
type Metric struct {
	Name  string
	Value float64
	Unit  string
	Warn  string
	Crit  string
	Min   string
	Max   string
}

func (m Metric) render() string {
	var b strings.Builder
	name := m.Name
	if strings.ContainsAny(name, " ='") {
		name = "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(strconv.FormatFloat(m.Value, 'f', -1, 64))
	b.WriteString(m.Unit)
	fields := []string{m.Warn, m.Crit, m.Min, m.Max}
	last := -1
	for i, f := range fields {
		if f != "" {
			last = i
		}
	}
	for i := 0; i <= last; i++ {
		b.WriteByte(';')
		b.WriteString(fields[i])
	}
	return b.String()
}

// Result is the single report produced by one check invocation.
type Result struct {
	Status  Status   `json:"status"`
	Message string   `json:"message"`
	Metrics []Metric `json:"metrics,omitempty"`
}

// Render produces the plugin output line: "LEVEL: message | perfdata".
// The whole supervisor contract lives on this first line; callers may
// print diagnostics on later lines but must never prepend anything.
func (r Result) Render() string {
	line := fmt.Sprintf("%s: %s", r.Status, r.Message)
	if len(r.Metrics) == 0 {
		return line
	}
	parts := make([]string, 0, len(r.Metrics))
	for _, m := range r.Metrics {
		parts = append(parts, m.render())
	}
	return line + " | " + strings.Join(parts, " ")
}

// Outcome is what a probe hands back to the harness: either the service
// answered (optionally with a numeric measurement), or the service answered
// with an error of its own. Transport-level trouble is reported through the
// probe's error return instead, so the harness can tell "service said no"
// apart from "could not ask".
type Outcome struct {
	Message string
	// Value is the optional measurement subject to threshold evaluation.
	Value *float64
	Unit  string
	// Metrics carries extra perfdata the probe gathered along the way.
	Metrics []Metric
	// failure marks a response the service itself flagged as an error.
	failure bool
}

// OK constructs a plain success outcome.
func OK(format string, args ...interface{}) Outcome {
	return Outcome{Message: fmt.Sprintf(format, args...)}
}

// Measure constructs a success outcome carrying a measurement.
func Measure(value float64, unit string, format string, args ...interface{}) Outcome {
	return Outcome{
		Message: fmt.Sprintf(format, args...),
		Value:   &value,
		Unit:    unit,
	}
}

// Failed constructs an outcome for a service-reported error.
func Failed(format string, args ...interface{}) Outcome {
	return Outcome{Message: fmt.Sprintf(format, args...), failure: true}
}

// IsFailure reports whether the service flagged the response as an error.
func (o Outcome) IsFailure() bool {
	return o.failure
}

// Probe performs one service-specific call and reports its outcome. A
// non-nil error means the probe could not get an answer at all (network
// unreachable, parse failure); the harness maps it to UNKNOWN.
type Probe func(ctx context.Context) (Outcome, error)
