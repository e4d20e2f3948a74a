package checker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/osops/oschecks/pkg/config"
	"github.com/osops/oschecks/pkg/types/check"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() config.Config {
	return config.Config{
		AuthURL:  "https://keystone.example.com:5000/v3",
		Username: "monitoring",
		Password: "hunter2",
		Timeout:  2 * time.Second,
	}
}

// stubClock yields scripted instants so duration metrics are deterministic.
func stubClock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func TestExecuteMissingCredentialsSkipsProbe(t *testing.T) {
	called := false
	probe := func(ctx context.Context) (check.Outcome, error) {
		called = true
		return check.OK("unexpected"), nil
	}

	c := NewChecker(
		WithName("compute"),
		WithConfig(config.Config{Timeout: time.Second}),
	)
	result := c.Execute(context.Background(), probe)

	assert.False(t, called, "probe must not run without credentials")
	assert.Equal(t, check.StatusUnknown, result.Status)
	assert.Contains(t, result.Message, "missing credentials")
	assert.True(t, strings.HasPrefix(result.Render(), "UNKNOWN: "), result.Render())
}

func TestExecuteMalformedThresholdSkipsProbe(t *testing.T) {
	called := false
	probe := func(ctx context.Context) (check.Outcome, error) {
		called = true
		return check.OK("unexpected"), nil
	}

	c := NewChecker(
		WithName("compute"),
		WithConfig(validConfig()),
		WithThreshold("", "not-a-number"),
	)
	result := c.Execute(context.Background(), probe)

	assert.False(t, called)
	assert.Equal(t, check.StatusUnknown, result.Status)
}

func TestExecuteMeasurementAgainstThresholds(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  check.Status
	}{
		{"under both bounds", 50, check.StatusOK},
		{"over warning", 85, check.StatusWarning},
		{"over critical", 95, check.StatusCritical},
		{"exactly critical", 90, check.StatusCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := func(ctx context.Context) (check.Outcome, error) {
				return check.Measure(tt.value, "", "usage at %.0f", tt.value), nil
			}
			c := NewChecker(
				WithName("volume"),
				WithConfig(validConfig()),
				WithThreshold("80", "90"),
			)
			result := c.Execute(context.Background(), probe)
			assert.Equal(t, tt.want, result.Status)
		})
	}
}

func TestExecuteNoThresholdMeasurementIsOK(t *testing.T) {
	probe := func(ctx context.Context) (check.Outcome, error) {
		return check.Measure(1e9, "", "huge but unbounded"), nil
	}
	c := NewChecker(WithName("compute"), WithConfig(validConfig()))
	result := c.Execute(context.Background(), probe)
	assert.Equal(t, check.StatusOK, result.Status)
}

func TestExecuteServiceFailureIsCritical(t *testing.T) {
	probe := func(ctx context.Context) (check.Outcome, error) {
		return check.Failed("queue depth endpoint returned 500"), nil
	}
	c := NewChecker(WithName("amqp"), WithConfig(validConfig()))
	result := c.Execute(context.Background(), probe)

	assert.Equal(t, check.StatusCritical, result.Status)
	assert.True(t, strings.HasPrefix(result.Render(), "CRITICAL: "), result.Render())
	assert.Contains(t, result.Message, "500")
}

func TestExecuteBooleanSuccessIsOK(t *testing.T) {
	probe := func(ctx context.Context) (check.Outcome, error) {
		return check.OK("token issued"), nil
	}
	c := NewChecker(WithName("identity"), WithConfig(validConfig()))
	result := c.Execute(context.Background(), probe)

	assert.Equal(t, check.StatusOK, result.Status)
	assert.True(t, strings.HasPrefix(result.Render(), "OK: "), result.Render())
}

func TestExecuteTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Timeout = 50 * time.Millisecond

	release := make(chan struct{})
	defer close(release)
	probe := func(ctx context.Context) (check.Outcome, error) {
		<-release
		return check.OK("too late"), nil
	}

	c := NewChecker(WithName("compute"), WithConfig(cfg))
	start := time.Now()
	result := c.Execute(context.Background(), probe)
	elapsed := time.Since(start)

	assert.Equal(t, check.StatusUnknown, result.Status)
	assert.Contains(t, result.Message, "timeout")
	assert.Contains(t, result.Message, "50ms")
	assert.Less(t, elapsed, time.Second)
}

func TestExecuteUnclassifiedErrorIsUnknownSingleLine(t *testing.T) {
	probe := func(ctx context.Context) (check.Outcome, error) {
		return check.Outcome{}, errors.New("dial tcp 10.0.0.1:5000:\n\tconnect: network is unreachable")
	}
	c := NewChecker(WithName("compute"), WithConfig(validConfig()))
	result := c.Execute(context.Background(), probe)

	assert.Equal(t, check.StatusUnknown, result.Status)
	assert.NotContains(t, result.Message, "\n", "message must stay on one line")
	assert.Contains(t, result.Message, "network is unreachable")
}

func TestExecuteRecoversProbePanic(t *testing.T) {
	probe := func(ctx context.Context) (check.Outcome, error) {
		panic("nil dereference in client library")
	}
	c := NewChecker(WithName("compute"), WithConfig(validConfig()))
	result := c.Execute(context.Background(), probe)

	assert.Equal(t, check.StatusUnknown, result.Status)
	assert.Contains(t, result.Message, "panicked")
}

func TestExecuteAppendsDurationMetric(t *testing.T) {
	t0 := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	probe := func(ctx context.Context) (check.Outcome, error) {
		return check.Measure(4, "", "4 servers"), nil
	}
	c := NewChecker(
		WithName("compute"),
		WithConfig(validConfig()),
		WithThreshold("80", "90"),
		WithNow(stubClock(t0, t0.Add(1500*time.Millisecond))),
	)
	result := c.Execute(context.Background(), probe)

	require.Len(t, result.Metrics, 2)
	assert.Equal(t, "compute", result.Metrics[0].Name)
	assert.Equal(t, 4.0, result.Metrics[0].Value)
	assert.Equal(t, "80", result.Metrics[0].Warn)
	assert.Equal(t, "90", result.Metrics[0].Crit)

	assert.Equal(t, "compute_time", result.Metrics[1].Name)
	assert.Equal(t, 1.5, result.Metrics[1].Value)
	assert.Equal(t, "s", result.Metrics[1].Unit)
}

func TestExecuteCarriesProbeMetrics(t *testing.T) {
	probe := func(ctx context.Context) (check.Outcome, error) {
		o := check.OK("roundtrip ok")
		o.Metrics = []check.Metric{{Name: "bytes", Value: 30, Unit: "B"}}
		return o, nil
	}
	c := NewChecker(WithName("object_store"), WithConfig(validConfig()))
	result := c.Execute(context.Background(), probe)

	require.Len(t, result.Metrics, 2)
	assert.Equal(t, "bytes", result.Metrics[0].Name)
	assert.Equal(t, "object_store_time", result.Metrics[1].Name)
}

func TestWithNameSnakeCases(t *testing.T) {
	probe := func(ctx context.Context) (check.Outcome, error) {
		return check.OK("fine"), nil
	}
	c := NewChecker(WithName("object-store"), WithConfig(validConfig()))
	result := c.Execute(context.Background(), probe)

	require.Len(t, result.Metrics, 1)
	assert.Equal(t, "object_store_time", result.Metrics[0].Name)
}

func TestExecuteCustomValidate(t *testing.T) {
	called := false
	probe := func(ctx context.Context) (check.Outcome, error) {
		called = true
		return check.OK("broker fine"), nil
	}
	// No OpenStack credentials at all, only the timeout precondition.
	cfg := config.Config{Timeout: time.Second}
	c := NewChecker(
		WithName("amqp"),
		WithConfig(cfg),
		WithValidate(cfg.ValidateTimeout),
	)
	result := c.Execute(context.Background(), probe)

	assert.True(t, called)
	assert.Equal(t, check.StatusOK, result.Status)
}
