// Package threshold evaluates measurements against Nagios-style warning and
// critical ranges.
package threshold

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/osops/oschecks/pkg/types/check"
)

// Range is one alerting bound in Nagios threshold notation:
//
//	"90"      alert when value >= 90 or value < 0
//	"90:"     alert when value <= 90
//	"~:90"    alert when value >= 90
//	"10:20"   alert when value outside [10, 20]
//	"@10:20"  alert when value inside [10, 20]
//
// Boundary values count as violations: a value exactly equal to a configured
// limit triggers the range. Monitoring false negatives routinely hide in the
// opposite choice, so the inclusive semantics are deliberate and tested.
type Range struct {
	lo, hi float64
	// loSet and hiSet distinguish configured limits from the implicit
	// defaults (0 and +Inf): only configured limits are inclusive.
	loSet, hiSet bool
	// inside inverts the range: alert when the value is inside [lo, hi].
	inside bool
}

// ParseRange parses the Nagios range notation described on Range.
func ParseRange(spec string) (*Range, error) {
	if spec == "" {
		return nil, nil
	}
	r := &Range{lo: 0, hi: math.Inf(1)}
	s := spec
	if strings.HasPrefix(s, "@") {
		r.inside = true
		s = s[1:]
	}
	parseEnd := func(raw string, def float64) (float64, bool, error) {
		if raw == "" {
			return def, false, nil
		}
		if raw == "~" {
			return math.Inf(-1), false, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, false, fmt.Errorf("threshold %q: %w", spec, err)
		}
		return v, true, nil
	}
	var err error
	if i := strings.Index(s, ":"); i >= 0 {
		if r.lo, r.loSet, err = parseEnd(s[:i], 0); err != nil {
			return nil, err
		}
		if r.hi, r.hiSet, err = parseEnd(s[i+1:], math.Inf(1)); err != nil {
			return nil, err
		}
	} else {
		if r.hi, r.hiSet, err = parseEnd(s, math.Inf(1)); err != nil {
			return nil, err
		}
	}
	if r.lo > r.hi {
		return nil, fmt.Errorf("threshold %q: start %v exceeds end %v", spec, r.lo, r.hi)
	}
	return r, nil
}

// Violated reports whether value triggers the range.
func (r *Range) Violated(value float64) bool {
	if r == nil {
		return false
	}
	if r.inside {
		return value >= r.lo && value <= r.hi
	}
	// Values outside [lo, hi] alert. A configured limit alerts on exact
	// equality as well; the implicit lower bound of 0 does not, so a
	// measurement of 0 stays OK under a plain upper-bound threshold.
	if r.loSet {
		if value <= r.lo {
			return true
		}
	} else if value < r.lo {
		return true
	}
	if r.hiSet && value >= r.hi {
		return true
	}
	return false
}

// Threshold pairs an optional warning range with an optional critical range.
// The zero value never alerts.
type Threshold struct {
	Warning  *Range
	Critical *Range
}

// Parse builds a Threshold from the --warning / --critical flag values.
// Empty strings leave the corresponding range unset.
func Parse(warning, critical string) (Threshold, error) {
	var t Threshold
	var err error
	if t.Warning, err = ParseRange(warning); err != nil {
		return Threshold{}, err
	}
	if t.Critical, err = ParseRange(critical); err != nil {
		return Threshold{}, err
	}
	return t, nil
}

// Evaluate maps a measurement to a status. Critical wins over warning; a
// threshold with no ranges configured is always OK.
func (t Threshold) Evaluate(value float64) check.Status {
	if t.Critical.Violated(value) {
		return check.StatusCritical
	}
	if t.Warning.Violated(value) {
		return check.StatusWarning
	}
	return check.StatusOK
}
