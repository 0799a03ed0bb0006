package sim

import (
	"fmt"
	"time"
)

// ConfigurationError reports a structurally invalid WorldConfig. It is always
// returned before any day is simulated, so no partial company state exists
// when a caller sees it.
type ConfigurationError struct {
	Field  string // dotted path of the offending field, e.g. "unit_econ.Shake"
	Reason string
	Err    error // underlying cause (schema or decode failure), may be nil
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid world config: %s", e.Reason)
	}
	return fmt.Sprintf("invalid world config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErrorf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InsufficientHistoryError is returned by AdvanceOneDay when there is no
// persisted inventory to resume from. Callers must run CreateHistory first.
type InsufficientHistoryError struct {
	Company string // optional, set by callers that know which company was asked for
}

func (e *InsufficientHistoryError) Error() string {
	if e.Company == "" {
		return "cannot advance simulation without historical data; create history first"
	}
	return fmt.Sprintf("cannot advance company %q without historical data; create history first", e.Company)
}

// InvalidRangeError is returned by CreateHistory when the end date precedes
// the start date.
type InvalidRangeError struct {
	Start, End time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("end date %s is before start date %s", FormatDate(e.End), FormatDate(e.Start))
}
