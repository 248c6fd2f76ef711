package calibration

import "fmt"

// InputError reports malformed arguments to a single calibration call.
type InputError struct {
	Op  string
	Msg string
}

func (e *InputError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Msg) }

// CalibrationError reports that a policy could not produce a scale from the
// data it was given. Callers must pick another policy explicitly; nothing in
// this package retries with a different one.
type CalibrationError struct {
	Policy Policy
	Reason string
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("calibration %s failed: %s", e.Policy, e.Reason)
}
