package check

import (
	"github.com/pkg/errors"
)

func check(condition bool, msgAndArgs []interface{}, internalFmt string, args ...interface{}) error {
	if condition {
		return nil
	}
	msg := messageFromMsgAndArgs(false, msgAndArgs...)
	internal := messageFromMsgAndArgs(true, append([]interface{}{internalFmt}, args...)...)
	if msg == "" {
		return errors.New(internal)
	}
	return errors.Errorf("%s: %s", msg, internal)
}

// True checks whether the condition is true. This method returns an error with
// the provided message if the check fails.
func True(condition bool, msgAndArgs ...interface{}) error {
	return check(condition, msgAndArgs, "expected true, got false")
}

// NotEmpty checks whether the provided string is non-empty. This method returns
// an error with the provided message if the check fails.
func NotEmpty(actual string, msgAndArgs ...interface{}) error {
	return check(len(actual) > 0, msgAndArgs, "%s must be non-empty", actual)
}

// In checks whether the actual value is in the expected list of strings. This
// method returns an error with the provided message if the check fails.
func In(actual string, expected []string, msgAndArgs ...interface{}) error {
	for _, value := range expected {
		if value == actual {
			return nil
		}
	}
	return check(false, msgAndArgs, "%s not in %v", actual, expected)
}

// Contains checks whether the actual value is contained in the expected list.
// This method returns an error with the provided message if the check fails.
func Contains(actual interface{}, expected []interface{}, msgAndArgs ...interface{}) error {
	for _, value := range expected {
		if value == actual {
			return nil
		}
	}
	return check(false, msgAndArgs, "%s not in %s", actual, expected)
}

// GreaterThanOrEqualTo checks whether actual >= expected. This method returns
// an error with the provided message if the check fails.
func GreaterThanOrEqualTo(actual, expected int, msgAndArgs ...interface{}) error {
	return check(actual >= expected, msgAndArgs, "%d is not greater than or equal to %d",
		actual, expected)
}
