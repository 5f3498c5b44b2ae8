package check

import (
	"testing"
)

func TestIn(t *testing.T) {
	type args struct {
		actual   string
		expected []string
	}
	type testCase struct {
		name    string
		args    args
		wantErr bool
	}
	tests := []testCase{
		{"empty list", args{actual: "a"}, true},
		{"in", args{actual: "cpu", expected: []string{"cpu", "gpu", "auto"}}, false},
		{"not in", args{actual: "tpu", expected: []string{"cpu", "gpu", "auto"}}, true},
	}

	runTestCase := func(t *testing.T, tt testCase) {
		t.Run(tt.name, func(t *testing.T) {
			err := In(tt.args.actual, tt.args.expected)
			if (err != nil) != tt.wantErr {
				t.Errorf("In() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	for _, tt := range tests {
		runTestCase(t, tt)
	}
}

func TestNotEmpty(t *testing.T) {
	if err := NotEmpty("", "scheduler host must be provided"); err == nil {
		t.Error("NotEmpty() expected an error for empty string")
	}
	if err := NotEmpty("dask-scheduler"); err != nil {
		t.Errorf("NotEmpty() unexpected error: %v", err)
	}
}

func TestGreaterThanOrEqualTo(t *testing.T) {
	if err := GreaterThanOrEqualTo(1, 0); err != nil {
		t.Errorf("GreaterThanOrEqualTo() unexpected error: %v", err)
	}
	if err := GreaterThanOrEqualTo(-1, 0, "reconnect attempts must not be negative"); err == nil {
		t.Error("GreaterThanOrEqualTo() expected an error")
	}
}
