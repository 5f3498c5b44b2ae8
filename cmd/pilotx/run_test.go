package main

import (
	"os"
	"testing"

	"github.com/pilotx/pilotx/internal/options"
)

func TestApplyEnvFallbacks(t *testing.T) {
	tests := []struct {
		name         string
		schedulerIP  string
		rucioHome    string
		rucioAccount string
		configured   func(*options.PilotOptions)
		wantHost     string
		wantHome     string
		wantAccount  string
	}{
		{
			name:     "nothing in environment",
			wantHome: "/opt/rucio",
		},
		{
			name:        "scheduler ip defined",
			schedulerIP: "10.0.0.7",
			wantHost:    "10.0.0.7",
			wantHome:    "/opt/rucio",
		},
		{
			name:        "configured host wins over environment",
			schedulerIP: "10.0.0.7",
			configured: func(o *options.PilotOptions) {
				o.SchedulerHost = "scheduler.example.org"
			},
			wantHost: "",
			wantHome: "/opt/rucio",
		},
		{
			name:         "rucio environment defined",
			rucioHome:    "/usr/local/rucio",
			rucioAccount: "pilot",
			wantHome:     "/usr/local/rucio",
			wantAccount:  "pilot",
		},
		{
			name:      "configured rucio home wins over environment",
			rucioHome: "/usr/local/rucio",
			configured: func(o *options.PilotOptions) {
				o.Rucio.Home = "/srv/rucio"
			},
			wantHome: "/srv/rucio",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvironment(t)
			setIfNotEmpty(t, "DASK_SCHEDULER_IP", tt.schedulerIP)
			setIfNotEmpty(t, "RUCIO_HOME", tt.rucioHome)
			setIfNotEmpty(t, "RUCIO_ACCOUNT", tt.rucioAccount)

			opts := options.DefaultOptions()
			if tt.configured != nil {
				tt.configured(opts)
			}
			applyEnvFallbacks(opts)

			if opts.SchedulerIP != tt.wantHost {
				t.Errorf("SchedulerIP = %v, want %v", opts.SchedulerIP, tt.wantHost)
			}
			if opts.Rucio.Home != tt.wantHome {
				t.Errorf("Rucio.Home = %v, want %v", opts.Rucio.Home, tt.wantHome)
			}
			if opts.Rucio.Account != tt.wantAccount {
				t.Errorf("Rucio.Account = %v, want %v", opts.Rucio.Account, tt.wantAccount)
			}
		})
	}
}

func setIfNotEmpty(t *testing.T, key, value string) {
	if value == "" {
		return
	}
	if err := os.Setenv(key, value); err != nil {
		t.Errorf("error setting %s: %s", key, err.Error())
	}
}

func clearEnvironment(t *testing.T) {
	for _, key := range []string{
		"DASK_SCHEDULER_IP", "RUCIO_HOME", "RUCIO_CONFIG", "RUCIO_ACCOUNT",
	} {
		if err := os.Unsetenv(key); err != nil {
			t.Errorf("error clearing %s: %s", key, err.Error())
		}
	}
}
