//nolint:exhaustruct

package options

import (
	"testing"

	"github.com/ghodss/yaml"
	"gotest.tools/assert"

	"github.com/pilotx/pilotx/pkg/check"
	"github.com/pilotx/pilotx/pkg/logger"
)

func TestUnmarshalOptions(t *testing.T) {
	type optionsUnmarshaledTestCase struct {
		name     string
		raw      string
		expected PilotOptions
	}

	optionsTests := []optionsUnmarshaledTestCase{
		{
			name: "pilot_config_no_log",
			raw: `
scheduler_host: scheduler_host_IP
scheduler_port: 8786
work_dir: /mnt/shared
`,
			expected: PilotOptions{
				SchedulerHost: "scheduler_host_IP",
				SchedulerPort: 8786,
				WorkDir:       "/mnt/shared",
			},
		},
		{
			name: "pilot_config_with_log",
			raw: `
scheduler_host: scheduler_host_IP
scheduler_port: 8786
work_dir: /mnt/shared
log:
    level: debug
    color: false
`,
			expected: PilotOptions{
				SchedulerHost: "scheduler_host_IP",
				SchedulerPort: 8786,
				WorkDir:       "/mnt/shared",
				Log: logger.Config{
					Level: "debug",
					Color: false,
				},
			},
		},
		{
			name: "default_options_config",
			raw: `
log:
    level: info
    color: true
slot_type: auto
work_dir: /mnt/shared
bind_ip: 0.0.0.0
bind_port: 9090
rucio:
    home: /opt/rucio
    binary: rucio
    timeout: 3600
pilot_reconnect_attempts: 5
pilot_reconnect_backoff: 5
`,
			expected: *DefaultOptions(),
		},
		{
			name: "rucio_options",
			raw: `
work_dir: /mnt/shared
rucio:
    home: /usr/local/rucio
    account: pilot
    binary: rucio
    timeout: 600
`,
			expected: PilotOptions{
				WorkDir: "/mnt/shared",
				Rucio: RucioOptions{
					Home:    "/usr/local/rucio",
					Account: "pilot",
					Binary:  "rucio",
					Timeout: 600,
				},
			},
		},
	}

	for _, tc := range optionsTests {
		t.Run(tc.name, func(t *testing.T) {
			unmarshaled := PilotOptions{}
			err := yaml.Unmarshal([]byte(tc.raw), &unmarshaled, yaml.DisallowUnknownFields)
			assert.NilError(t, err)
			assert.DeepEqual(t, unmarshaled, tc.expected)
		})
	}
}

func TestResolve(t *testing.T) {
	opts := DefaultOptions()
	opts.SchedulerIP = "10.0.0.7"
	opts.Resolve()
	assert.Equal(t, opts.SchedulerHost, "10.0.0.7")
	assert.Equal(t, opts.SchedulerPort, schedulerInsecurePort)
	assert.Equal(t, opts.Rucio.ConfigFile, "/opt/rucio/etc/rucio.cfg")

	secure := DefaultOptions()
	secure.Security.TLS.Enabled = true
	secure.Resolve()
	assert.Equal(t, secure.SchedulerPort, schedulerSecurePort)
}

func TestValidate(t *testing.T) {
	opts := DefaultOptions()
	opts.Resolve()
	assert.NilError(t, check.Validate(*opts))

	opts.WorkDir = ""
	assert.ErrorContains(t, check.Validate(*opts), "work dir must be provided")

	opts = DefaultOptions()
	opts.TLS = true
	opts.APIEnabled = true
	assert.ErrorContains(t, check.Validate(*opts), "TLS cert file not specified")

	opts = DefaultOptions()
	opts.Security.TLS.SchedulerCert = "/etc/pilotx/scheduler.crt"
	opts.Security.TLS.SkipVerify = true
	assert.ErrorContains(t, check.Validate(*opts), "verification off")
}

func TestDeprecations(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, len(opts.Deprecations()), 0)
	opts.SchedulerIP = "10.0.0.7"
	assert.Equal(t, len(opts.Deprecations()), 1)
}

func TestSetPilotID(t *testing.T) {
	opts := PilotOptions{PilotID: "pilot-007"}
	assert.NilError(t, opts.SetPilotID())
	assert.Equal(t, opts.PilotID, "pilot-007")

	opts = PilotOptions{}
	assert.NilError(t, opts.SetPilotID())
	assert.Assert(t, opts.PilotID != "")
}
