package main

import (
	"context"
	"encoding/json"
	"os"
	"syscall"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pilotx/pilotx/internal"
	"github.com/pilotx/pilotx/internal/options"
	"github.com/pilotx/pilotx/internal/task"
	"github.com/pilotx/pilotx/pkg/check"
	"github.com/pilotx/pilotx/pkg/reaper"
)

const defaultConfigPath = "/etc/pilotx/pilot.yaml"

// v holds the merged pilot configuration with the precedence
// flag > config file > default.
var v = viper.New()

func newRunCmd() *cobra.Command {
	opts := options.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the pilot",
		Args:  cobra.NoArgs,
	}

	registerRunFlags(cmd, opts)

	cmd.RunE = func(*cobra.Command, []string) error {
		if reaper.Active() {
			code, err := reaper.Run()
			if err != nil {
				return errors.Wrap(err, "running as init")
			}
			os.Exit(code)
		}

		// Retrieve current Viper settings, which should presently be either
		// default config values or flags that overwrote them, and store config
		// settings into opts.
		bs, err := json.Marshal(v.AllSettings())
		if err != nil {
			return errors.Wrap(err, "cannot marshal configuration map into json bytes")
		}
		if err = yaml.Unmarshal(bs, opts, yaml.DisallowUnknownFields); err != nil {
			return errors.Wrap(err, "cannot unmarshal configuration")
		}

		// Retrieve values from config file and merge them into Viper.
		bs, err = readConfigFile(opts.ConfigFile)
		if err != nil {
			return err
		}
		opts, err = mergeConfigIntoViper(bs)
		if err != nil {
			return err
		}

		applyEnvFallbacks(opts)

		err = opts.SetPilotID()
		if err != nil {
			return err
		}

		opts.Resolve()

		if err = check.Validate(*opts); err != nil {
			return errors.Wrap(err, "command-line arguments specify illegal configuration")
		}

		for _, deprecation := range opts.Deprecations() {
			log.Warn(deprecation.Error())
		}
		if err := internal.Run(context.Background(), version, *opts); err != nil {
			log.Fatal(err)
		}

		return nil
	}

	return cmd
}

// registerRunFlags declares the run flags and binds them into Viper under
// their configuration keys. Flag defaults mirror the option defaults so an
// untouched flag never overrides the config file.
func registerRunFlags(cmd *cobra.Command, defaults *options.PilotOptions) {
	flags := cmd.Flags()

	flags.String("config-file", defaults.ConfigFile, "path to the pilot config file")
	flags.String("scheduler-host", defaults.SchedulerHost, "hostname or IP of the scheduler")
	flags.Int("scheduler-port", defaults.SchedulerPort, "port of the scheduler")
	flags.String("pilot-id", defaults.PilotID, "unique ID of this pilot (defaults to the hostname)")
	flags.String("slot-type", defaults.SlotType, "slot type to advertise: cpu, gpu, auto or none")
	flags.String("work-dir", defaults.WorkDir, "shared filesystem root for task workspaces")
	flags.Bool("api-enabled", defaults.APIEnabled, "enable the introspection API server")
	flags.String("bind-ip", defaults.BindIP, "IP address the API server listens on")
	flags.Int("bind-port", defaults.BindPort, "port the API server listens on")
	flags.Bool("tls", defaults.TLS, "serve the API over TLS")
	flags.String("cert-file", defaults.CertFile, "API TLS certificate file")
	flags.String("key-file", defaults.KeyFile, "API TLS key file")
	flags.String("rucio-home", defaults.Rucio.Home, "rucio client home, exported as RUCIO_HOME")
	flags.String("rucio-config-file", defaults.Rucio.ConfigFile,
		"rucio client config, exported as RUCIO_CONFIG")
	flags.String("rucio-template-file", defaults.Rucio.TemplateFile,
		"template copied into place when the rucio config is missing")
	flags.String("rucio-account", defaults.Rucio.Account, "rucio account to download data as")
	flags.String("rucio-binary", defaults.Rucio.Binary, "rucio client binary")
	flags.Int("rucio-timeout", defaults.Rucio.Timeout,
		"timeout for a single download invocation, in seconds")
	flags.Int("pilot-reconnect-attempts", defaults.PilotReconnectAttempts,
		"scheduler reconnect attempts before giving up")
	flags.Int("pilot-reconnect-backoff", defaults.PilotReconnectBackoff,
		"delay between scheduler reconnect attempts, in seconds")
	flags.Bool("debug", defaults.Debug, "enable debug mode")

	for key, name := range map[string]string{
		"config_file":              "config-file",
		"scheduler_host":           "scheduler-host",
		"scheduler_port":           "scheduler-port",
		"pilot_id":                 "pilot-id",
		"slot_type":                "slot-type",
		"work_dir":                 "work-dir",
		"api_enabled":              "api-enabled",
		"bind_ip":                  "bind-ip",
		"bind_port":                "bind-port",
		"tls":                      "tls",
		"cert_file":                "cert-file",
		"key_file":                 "key-file",
		"rucio.home":               "rucio-home",
		"rucio.config_file":        "rucio-config-file",
		"rucio.template_file":      "rucio-template-file",
		"rucio.account":            "rucio-account",
		"rucio.binary":             "rucio-binary",
		"rucio.timeout":            "rucio-timeout",
		"pilot_reconnect_attempts": "pilot-reconnect-attempts",
		"pilot_reconnect_backoff":  "pilot-reconnect-backoff",
		"debug":                    "debug",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func mergeConfigIntoViper(bs []byte) (*options.PilotOptions, error) {
	var configMap map[string]interface{}
	if err := yaml.Unmarshal(bs, &configMap); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal yaml configuration file")
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return nil, errors.Wrap(err, "can't merge configuration to viper")
	}

	// Use updated Viper config that now has default, config, and flag values
	// set for pilot configuration options with the following precedence:
	// flag > config > default (where > => overrides)
	// and return pilot config updated with the new viper settings.
	return getPilotConfig(v.AllSettings())
}

func readConfigFile(configPath string) ([]byte, error) {
	isDefault := configPath == ""
	if isDefault {
		configPath = defaultConfigPath
	}

	var err error
	if _, err = os.Stat(configPath); err != nil {
		if isDefault && os.IsNotExist(err) {
			log.Warnf("no configuration file at %s, skipping", configPath)
			return nil, nil
		}
		return nil, errors.Wrap(err, "error finding configuration file")
	}
	bs, err := os.ReadFile(configPath) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, "error reading configuration file")
	}
	return bs, nil
}

func getPilotConfig(settings map[string]interface{}) (*options.PilotOptions, error) {
	bs, err := json.Marshal(settings)
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal configuration map into json bytes")
	}

	opts := options.DefaultOptions()
	// Store updated pilot config back into opts.
	if err = yaml.Unmarshal(bs, opts, yaml.DisallowUnknownFields); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal configuration")
	}
	return opts, nil
}

// applyEnvFallbacks fills unset options from the environment variables the
// container images historically used.
func applyEnvFallbacks(opts *options.PilotOptions) {
	if opts.SchedulerHost == "" && opts.SchedulerIP == "" {
		if host, ok := syscall.Getenv(task.SchedulerIPEnvVar); ok {
			opts.SchedulerIP = host
		}
	}
	if home, ok := syscall.Getenv("RUCIO_HOME"); ok &&
		opts.Rucio.Home == options.DefaultRucioOptions().Home {
		opts.Rucio.Home = home
	}
	if cfg, ok := syscall.Getenv("RUCIO_CONFIG"); ok && opts.Rucio.ConfigFile == "" {
		opts.Rucio.ConfigFile = cfg
	}
	if account, ok := syscall.Getenv("RUCIO_ACCOUNT"); ok && opts.Rucio.Account == "" {
		opts.Rucio.Account = account
	}
}
