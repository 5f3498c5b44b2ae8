// Package options holds the configurable options of the pilot and their
// validation.
package options

import (
	"crypto/tls"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pilotx/pilotx/internal/wproto"
	"github.com/pilotx/pilotx/pkg/check"
	"github.com/pilotx/pilotx/pkg/logger"
)

const (
	schedulerInsecurePort = 8786
	schedulerSecurePort   = 443
)

// DefaultOptions returns the default configuration of the pilot.
func DefaultOptions() *PilotOptions {
	return &PilotOptions{
		Log:                    *logger.DefaultConfig(),
		SlotType:               "auto",
		WorkDir:                "/mnt/shared",
		BindIP:                 "0.0.0.0",
		BindPort:               9090,
		Rucio:                  DefaultRucioOptions(),
		PilotReconnectAttempts: wproto.PilotReconnectAttempts,
		PilotReconnectBackoff:  wproto.PilotReconnectBackoffValue,
	}
}

// PilotOptions stores all the configurable options for the pilot.
type PilotOptions struct {
	ConfigFile string `json:"config_file"`

	Log logger.Config `json:"log"`

	SchedulerHost string `json:"scheduler_host"`
	SchedulerPort int    `json:"scheduler_port"`
	// SchedulerIP is the deprecated alias for scheduler_host, kept for
	// compatibility with images configured via DASK_SCHEDULER_IP.
	SchedulerIP string `json:"scheduler_ip"`

	PilotID string `json:"pilot_id"`
	// SlotType selects which devices the pilot advertises: cpu, gpu, auto or
	// none.
	SlotType string `json:"slot_type"`
	// WorkDir is the shared-filesystem root under which task workspaces are
	// created.
	WorkDir string `json:"work_dir"`

	APIEnabled bool   `json:"api_enabled"`
	BindIP     string `json:"bind_ip"`
	BindPort   int    `json:"bind_port"`

	TLS      bool   `json:"tls"`
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`

	Security SecurityOptions `json:"security"`

	Rucio RucioOptions `json:"rucio"`

	PilotReconnectAttempts int `json:"pilot_reconnect_attempts"`
	PilotReconnectBackoff  int `json:"pilot_reconnect_backoff"`

	Hooks HooksOptions `json:"hooks"`

	Debug bool `json:"debug"`
}

// Validate validates the state of the PilotOptions struct.
func (o PilotOptions) Validate() []error {
	return []error{
		o.validateTLS(),
		check.NotEmpty(o.WorkDir, "work dir must be provided"),
		check.In(o.SlotType, []string{"cpu", "gpu", "auto", "none"},
			"invalid slot type"),
		check.GreaterThanOrEqualTo(o.PilotReconnectAttempts, 0,
			"reconnect attempts must not be negative"),
		check.GreaterThanOrEqualTo(o.PilotReconnectBackoff, 0,
			"reconnect backoff must not be negative"),
	}
}

func (o PilotOptions) validateTLS() error {
	if !o.TLS || !o.APIEnabled {
		return nil
	}
	if o.CertFile == "" {
		return errors.New("TLS cert file not specified")
	}
	if o.KeyFile == "" {
		return errors.New("TLS key file not specified")
	}
	return nil
}

// Deprecations describe fields which were recently or will soon be removed.
func (o PilotOptions) Deprecations() (errs []error) {
	if o.SchedulerIP != "" {
		errs = append(errs, errors.Errorf(
			"scheduler_ip is deprecated, please upgrade to scheduler_host"))
	}
	return errs
}

// Printable returns a printable representation of the options.
func (o PilotOptions) Printable() ([]byte, error) {
	optJSON, err := json.Marshal(o)
	if err != nil {
		return nil, errors.Wrap(err, "unable to convert config to JSON")
	}
	return optJSON, nil
}

// Resolve fully resolves the pilot configuration, handling dynamic defaults.
func (o *PilotOptions) Resolve() {
	if o.SchedulerHost == "" && o.SchedulerIP != "" {
		o.SchedulerHost = o.SchedulerIP
	}
	if o.SchedulerPort == 0 {
		if o.Security.TLS.Enabled {
			o.SchedulerPort = schedulerSecurePort
		} else {
			o.SchedulerPort = schedulerInsecurePort
		}
	}
	o.Rucio.Resolve()
}

// SetPilotID sets the pilot ID to the hostname when it was not configured,
// falling back to a generated ID.
func (o *PilotOptions) SetPilotID() error {
	if o.PilotID != "" {
		return nil
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		o.PilotID = "pilot-" + uuid.NewString()
		return nil
	}
	o.PilotID = hostname
	return nil
}

// SecurityOptions stores configurable security-related options.
type SecurityOptions struct {
	TLS TLSOptions `json:"tls"`
}

// TLSOptions is the TLS configuration for the scheduler connection.
type TLSOptions struct {
	Enabled           bool   `json:"enabled"`
	SkipVerify        bool   `json:"skip_verify"`
	SchedulerCert     string `json:"scheduler_cert"`
	SchedulerCertName string `json:"scheduler_cert_name"`
	ClientCert        string `json:"client_cert"`
	ClientKey         string `json:"client_key"`
}

// Validate implements the check.Validatable interface.
func (t TLSOptions) Validate() []error {
	var errs []error
	if t.SchedulerCert != "" && t.SkipVerify {
		errs = append(errs, errors.New("cannot specify a scheduler cert file with verification off"))
	}
	return errs
}

// ReadClientCertificate returns the client certificate described by this
// configuration (nil if it does not allow TLS to be enabled).
func (t TLSOptions) ReadClientCertificate() (*tls.Certificate, error) {
	if t.ClientCert == "" || t.ClientKey == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(t.ClientCert, t.ClientKey)
	return &cert, err
}

// HooksOptions contains external commands to be run when specific things
// happen.
type HooksOptions struct {
	OnConnectionLost []string `json:"on_connection_lost"`
}

// DefaultRucioOptions returns the default data-transfer client configuration.
func DefaultRucioOptions() RucioOptions {
	return RucioOptions{
		Home:    "/opt/rucio",
		Binary:  "rucio",
		Timeout: 3600,
	}
}

// RucioOptions configures how the pilot invokes the rucio data-transfer
// client.
type RucioOptions struct {
	// Home is the rucio client home, exported as RUCIO_HOME.
	Home string `json:"home"`
	// ConfigFile is the client config path, exported as RUCIO_CONFIG.
	// Defaults to <home>/etc/rucio.cfg.
	ConfigFile string `json:"config_file"`
	// TemplateFile is the packaged config template copied to ConfigFile when
	// the latter does not exist yet.
	TemplateFile string `json:"template_file"`
	Account      string `json:"account"`
	Binary       string `json:"binary"`
	// Timeout bounds a single download invocation, in seconds. Zero means no
	// timeout.
	Timeout int `json:"timeout"`
}

// Validate implements the check.Validatable interface.
func (r RucioOptions) Validate() []error {
	return []error{
		check.NotEmpty(r.Binary, "rucio binary must be provided"),
		check.GreaterThanOrEqualTo(r.Timeout, 0, "rucio timeout must not be negative"),
	}
}

// Resolve fills in dynamic defaults.
func (r *RucioOptions) Resolve() {
	if r.ConfigFile == "" && r.Home != "" {
		r.ConfigFile = filepath.Join(r.Home, "etc", "rucio.cfg")
	}
}
