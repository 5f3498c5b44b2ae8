// Package rucio wraps the rucio command-line data-transfer client. The pilot
// shells out to it for stage-in, the same way the container image does.
package rucio

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pilotx/pilotx/pkg/events"
)

// Default locations searched for the packaged config template when none is
// configured explicitly.
var defaultTemplates = []string{
	"/opt/rucio/etc/rucio.cfg.template",
	"/usr/local/etc/rucio.cfg.template",
}

// Options configures the client wrapper.
type Options struct {
	// Home is exported as RUCIO_HOME for every invocation.
	Home string
	// ConfigFile is exported as RUCIO_CONFIG. EnsureConfig creates it from
	// the template when missing.
	ConfigFile string
	// TemplateFile overrides the packaged config template location.
	TemplateFile string
	Account      string
	Binary       string
	// Timeout bounds one invocation, in seconds. Zero means no timeout.
	Timeout int
}

// DownloadRequest describes one stage-in invocation.
type DownloadRequest struct {
	// DIDs are the data identifiers to download, in "scope:name" form.
	DIDs []string
	// Dir is the directory downloads land in.
	Dir string
}

// Client invokes the external rucio client.
type Client struct {
	log  *logrus.Entry
	opts Options
}

// New returns a new client wrapper.
func New(opts Options) *Client {
	if opts.Binary == "" {
		opts.Binary = "rucio"
	}
	return &Client{
		log:  logrus.WithField("component", "rucio"),
		opts: opts,
	}
}

// EnsureConfig makes sure the client config file exists, copying the packaged
// template into place when it does not. This mirrors the filesystem contract
// of the container image: the template ships with the client installation and
// the live config lives under RUCIO_HOME.
func (c *Client) EnsureConfig() error {
	if c.opts.ConfigFile == "" {
		return errors.New("rucio config file location not set")
	}
	if _, err := os.Stat(c.opts.ConfigFile); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "error checking rucio config")
	}

	template, err := c.findTemplate()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.opts.ConfigFile), 0o755); err != nil {
		return errors.Wrap(err, "error preparing rucio config directory")
	}
	if err := copyFile(template, c.opts.ConfigFile); err != nil {
		return errors.Wrap(err, "error copying rucio config template")
	}
	c.log.Infof("created %s from %s", c.opts.ConfigFile, template)
	return nil
}

// Env returns the environment variables every client invocation needs.
func (c *Client) Env() []string {
	env := []string{}
	if c.opts.Home != "" {
		env = append(env, "RUCIO_HOME="+c.opts.Home)
	}
	if c.opts.ConfigFile != "" {
		env = append(env, "RUCIO_CONFIG="+c.opts.ConfigFile)
	}
	if c.opts.Account != "" {
		env = append(env, "RUCIO_ACCOUNT="+c.opts.Account)
	}
	return env
}

// Download stages the requested DIDs into the target directory, relaying the
// client's output as events. The invocation is bracketed with stats events.
func (c *Client) Download(
	ctx context.Context, req DownloadRequest, p events.Publisher[Event],
) (err error) {
	if len(req.DIDs) == 0 {
		return nil
	}
	if err = p.Publish(ctx, NewBeginStatsEvent(DownloadStatsKind)); err != nil {
		return err
	}
	defer func() {
		if sErr := p.Publish(ctx, NewEndStatsEvent(DownloadStatsKind)); sErr != nil {
			c.log.WithError(sErr).Warn("did not send download done stats")
		}
	}()

	if err = c.EnsureConfig(); err != nil {
		return err
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.opts.Timeout)*time.Second)
		defer cancel()
	}

	name, args := c.getDownloadCommand(req)
	c.log.Debugf("running %s %s", name, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204
	cmd.Env = append(os.Environ(), c.Env()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "opening rucio stdout")
	}
	cmd.Stderr = cmd.Stdout

	if err = cmd.Start(); err != nil {
		return errors.Wrapf(err, "starting %s", name)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var scanErr error
	for scanner.Scan() {
		level, msg := parseClientLine(scanner.Text())
		if scanErr = p.Publish(ctx, NewLogEvent(level, msg)); scanErr != nil {
			break
		}
	}
	if scanErr == nil {
		scanErr = errors.Wrap(scanner.Err(), "reading rucio output")
	}
	if scanErr != nil {
		// The client may still be writing; close our end so it does not block
		// forever on a full pipe, then reap it.
		_ = stdout.Close()
		_ = cmd.Wait()
		return scanErr
	}

	if err = cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return errors.Errorf("rucio download exited with code %d", exitErr.ExitCode())
		}
		return errors.Wrap(err, "waiting on rucio download")
	}
	return nil
}

// getDownloadCommand returns the command and arguments for one download
// invocation.
func (c *Client) getDownloadCommand(req DownloadRequest) (string, []string) {
	args := []string{}
	if c.opts.Account != "" {
		args = append(args, "-a", c.opts.Account)
	}
	args = append(args, "download", "--dir", req.Dir)
	args = append(args, req.DIDs...)
	return c.opts.Binary, args
}

func (c *Client) findTemplate() (string, error) {
	candidates := defaultTemplates
	if c.opts.TemplateFile != "" {
		candidates = []string{c.opts.TemplateFile}
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errors.Errorf("no rucio config template found in %v", candidates)
}

// parseClientLine extracts the log level from one line of client output.
// Lines look like "2021-07-01 12:00:00,123 INFO Download of scope:name done".
func parseClientLine(line string) (level, msg string) {
	for _, l := range []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"} {
		if idx := strings.Index(line, l); idx >= 0 {
			return l, strings.TrimSpace(line[idx+len(l):])
		}
	}
	return "INFO", line
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644) // #nosec G304
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
