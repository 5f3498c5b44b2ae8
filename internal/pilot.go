// Package internal contains the pilot itself: the process that connects to
// the scheduler, advertises its devices and runs the tasks it is assigned.
package internal

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pilotx/pilotx/internal/device"
	"github.com/pilotx/pilotx/internal/options"
	"github.com/pilotx/pilotx/internal/task"
	"github.com/pilotx/pilotx/internal/tasks"
	"github.com/pilotx/pilotx/internal/wproto"
	"github.com/pilotx/pilotx/pkg/syncx/errgroupx"
	"github.com/pilotx/pilotx/pkg/ws"
)

const (
	wsInsecureScheme = "ws"
	wsSecureScheme   = "wss"
)

// schedulerSocket is the typed link between the pilot and the scheduler.
type schedulerSocket = ws.Websocket[wproto.SchedulerMessage, wproto.PilotMessage]

// Pilot is a single connection attempt to the scheduler: it dials the
// scheduler, performs the handshake and relays messages between the scheduler
// and the task manager until the connection drops or the pilot shuts down.
type Pilot struct {
	// Configuration details. Set in initialization and never modified after.
	version string
	opts    options.PilotOptions
	devices []device.Device

	// System dependencies. Also set in initialization and never modified after.
	log     *logrus.Entry
	manager *tasks.Manager
	inbound <-chan task.Event

	wg *errgroupx.Group
}

// New constructs a pilot connection attempt and begins running it. The task
// manager and its event feed outlive individual attempts so tasks survive
// scheduler blips.
func New(
	ctx context.Context,
	version string,
	opts options.PilotOptions,
	devices []device.Device,
	manager *tasks.Manager,
	inbound <-chan task.Event,
) *Pilot {
	p := &Pilot{
		version: version,
		opts:    opts,
		devices: devices,
		log: logrus.WithFields(logrus.Fields{
			"component": "pilot",
			"pilot-id":  opts.PilotID,
		}),
		manager: manager,
		inbound: inbound,
		wg:      errgroupx.WithContext(ctx),
	}

	p.wg.Go(func(ctx context.Context) error {
		defer p.wg.Cancel()
		return p.run(ctx)
	})

	return p
}

// Wait for the pilot connection to exit and return the cause.
func (p *Pilot) Wait() error {
	return p.wg.Wait()
}

func (p *Pilot) run(ctx context.Context) error {
	p.log.Trace("connecting to scheduler")
	socket, err := p.dial(ctx)
	if err != nil {
		return SchedulerConnectionError{cause: err}
	}
	defer func() {
		if cErr := socket.Close(); cErr != nil {
			p.log.WithError(cErr).Warn("closing scheduler socket")
		}
	}()

	p.log.Trace("waiting for scheduler handshake")
	var sopts wproto.SchedulerSetPilotOptions
	select {
	case msg, ok := <-socket.Inbox:
		if !ok {
			return SchedulerConnectionError{cause: errors.New("socket closed during handshake")}
		}
		if msg.SchedulerSetPilotOptions == nil {
			return errors.Errorf("handshake out of order: %+v", msg)
		}
		sopts = *msg.SchedulerSetPilotOptions
	case <-ctx.Done():
		return ctx.Err()
	}
	p.log.Infof("connected to scheduler %s (%s)",
		sopts.SchedulerInfo.SchedulerID, sopts.SchedulerInfo.Version)

	revalidated, err := p.manager.RevalidateTasks(ctx, sopts.TasksToRevalidate)
	if err != nil {
		return errors.Wrap(err, "revalidating tasks")
	}

	if err := p.send(ctx, socket, wproto.PilotMessage{PilotStarted: &wproto.PilotStarted{
		Version:          p.version,
		Devices:          p.devices,
		WorkDir:          p.opts.WorkDir,
		TasksRevalidated: revalidated,
	}}); err != nil {
		return err
	}

	for {
		select {
		case msg, ok := <-socket.Inbox:
			if !ok {
				return SchedulerConnectionError{cause: errors.New("scheduler socket closed")}
			}
			p.receive(ctx, msg)

		case ev := <-p.inbound:
			if err := p.send(ctx, socket, shimTaskEvent(ev)); err != nil {
				return err
			}

		case <-socket.Done:
			return connectionDropped(socket)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// connectionDropped wraps the socket's terminal error, covering peers that
// close cleanly without a cause.
func connectionDropped(socket *schedulerSocket) error {
	err := socket.Error()
	if err == nil {
		err = errors.New("scheduler closed the connection")
	}
	return SchedulerConnectionError{cause: err}
}

func (p *Pilot) receive(ctx context.Context, msg wproto.SchedulerMessage) {
	switch {
	case msg.StartTask != nil:
		if err := p.manager.StartTask(ctx, *msg.StartTask); err != nil {
			p.log.WithError(err).Errorf("could not start task %s", msg.StartTask.Task.ID)
		}
	case msg.SignalTask != nil:
		p.manager.SignalTask(ctx, *msg.SignalTask)
	case msg.SchedulerSetPilotOptions != nil:
		p.log.Warn("ignoring scheduler options sent after the handshake")
	default:
		p.log.Errorf("unknown message received: %+v", msg)
	}
}

func (p *Pilot) send(
	ctx context.Context, socket *schedulerSocket, msg wproto.PilotMessage,
) error {
	select {
	case socket.Outbox <- msg:
		return nil
	case <-socket.Done:
		return connectionDropped(socket)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pilot) dial(ctx context.Context) (*schedulerSocket, error) {
	tlsConfig, err := p.tlsConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to construct TLS config")
	}

	schedulerProto := wsInsecureScheme
	if tlsConfig != nil {
		schedulerProto = wsSecureScheme
	}
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
		TLSClientConfig:  tlsConfig,
	}

	schedulerAddr := fmt.Sprintf("%s://%s:%d/pilots?id=%s",
		schedulerProto, p.opts.SchedulerHost, p.opts.SchedulerPort, p.opts.PilotID)
	p.log.Infof("connecting to scheduler at: %s", schedulerAddr)
	conn, resp, err := dialer.DialContext(ctx, schedulerAddr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to scheduler")
	} else if err = resp.Body.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to read scheduler response on connection")
	}
	return ws.Wrap[wproto.SchedulerMessage, wproto.PilotMessage]("scheduler", conn), nil
}

func (p *Pilot) tlsConfig() (*tls.Config, error) {
	if !p.opts.Security.TLS.Enabled {
		return nil, nil
	}

	var pool *x509.CertPool
	if certFile := p.opts.Security.TLS.SchedulerCert; certFile != "" {
		certData, err := os.ReadFile(certFile) //nolint:gosec
		if err != nil {
			return nil, errors.Wrap(err, "failed to read certificate file")
		}
		pool = x509.NewCertPool()
		if !pool.AppendCertsFromPEM(certData) {
			return nil, errors.New("certificate file contains no certificates")
		}
	}

	var certs []tls.Certificate
	clientCert, err := p.opts.Security.TLS.ReadClientCertificate()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read client certificate")
	}
	if clientCert != nil {
		certs = append(certs, *clientCert)
	}

	return &tls.Config{
		InsecureSkipVerify: p.opts.Security.TLS.SkipVerify, //nolint:gosec
		MinVersion:         tls.VersionTLS12,
		RootCAs:            pool,
		ServerName:         p.opts.Security.TLS.SchedulerCertName,
		Certificates:       certs,
	}, nil
}

func shimTaskEvent(ev task.Event) wproto.PilotMessage {
	switch {
	case ev.StateChange != nil:
		return wproto.PilotMessage{TaskStateChanged: ev.StateChange}
	case ev.Log != nil:
		return wproto.PilotMessage{TaskLog: ev.Log}
	case ev.StatsRecord != nil:
		return wproto.PilotMessage{TaskStatsRecord: ev.StatsRecord}
	default:
		panic(fmt.Sprintf("unsupported task event: %+v", ev))
	}
}
