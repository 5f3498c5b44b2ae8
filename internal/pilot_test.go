package internal_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/pilotx/pilotx/internal"
	"github.com/pilotx/pilotx/internal/options"
	"github.com/pilotx/pilotx/internal/task"
	"github.com/pilotx/pilotx/internal/tasks"
	"github.com/pilotx/pilotx/internal/tproto"
	"github.com/pilotx/pilotx/internal/wproto"
	"github.com/pilotx/pilotx/pkg/events"
	"github.com/pilotx/pilotx/pkg/proc"
	"github.com/pilotx/pilotx/pkg/rucio"
	"github.com/pilotx/pilotx/pkg/ws"
)

type nopStager struct{}

func (nopStager) Download(
	ctx context.Context, req rucio.DownloadRequest, p events.Publisher[rucio.Event],
) error {
	return nil
}

func TestPilotStartupAndTask(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	handshook := make(chan wproto.PilotStarted, 1)
	taskExited := make(chan wproto.TaskStateChanged, 1)

	srv := httptest.NewServer(wrapWebsocket(t, func(c *websocket.Conn) error {
		socket := ws.Wrap[*wproto.PilotMessage, *wproto.SchedulerMessage]("scheduler", c)
		defer func() {
			_ = socket.Close()
		}()

		select {
		case socket.Outbox <- &wproto.SchedulerMessage{
			SchedulerSetPilotOptions: &wproto.SchedulerSetPilotOptions{
				SchedulerInfo: wproto.SchedulerInfo{
					Version:     "0.0.0-test",
					SchedulerID: "sched-1",
				},
			},
		}:
		case <-ctx.Done():
			return nil
		}

		select {
		case msg := <-socket.Inbox:
			require.NotNil(t, msg.PilotStarted)
			handshook <- *msg.PilotStarted
		case <-ctx.Done():
			return nil
		}

		select {
		case socket.Outbox <- &wproto.SchedulerMessage{
			StartTask: &wproto.StartTask{
				Task: tproto.Task{ID: "task-1", PilotID: "pilot-1", State: tproto.Assigned},
				Spec: tproto.Spec{
					RunSpec: tproto.RunSpec{Command: []string{"sh", "-c", "exit 0"}},
				},
			},
		}:
		case <-ctx.Done():
			return nil
		}

		for {
			select {
			case msg := <-socket.Inbox:
				if msg.TaskStateChanged != nil &&
					msg.TaskStateChanged.Task.State == tproto.Terminated {
					taskExited <- *msg.TaskStateChanged
					return nil
				}
			case <-ctx.Done():
				return nil
			}
		}
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	opts := *options.DefaultOptions()
	opts.PilotID = "pilot-1"
	opts.SchedulerHost = u.Hostname()
	opts.SchedulerPort = port
	opts.WorkDir = t.TempDir()

	runtime := proc.New()
	defer func() {
		require.NoError(t, runtime.Close())
	}()

	taskEvents := make(chan task.Event, 256)
	manager, err := tasks.New(opts, nil, runtime, nopStager{},
		events.ChannelPublisher(taskEvents))
	require.NoError(t, err)
	defer manager.Close()

	p := internal.New(ctx, "0.0.0-test", opts, nil, manager, taskEvents)

	select {
	case started := <-handshook:
		require.Equal(t, "0.0.0-test", started.Version)
	case <-ctx.Done():
		t.Fatal("timed out waiting for handshake")
	}

	select {
	case exit := <-taskExited:
		require.NotNil(t, exit.TaskStopped)
		require.Nil(t, exit.TaskStopped.Failure)
	case <-ctx.Done():
		t.Fatal("timed out waiting for task exit")
	}

	// The connection either drops when the mock scheduler exits or the pilot
	// sees the cancellation first. Both are fine, it just has to return.
	cancel()
	_ = p.Wait()
}

func wrapWebsocket(t *testing.T, handler func(*websocket.Conn) error) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade to websocket failed: %s", err)
			return
		}

		if err := handler(c); err != nil {
			t.Errorf("websocket failed: %s", err)
			return
		}
	}
}
