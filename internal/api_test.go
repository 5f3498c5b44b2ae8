package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pilotx/pilotx/internal/options"
	"github.com/pilotx/pilotx/internal/task"
	"github.com/pilotx/pilotx/internal/tasks"
	"github.com/pilotx/pilotx/pkg/events"
)

func TestAPIServerRoutes(t *testing.T) {
	opts := *options.DefaultOptions()
	opts.PilotID = "pilot-1"

	manager, err := tasks.New(opts, nil, nil, nil, events.NilPublisher[task.Event]{})
	require.NoError(t, err)

	api := newPilotAPIServer("0.0.0-test", opts, manager)
	defer func() {
		require.NoError(t, api.close())
	}()

	rec := httptest.NewRecorder()
	api.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"pilot_id":"pilot-1"`)

	rec = httptest.NewRecorder()
	api.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}
