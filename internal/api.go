package internal

import (
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/pilotx/pilotx/internal/options"
	"github.com/pilotx/pilotx/internal/tasks"
	"github.com/pilotx/pilotx/pkg/logger"
)

type pilotAPIServer struct {
	// Configuration details.
	opts options.PilotOptions

	// Internal state.
	server *echo.Echo
}

type pilotInfo struct {
	Version  string               `json:"version"`
	PilotID  string               `json:"pilot_id"`
	NumTasks int                  `json:"num_tasks"`
	Options  options.PilotOptions `json:"options"`
}

func newPilotAPIServer(
	version string, opts options.PilotOptions, manager *tasks.Manager,
) *pilotAPIServer {
	server := echo.New()
	server.Logger = logger.New()
	server.HidePort = true
	server.HideBanner = true
	server.Use(middleware.Recover())
	server.Pre(middleware.RemoveTrailingSlash())
	server.Use(otelecho.Middleware("pilotx"))

	server.GET("/info", func(c echo.Context) error {
		return c.JSON(http.StatusOK, pilotInfo{
			Version:  version,
			PilotID:  opts.PilotID,
			NumTasks: manager.NumTasks(),
			Options:  opts,
		})
	})
	server.GET("/tasks", func(c echo.Context) error {
		return c.JSON(http.StatusOK, manager.TaskSummaries())
	})

	server.Any("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	server.Any("/debug/pprof/cmdline", echo.WrapHandler(http.HandlerFunc(pprof.Cmdline)))
	server.Any("/debug/pprof/profile", echo.WrapHandler(http.HandlerFunc(pprof.Profile)))
	server.Any("/debug/pprof/symbol", echo.WrapHandler(http.HandlerFunc(pprof.Symbol)))
	server.Any("/debug/pprof/trace", echo.WrapHandler(http.HandlerFunc(pprof.Trace)))

	return &pilotAPIServer{
		opts:   opts,
		server: server,
	}
}

func (a *pilotAPIServer) serve() error {
	bindAddr := fmt.Sprintf("%s:%d", a.opts.BindIP, a.opts.BindPort)
	logrus.Infof("starting pilot server on [%s]", bindAddr)
	if a.opts.TLS {
		return a.server.StartTLS(bindAddr, a.opts.CertFile, a.opts.KeyFile)
	}
	return a.server.Start(bindAddr)
}

func (a *pilotAPIServer) close() error {
	return a.server.Close()
}
