package app

import (
	"context"
	"errors"
	"net/http"

	"gitlab.com/nevasik7/alerting/logger"

	"zigfeed/internal/feed"
)

type HTTPServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

type App struct {
	log     logger.Logger
	feedSvc *feed.Service
	httpSrv HTTPServer
}

func NewApp(log logger.Logger, feedSvc *feed.Service, httpSrv HTTPServer) *App {
	return &App{log: log, feedSvc: feedSvc, httpSrv: httpSrv}
}

func (a *App) Start(ctx context.Context) error {
	a.log.Debug("App started begin...")

	a.feedSvc.Start(ctx)

	go func() {
		if err := a.httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Fatalf("Start HTTP server is error=%v", err)
		}
	}()

	a.log.Info("App started")
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.log.Debug("App stopped begin...")

	a.feedSvc.Close()

	if err := a.httpSrv.Shutdown(ctx); err != nil {
		return err
	}

	a.log.Info("App stopped")
	return nil
}
