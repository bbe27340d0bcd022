package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kataras/iris/v12"
	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run())
}

// run starts the gateway and blocks until it is stopped. It returns the
// process exit code so deferred cleanup always runs.
func run() int {
	logf := LoggingFormat{Path: "main", Function: "run", Type: LogType.Startup}

	cfg, err := loadConfig()
	if err != nil {
		logf.Level = logrus.FatalLevel
		logf.Error = err
		logf.Message = "invalid configuration"
		logf.Print()
		return 1
	}
	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	gateway, err := NewGateway(startCtx, cfg)
	cancel()
	if err != nil {
		logf.Level = logrus.FatalLevel
		logf.Error = err
		logf.Message = "failed to create gateway"
		logf.Print()
		return 1
	}
	defer gateway.Close()

	listener, err := listen(cfg.WebListen, cfg.ProxyProtocol)
	if err != nil {
		return 1
	}

	app := gateway.newWebApp()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Shutdown(shutdownCtx)
	}()

	logf.Level = logrus.InfoLevel
	logf.Message = "starting web server on " + cfg.WebListen
	logf.Print()

	err = app.Run(iris.Listener(listener), iris.WithoutServerError(iris.ErrServerClosed), iris.WithoutStartupLog)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logf.Level = logrus.ErrorLevel
		logf.Error = err
		logf.Message = "web server stopped"
		logf.Print()
		return 1
	}
	return 0
}
