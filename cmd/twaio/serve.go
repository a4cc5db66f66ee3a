package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/twaio/twaio/internal/scrape"
	"github.com/twaio/twaio/internal/server"
	"github.com/twaio/twaio/internal/session"
)

const (
	serveCommandUse          = "serve"
	serveCommandShort        = "Serve the scrape task API over HTTP"
	flagHostName             = "host"
	flagHostDescription      = "Host interface for the HTTP server"
	flagPortName             = "port"
	flagPortDescription      = "Port for the HTTP server"
	defaultHost              = "127.0.0.1"
	defaultPort              = 8080
	shutdownTimeout          = 10 * time.Second
	readHeaderTimeout        = 10 * time.Second
	errMessageListenAndServe = "listen and serve"
	errMessageShutdown       = "shut down server"
	logMessageStartingServer = "starting HTTP server"
	logMessageShuttingDown   = "shutting down HTTP server"
	logMessageServerStopped  = "server stopped"
	logFieldAddress          = "address"
)

// sessionScrapeRunner runs server scrape jobs through an account session.
type sessionScrapeRunner struct {
	session *session.Session
}

func (runner sessionScrapeRunner) RunScrape(ctx context.Context, job server.ScrapeJob, observer server.ScrapeObserver) (scrape.Result, error) {
	outcome, err := runner.session.Scrape(ctx, session.ScrapeOptions{
		Kind:   job.Kind,
		Target: job.Target,
		Amount: job.Amount,
		Cursor: job.Cursor,
	}, session.ScrapeHooks{
		OnOutput:   observer.OutputOpened,
		OnProgress: observer.Progress,
	})
	return outcome.Result, err
}

func (application *Application) newServeCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   serveCommandUse,
		Short: serveCommandShort,
		Args:  cobra.NoArgs,
		RunE:  application.runServeCommand,
	}
	command.Flags().String(flagHostName, defaultHost, flagHostDescription)
	command.Flags().Int(flagPortName, defaultPort, flagPortDescription)
	application.bindFlag(command, flagHostName)
	application.bindFlag(command, flagPortName)
	return command
}

func (application *Application) runServeCommand(command *cobra.Command, _ []string) error {
	accountSession, err := application.openSession()
	if err != nil {
		return err
	}

	serveContext := command.Context()
	if serveContext == nil {
		serveContext = context.Background()
	}
	tasks, err := server.NewScrapeTasks(server.ScrapeTasksConfig{
		Runner:      sessionScrapeRunner{session: accountSession},
		BaseContext: serveContext,
		Logger:      application.logger,
		Clock:       application.dependencies.Clock,
	})
	if err != nil {
		return err
	}
	router, err := server.NewRouter(server.RouterConfig{Tasks: tasks, Logger: application.logger})
	if err != nil {
		return err
	}

	address := net.JoinHostPort(application.configuration.GetString(flagHostName), strconv.Itoa(application.configuration.GetInt(flagPortName)))
	httpServer := &http.Server{Addr: address, Handler: router, ReadHeaderTimeout: readHeaderTimeout}

	group, groupContext := errgroup.WithContext(serveContext)
	group.Go(func() error {
		application.logger.Info(logMessageStartingServer, zap.String(logFieldAddress, address))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			return fmt.Errorf("%s: %w", errMessageListenAndServe, listenErr)
		}
		return nil
	})
	group.Go(func() error {
		<-groupContext.Done()
		application.logger.Info(logMessageShuttingDown)
		shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownContext); shutdownErr != nil {
			return fmt.Errorf("%s: %w", errMessageShutdown, shutdownErr)
		}
		return nil
	})

	serveErr := group.Wait()
	tasks.Wait()
	application.logger.Info(logMessageServerStopped)
	return serveErr
}
