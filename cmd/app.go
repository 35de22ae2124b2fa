package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/contractdesk/internal/api"
	"github.com/fakeyudi/contractdesk/internal/auth"
	"github.com/fakeyudi/contractdesk/internal/blob"
	"github.com/fakeyudi/contractdesk/internal/compare"
	"github.com/fakeyudi/contractdesk/internal/config"
	"github.com/fakeyudi/contractdesk/internal/logging"
	"github.com/fakeyudi/contractdesk/internal/session"
)

// errLoginRequired replaces every authentication failure shown to the user.
var errLoginRequired = errors.New("login required: run 'contractdesk login'")

// drainTimeout bounds the wait for background session deletes on exit.
const drainTimeout = 10 * time.Second

// app is the wiring shared by the client commands.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	creds    *auth.Store
	api      *api.Client
	compares *compare.Orchestrator
	coord    *session.Coordinator
}

// current is the app of the running command.
var current *app

func newApp(cfg config.Config) (*app, error) {
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = logging.DefaultFile()
	}
	log := logging.New(logging.Options{File: logFile, Level: cfg.LogLevel})

	creds, err := auth.NewStore()
	if err != nil {
		return nil, err
	}

	client := api.New(cfg.APIURL,
		api.WithHTTPClient(newHTTPClient(cfg.Timeout())),
		api.WithToken(creds.Token),
		api.WithUnauthorizedHandler(func() {
			log.Warn("backend rejected credentials; signing out")
			if err := creds.Clear(); err != nil {
				log.Warn("clearing credentials", zap.Error(err))
			}
		}),
		api.WithLogger(log),
	)

	opts := []blob.Option{
		blob.WithHTTPClient(newHTTPClient(cfg.Timeout())),
		blob.WithTimestamps(cfg.Timestamps()),
		blob.WithLogger(log),
	}
	if cfg.RelayURL != "" {
		opts = append(opts, blob.WithRelay(cfg.RelayURL))
	}
	uploader := blob.NewUploader(client, opts...)

	store, err := session.NewSessionStore()
	if err != nil {
		return nil, err
	}
	compares := compare.NewOrchestrator(client, log)
	coord := session.NewCoordinator(client, uploader, compares, store, session.Options{
		ChatPrefix:      cfg.ChatPrefix,
		ProcessingDelay: cfg.Delay(),
		Logger:          log,
	})
	if err := coord.Rehydrate(); err != nil {
		log.Warn("session snapshot unreadable; starting fresh", zap.Error(err))
	}

	return &app{
		cfg:      cfg,
		log:      log,
		creds:    creds,
		api:      client,
		compares: compares,
		coord:    coord,
	}, nil
}

// close waits for background deletes and flushes the log.
func (a *app) close(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	if err := a.coord.Drain(ctx); err != nil {
		a.log.Warn("background session deletes still running at exit", zap.Error(err))
	}
	_ = a.log.Sync()
}

// friendly maps errors to the message shown on the terminal.
func friendly(err error) error {
	if api.IsUnauthorized(err) {
		return errLoginRequired
	}
	return err
}

// withApp adapts a command body that needs the wired client. The app is
// closed when the body returns.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a := current
		if a == nil {
			return fmt.Errorf("client not initialised")
		}
		defer func() {
			a.close(cmd.Context())
			current = nil
		}()
		return friendly(fn(cmd, args, a))
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
