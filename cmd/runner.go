package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/desertthunder/vidx/internal/realtime"
	"github.com/desertthunder/vidx/internal/repositories"
	"github.com/desertthunder/vidx/internal/services"
	"github.com/desertthunder/vidx/internal/session"
	"github.com/desertthunder/vidx/internal/shared"
	"github.com/desertthunder/vidx/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Dependencies are built on first use: commands that only print configuration never open the
// database, and only commands that follow jobs start the realtime channel.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	reader     *bufio.Reader
	dialer     realtime.Dialer

	api   services.Service
	repo  session.CredentialStore
	db    *sql.DB
	store *session.Store

	realtimeOnce sync.Once
	channel      *realtime.Channel
	registry     *realtime.Registry
	engine       *tasks.UploadEngine
	updates      chan tasks.ProgressUpdate
	disposers    []func()
}

// RunnerOpts contains configuration options for creating a Runner.
//
// API, Credentials and Dialer replace the HTTP client, SQLite store and websocket dialer.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	Input       io.Reader
	API         services.Service
	Credentials session.CredentialStore
	Dialer      realtime.Dialer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
		dialer:     opts.Dialer,
		api:        opts.API,
		repo:       opts.Credentials,
		updates:    make(chan tasks.ProgressUpdate, 64),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, videosCommand, uploadCommand, usersCommand, tuiCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Before loads the config file named by --config when it exists and applies the log level.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
		if _, err := os.Stat(path); err == nil {
			config, err := shared.LoadConfig(path)
			if err != nil {
				return ctx, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
			}
			r.config = config
		}
	}

	level := shared.ParseLogLevel(r.config.Log.Level)
	if cmd.Bool("verbose") {
		level = log.DebugLevel
	}
	shared.SetLogLevel(r.logger, level)
	return ctx, nil
}

// After releases everything the command opened.
func (r *Runner) After(ctx context.Context, cmd *cli.Command) error {
	r.Close()
	return nil
}

// Close tears down the realtime channel, the engine and the database in reverse order of creation.
func (r *Runner) Close() {
	for i := len(r.disposers) - 1; i >= 0; i-- {
		r.disposers[i]()
	}
	r.disposers = nil
}

func (r *Runner) onClose(fn func()) {
	r.disposers = append(r.disposers, fn)
}

// Session restores the persisted credential, building the API client & credential store on first use.
func (r *Runner) Session(ctx context.Context) (*session.Store, error) {
	if r.store != nil {
		return r.store, nil
	}
	if err := r.config.Validate(); err != nil {
		return nil, err
	}

	if r.repo == nil {
		db, err := shared.OpenDatabase(r.config.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := shared.RunMigrations(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		r.db = db
		r.onClose(func() { db.Close() })
		r.repo = repositories.NewCredentialRepository(db)
	}

	var client *services.Client
	if r.api == nil {
		client = services.NewClient(r.config.API.BaseURL, r.httpClient, r.logger, services.WithTimeout(r.config.API.Timeout))
		r.api = client
	}

	store := session.NewStore(r.api, r.repo, session.WithLogger(r.logger))
	if client != nil {
		client.SetCredentials(store)
	}
	r.onClose(store.Dispose)

	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	r.store = store
	return store, nil
}

// authenticated returns the session only when a credential is bound.
func (r *Runner) authenticated(ctx context.Context) (*session.Store, error) {
	store, err := r.Session(ctx)
	if err != nil {
		return nil, err
	}
	if !store.Snapshot().Authenticated() {
		return nil, fmt.Errorf("%w: run `vidx auth login` first", shared.ErrNotAuthenticated)
	}
	return store, nil
}

// Realtime builds the channel, the subscription registry and the upload engine and binds the
// channel to the session credential. It is safe to call more than once.
func (r *Runner) Realtime(ctx context.Context) (*tasks.UploadEngine, error) {
	store, err := r.authenticated(ctx)
	if err != nil {
		return nil, err
	}

	r.realtimeOnce.Do(func() {
		err = r.startRealtime(store)
	})
	if err != nil {
		return nil, err
	}
	return r.engine, nil
}

func (r *Runner) startRealtime(store *session.Store) error {
	wsURL, err := r.config.RealtimeURL()
	if err != nil {
		return err
	}

	dialer := r.dialer
	if dialer == nil {
		dialer = realtime.NewWebsocketDialer(r.config.API.Timeout)
	}

	r.channel = realtime.NewChannel(dialer, realtime.Options{
		URL:               wsURL,
		ReconnectAttempts: r.config.Realtime.ReconnectAttempts,
		ReconnectDelay:    r.config.Realtime.ReconnectDelay,
		ReconnectDelayMax: r.config.Realtime.ReconnectDelayMax,
		Logger:            r.logger,
		OnUnauthorized:    store.Invalidate,
	})
	r.registry = realtime.NewRegistry(r.channel, r.logger)
	r.engine = tasks.NewUploadEngine(r.api, r.registry, tasks.EngineOptions{
		Validator:    tasks.NewValidator(r.config.Uploads),
		PollInterval: r.config.Uploads.PollInterval,
		PollRate:     r.config.Uploads.PollRate,
		Updates:      r.updates,
		Logger:       r.logger,
	})
	r.engine.Attach(r.channel)

	unbind := store.OnChange(func(snap session.Snapshot) {
		r.channel.SetCredential(snap.Credential)
	})
	r.channel.SetCredential(store.Credential())

	r.onClose(r.channel.Close)
	r.onClose(r.registry.Close)
	r.onClose(r.engine.Close)
	r.onClose(unbind)
	return nil
}

// runEngine reconciles in the background until ctx is done.
func (r *Runner) runEngine(ctx context.Context, engine *tasks.UploadEngine) {
	go func() {
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("reconciliation stopped", "error", err)
		}
	}()
}

// prompt reads one line from the input, echoing the label to the output.
func (r *Runner) prompt(label string) (string, error) {
	r.writePlain("%s: ", label)
	if r.reader == nil {
		r.reader = bufio.NewReader(r.input)
	}
	line, err := r.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingArgument, strings.ToLower(label))
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads a password without echo when the input is a terminal.
func (r *Runner) promptSecret(label string) (string, error) {
	f, ok := r.input.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return r.prompt(label)
	}

	r.writePlain("%s: ", label)
	secret, err := term.ReadPassword(int(f.Fd()))
	r.writePlain("\n")
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return string(secret), nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
