package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"

	"github.com/osvaldoandrade/gradeq/internal/grading"
	"github.com/osvaldoandrade/gradeq/internal/metrics"
	"github.com/osvaldoandrade/gradeq/internal/providers"
	"github.com/osvaldoandrade/gradeq/internal/repository"
	"github.com/osvaldoandrade/gradeq/internal/services"
	"github.com/osvaldoandrade/gradeq/internal/tracing"
	"github.com/osvaldoandrade/gradeq/pkg/config"
	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	RunID     string
	Workspace repository.WorkspaceRepository
	API       providers.GradingAPI
	Recorder  *metrics.Recorder
	Grading   services.GradingService

	logOutput  io.Writer
	output     io.Writer
	httpClient *http.Client
	now        func() time.Time
	shutdown   func(context.Context) error
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithLogOutput sets where diagnostics are written. Defaults to stderr.
func WithLogOutput(w io.Writer) ApplicationOption {
	return func(app *Application) error {
		app.logOutput = w
		return nil
	}
}

// WithOutput sets where run results are printed. Defaults to stdout.
func WithOutput(w io.Writer) ApplicationOption {
	return func(app *Application) error {
		app.output = w
		return nil
	}
}

// WithHTTPClient overrides the client used for the grading mutation.
func WithHTTPClient(hc *http.Client) ApplicationOption {
	return func(app *Application) error {
		app.httpClient = hc
		return nil
	}
}

// WithGradingAPI replaces the review service client.
func WithGradingAPI(api providers.GradingAPI) ApplicationOption {
	return func(app *Application) error {
		app.API = api
		return nil
	}
}

// WithClock sets the time source used for metrics.
func WithClock(now func() time.Time) ApplicationOption {
	return func(app *Application) error {
		app.now = now
		return nil
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	app := &Application{
		Config:    cfg,
		RunID:     uuid.NewString(),
		logOutput: os.Stderr,
		output:    os.Stdout,
		now:       time.Now,
	}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	logger := NewLogger(app.logOutput, cfg.LogLevel, cfg.LogFormat).With("service", "gradeq", "env", cfg.Env, "run_id", app.RunID)
	slog.SetDefault(logger)
	app.Logger = logger

	shutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return nil, err
	}
	app.shutdown = shutdown

	repo, err := repository.NewWorkspaceRepository(cfg.Workspace)
	if err != nil {
		return nil, err
	}
	app.Workspace = repo

	if app.API == nil {
		var apiOpts []providers.Option
		if app.httpClient != nil {
			apiOpts = append(apiOpts, providers.WithHTTPClient(app.httpClient))
		}
		timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
		app.API = providers.NewGradingAPI(cfg.Endpoint, cfg.Token, timeout, apiOpts...)
	}

	app.Recorder = metrics.NewRecorder()
	app.Grading = services.NewGradingService(repo, app.API, app.Recorder, logger, app.output, app.now)

	return app, nil
}

// Report runs one grading step and pushes the run metrics. The returned
// error is always a configuration error.
func (a *Application) Report(ctx context.Context, in grading.Inputs) (domain.Outcome, error) {
	a.Logger.Debug("grading run started",
		"workspace", a.Workspace.Root(),
		"report_file_path", in.ReportFilePath,
		"fail_submission", in.FailSubmission,
		"test_mode", in.TestMode,
	)
	outcome, err := a.Grading.Run(ctx, in)
	if err != nil {
		a.Logger.Error("grading run aborted", "err", err, "config_error", grading.IsConfigError(err))
		return outcome, err
	}
	a.pushMetrics(ctx, outcome)
	return outcome, nil
}

func (a *Application) pushMetrics(ctx context.Context, outcome domain.Outcome) {
	if strings.TrimSpace(a.Config.PushgatewayURL) == "" {
		return
	}
	grouping := map[string]string{"submission": outcome.Variables.SubmissionID}
	if err := a.Recorder.Push(ctx, a.Config.PushgatewayURL, grouping); err != nil {
		a.Logger.Warn("metrics push failed", "err", err)
	}
}

// Shutdown flushes the tracer provider.
func (a *Application) Shutdown(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}
	return a.shutdown(ctx)
}

// NewLogger builds the slog logger for the given level and format. "pretty"
// is a colored console handler.
func NewLogger(w io.Writer, levelName, format string) *slog.Logger {
	level := new(slog.LevelVar)
	switch strings.ToLower(levelName) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case "pretty":
		handler = tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.Kitchen})
	default:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
