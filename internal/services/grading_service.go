package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/osvaldoandrade/gradeq/internal/grading"
	"github.com/osvaldoandrade/gradeq/internal/metrics"
	"github.com/osvaldoandrade/gradeq/internal/providers"
	"github.com/osvaldoandrade/gradeq/internal/repository"
	"github.com/osvaldoandrade/gradeq/internal/tracing"
	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

// GradingService runs one grading step: load, derive, dispatch.
type GradingService interface {
	// Plan loads the workspace documents and derives the payload without
	// sending anything.
	Plan(ctx context.Context, in grading.Inputs) (grading.Plan, error)
	// Run executes the dispatch. Only configuration errors are returned;
	// remote failures are logged and reported in Outcome.Err.
	Run(ctx context.Context, in grading.Inputs) (domain.Outcome, error)
}

type gradingService struct {
	repo     repository.WorkspaceRepository
	api      providers.GradingAPI
	recorder *metrics.Recorder
	logger   *slog.Logger
	out      io.Writer
	now      func() time.Time
}

func NewGradingService(repo repository.WorkspaceRepository, api providers.GradingAPI, recorder *metrics.Recorder, logger *slog.Logger, out io.Writer, now func() time.Time) GradingService {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}
	if now == nil {
		now = time.Now
	}
	return &gradingService{
		repo:     repo,
		api:      api,
		recorder: recorder,
		logger:   logger,
		out:      out,
		now:      now,
	}
}

func (s *gradingService) Plan(ctx context.Context, in grading.Inputs) (grading.Plan, error) {
	sub, err := s.repo.LoadSubmission(ctx)
	if err != nil {
		return grading.Plan{}, err
	}
	if err := in.Validate(); err != nil {
		return grading.Plan{}, err
	}
	var report *domain.Report
	if in.NeedsReport() {
		rep, err := s.repo.LoadReport(ctx, in.ReportFilePath)
		if err != nil {
			return grading.Plan{}, err
		}
		report = &rep
	}
	return grading.Prepare(in, sub, report)
}

func (s *gradingService) Run(ctx context.Context, in grading.Inputs) (domain.Outcome, error) {
	ctx, span := tracing.Tracer().Start(ctx, "grading.run")
	defer span.End()

	plan, err := s.Plan(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "config_error")
		return domain.Outcome{}, err
	}
	span.SetAttributes(
		attribute.String("grading.submission_id", plan.Variables.SubmissionID),
		attribute.String("grading.status", string(plan.Status)),
		attribute.String("grading.decision", string(plan.Decision)),
		attribute.Int("grading.grades", len(plan.Variables.Grades)),
	)

	outcome := domain.Outcome{
		Decision:  plan.Decision,
		Status:    plan.Status,
		Variables: plan.Variables,
	}
	logger := s.logger.With("submission_id", plan.Variables.SubmissionID, "decision", string(plan.Decision))

	switch plan.Decision {
	case domain.DecisionPreview:
		b, err := json.MarshalIndent(plan.Variables, "", "  ")
		if err != nil {
			return outcome, fmt.Errorf("marshal variables: %w", err)
		}
		fmt.Fprintln(s.out, "variables: ", string(b))
		s.recorder.ObserveRun(string(plan.Decision), "none", s.now())
	case domain.DecisionSkip, domain.DecisionInvalidStatus:
		if plan.Decision == domain.DecisionInvalidStatus {
			// An unknown status ends the run silently for the caller; keep it visible in the logs.
			logger.Warn("report status is not one of success, failure, error; grading skipped", "status", string(plan.Status))
		}
		fmt.Fprintln(s.out, "Skipped grading")
		s.recorder.ObserveRun(string(plan.Decision), "none", s.now())
	case domain.DecisionSend:
		outcome.Response, outcome.Err = s.send(ctx, plan)
		if outcome.Err != nil {
			span.RecordError(outcome.Err)
			span.SetStatus(codes.Error, "mutation_failed")
			logger.Error("grading mutation failed", "err", outcome.Err)
			s.recorder.ObserveRun(string(plan.Decision), "error", s.now())
			break
		}
		fmt.Fprintln(s.out, indentJSON(outcome.Response))
		logger.Info("grading recorded", "grades", len(plan.Variables.Grades))
		s.recorder.ObserveRun(string(plan.Decision), "ok", s.now())
	}
	return outcome, nil
}

func (s *gradingService) send(ctx context.Context, plan grading.Plan) (json.RawMessage, error) {
	ctx, span := tracing.Tracer().Start(ctx, "grading.mutation")
	defer span.End()

	start := s.now()
	data, err := s.api.GradeSubmission(ctx, plan.Variables)
	elapsed := s.now().Sub(start)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "request_failed")
	}
	s.recorder.ObserveMutation(outcome, elapsed, len(plan.Variables.Grades))
	return data, err
}

func indentJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
