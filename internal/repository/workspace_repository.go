package repository

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

// SubmissionFile is the submission document name at the workspace root.
const SubmissionFile = "submission.json"

const (
	submissionSchemaURL = "https://gradeq.local/schemas/submission.schema.json"
	reportSchemaURL     = "https://gradeq.local/schemas/report.schema.json"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var ErrEmptyDocument = fmt.Errorf("%w: document is empty", domain.ErrConfig)

// WorkspaceRepository reads the grading inputs left in the CI workspace.
type WorkspaceRepository interface {
	LoadSubmission(ctx context.Context) (domain.Submission, error)
	LoadReport(ctx context.Context, relPath string) (domain.Report, error)
	Root() string
}

type workspaceRepository struct {
	root       string
	submission *jsonschema.Schema
	report     *jsonschema.Schema
}

func NewWorkspaceRepository(root string) (WorkspaceRepository, error) {
	if root == "" {
		root = "."
	}
	compiler := jsonschema.NewCompiler()
	for url, name := range map[string]string{
		submissionSchemaURL: "schemas/submission.schema.json",
		reportSchemaURL:     "schemas/report.schema.json",
	} {
		data, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}
	sub, err := compiler.Compile(submissionSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile submission schema: %w", err)
	}
	rep, err := compiler.Compile(reportSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile report schema: %w", err)
	}
	return &workspaceRepository{root: root, submission: sub, report: rep}, nil
}

func (r *workspaceRepository) Root() string { return r.root }

func (r *workspaceRepository) LoadSubmission(ctx context.Context) (domain.Submission, error) {
	var s domain.Submission
	err := r.readJSON(ctx, filepath.Join(r.root, SubmissionFile), r.submission, &s)
	return s, err
}

func (r *workspaceRepository) LoadReport(ctx context.Context, relPath string) (domain.Report, error) {
	var rep domain.Report
	err := r.readJSON(ctx, filepath.Join(r.root, relPath), r.report, &rep)
	return rep, err
}

func (r *workspaceRepository) readJSON(ctx context.Context, path string, schema *jsonschema.Schema, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: failed to read file at %s: %v", domain.ErrConfig, path, err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("%w: %s", ErrEmptyDocument, path)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: failed to parse file at %s: %v", domain.ErrConfig, path, err)
	}
	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%w: invalid document at %s: %s", domain.ErrConfig, path, verr.Error())
		}
		return fmt.Errorf("%w: invalid document at %s: %v", domain.ErrConfig, path, err)
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("%w: failed to parse file at %s: %v", domain.ErrConfig, path, err)
	}
	return nil
}
