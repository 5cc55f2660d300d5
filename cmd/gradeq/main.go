package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/osvaldoandrade/gradeq/internal/grading"
	"github.com/osvaldoandrade/gradeq/pkg/app"
	"github.com/osvaldoandrade/gradeq/pkg/config"
	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

var version = "dev"

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

// reportFlags are the action inputs. Unset flags fall back to INPUT_* env.
type reportFlags struct {
	reportFilePath string
	failSubmission bool
	feedback       string
	testMode       bool
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.reportFilePath, "report-file-path", "", "Report path relative to the workspace (env INPUT_REPORT_FILE_PATH)")
	cmd.Flags().BoolVar(&f.failSubmission, "fail-submission", false, "Grade the submission as failed without reading a report (env INPUT_FAIL_SUBMISSION)")
	cmd.Flags().StringVar(&f.feedback, "feedback", "", "Feedback used when the report has none (env INPUT_FEEDBACK)")
	cmd.Flags().BoolVar(&f.testMode, "test-mode", false, "Print the mutation variables instead of sending them (env INPUT_TEST_MODE)")
}

// inputs merges explicit flags with the GitHub Actions inputs.
func (f *reportFlags) inputs(cmd *cobra.Command) (grading.Inputs, error) {
	in := grading.Inputs{
		ReportFilePath: f.reportFilePath,
		FailSubmission: f.failSubmission,
		Feedback:       f.feedback,
		TestMode:       f.testMode,
	}
	flags := cmd.Flags()
	if !flags.Changed("report-file-path") {
		in.ReportFilePath = config.ActionInput("report_file_path")
	}
	if !flags.Changed("feedback") {
		in.Feedback = config.ActionInput("feedback")
	}
	if !flags.Changed("fail-submission") {
		v, err := config.ActionBoolInput("fail_submission")
		if err != nil {
			return in, err
		}
		in.FailSubmission = v
	}
	if !flags.Changed("test-mode") {
		v, err := config.ActionBoolInput("test_mode")
		if err != nil {
			return in, err
		}
		in.TestMode = v
	}
	return in, nil
}

func main() {
	cfgPath := getenv("GRADEQ_CONFIG_PATH", "")
	ui := newUI()

	root := &cobra.Command{
		Use:   "gradeq",
		Short: "gradeq CLI",
		Long:  "gradeq reports CI grading results to the review service.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "Config file (YAML)")

	var rootFlags reportFlags
	rootFlags.register(root)
	root.RunE = func(cmd *cobra.Command, args []string) error {
		return runReport(cmd, &rootFlags, cfgPath, ui)
	}

	root.AddCommand(reportCmd(&cfgPath, ui))
	root.AddCommand(inspectCmd(&cfgPath, ui))
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func reportCmd(cfgPath *string, ui *ui) *cobra.Command {
	var flags reportFlags
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Send the grading for the current submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, &flags, *cfgPath, ui)
		},
	}
	flags.register(cmd)
	return cmd
}

func runReport(cmd *cobra.Command, flags *reportFlags, cfgPath string, ui *ui) error {
	in, err := flags.inputs(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := isTerminal(int(os.Stdout.Fd()))
	var out io.Writer = os.Stdout
	var buffered bytes.Buffer
	if interactive {
		out = &buffered
	}

	application, err := app.NewApplication(cfg, app.WithOutput(out))
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Shutdown(shutdownCtx)
	}()

	var spin *spinner.Spinner
	if interactive {
		spin = spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(os.Stderr))
		spin.Suffix = " Grading submission..."
		spin.Start()
	}
	outcome, err := application.Report(ctx, in)
	if spin != nil {
		spin.Stop()
	}
	if interactive {
		_, _ = io.Copy(os.Stdout, &buffered)
	}
	if err != nil {
		return err
	}

	if interactive {
		switch {
		case outcome.Err != nil:
			fmt.Fprintln(os.Stderr, ui.warn("[WARN]"), "grading was not recorded:", outcome.Err)
		case outcome.Decision.Sends():
			fmt.Fprintln(os.Stderr, ui.ok("[OK]"), "grading recorded for", outcome.Variables.SubmissionID)
		}
	}
	return nil
}

func inspectCmd(cfgPath *string, ui *ui) *cobra.Command {
	var flags reportFlags
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Validate the workspace and show what would be sent",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := flags.inputs(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			application, err := app.NewApplication(cfg, app.WithOutput(io.Discard))
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			defer func() { _ = application.Shutdown(context.Background()) }()

			plan, err := application.Grading.Plan(cmd.Context(), in)
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(plan.Variables, "", "  ")
			if err != nil {
				return err
			}

			fmt.Printf("%s %s\n", ui.title("Workspace:"), application.Workspace.Root())
			fmt.Printf("%s %s\n", ui.title("Endpoint:"), emptyOr(cfg.Endpoint, "<unset>"))
			fmt.Printf("%s %s\n", ui.title("Token:"), maskToken(cfg.Token))
			fmt.Printf("%s %s\n", ui.title("Submission:"), plan.Variables.SubmissionID)
			fmt.Printf("%s %s\n", ui.title("Status:"), emptyOr(string(plan.Status), "<none>"))
			fmt.Printf("%s %s\n", ui.title("Decision:"), decisionLabel(ui, plan.Decision))
			fmt.Printf("%s %d\n", ui.title("Grades:"), len(plan.Variables.Grades))
			fmt.Printf("%s\n%s\n", ui.title("Variables:"), string(b))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gradeq version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfigOptional(path)
	if err != nil {
		return nil, fmt.Errorf("%w: load config: %w", domain.ErrConfig, err)
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
		if isTerminal(int(os.Stderr.Fd())) {
			cfg.LogFormat = "pretty"
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decisionLabel(ui *ui, d domain.Decision) string {
	switch d {
	case domain.DecisionSend:
		return ui.ok(string(d))
	case domain.DecisionPreview:
		return ui.info(string(d))
	case domain.DecisionInvalidStatus:
		return ui.warn(string(d))
	default:
		return ui.dim(string(d))
	}
}

func helpTemplate(ui *ui) string {
	title := ui.title("gradeq")
	return fmt.Sprintf(`%s: reports CI grading results

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Environment:
  REVIEW_END_POINT, REVIEW_BOT_USER_TOKEN, GITHUB_WORKSPACE, GRADEQ_CONFIG_PATH

Examples:
  gradeq --report-file-path out/report.json
  gradeq report --fail-submission --feedback "build failed"
  gradeq inspect --report-file-path out/report.json
  gradeq --test-mode --report-file-path out/report.json

`, title)
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func isTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

func maskToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "<unset>"
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "..." + v[len(v)-4:]
}

func emptyOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
