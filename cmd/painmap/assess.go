package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jonathan/pain-assessment/internal/config"
	"github.com/jonathan/pain-assessment/internal/draft"
	"github.com/jonathan/pain-assessment/internal/observability"
	"github.com/jonathan/pain-assessment/internal/orchestrator"
	"github.com/jonathan/pain-assessment/internal/submission"
	"github.com/jonathan/pain-assessment/internal/types"
)

var (
	assessAnswers  string
	assessNoSubmit bool
	assessResume   bool
	assessServer   string
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Fill in, review and submit an assessment",
	Long: `Walk an answers file (YAML or JSON) through the assessment wizard step by step,
autosaving the draft, print the review with the red-flag urgency, then submit it and stream
the clinical summary.`,
	RunE: runAssess,
}

func init() {
	assessCmd.Flags().StringVarP(&assessAnswers, "answers", "a", "", "Answers file (.yaml, .yml or .json) (required)")
	assessCmd.Flags().BoolVar(&assessNoSubmit, "no-submit", false, "Stop after the review and keep the draft")
	assessCmd.Flags().BoolVar(&assessResume, "resume", false, "Resume the stored draft before applying answers")
	assessCmd.Flags().StringVar(&assessServer, "server", "", "Backend base URL (overrides server_url)")
	_ = assessCmd.MarkFlagRequired("answers")
	rootCmd.AddCommand(assessCmd)
}

// newOrchestrator builds an orchestrator over store using the client config timings.
func newOrchestrator(cfg config.Config, store draft.Store, logger *slog.Logger) *orchestrator.Orchestrator {
	transport := submission.NewHTTPTransport(cfg.ServerURL)
	return orchestrator.New(store, transport,
		orchestrator.WithLogger(logger),
		orchestrator.WithAutosaveOptions(
			draft.WithDebounce(cfg.Debounce()),
			draft.WithMinVisible(cfg.MinVisible()),
			draft.WithPersistTimeout(cfg.PersistTimeout()),
		),
		orchestrator.WithConsumerOptions(submission.WithReadTimeout(cfg.ReadTimeout())),
	)
}

// deltaPrinter writes the part of the accumulated summary text not yet shown.
type deltaPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	printed int
}

func (d *deltaPrinter) update(st orchestrator.State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	text := st.Submission.Text
	if len(text) <= d.printed {
		return
	}
	fmt.Fprint(d.out, text[d.printed:]) //nolint:errcheck
	d.printed = len(text)
}

func runAssess(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := slog.Default()
	out := cmd.OutOrStdout()

	cfg, err := loadClientConfig(configPath)
	if err != nil {
		return err
	}
	if assessServer != "" {
		cfg.ServerURL = assessServer
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ans, err := loadAnswers(assessAnswers)
	if err != nil {
		return err
	}

	store, closeStore, err := openDraftStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck

	orch := newOrchestrator(cfg, store, logger)
	defer orch.Close()

	if assessResume {
		found, err := orch.Load(ctx)
		if err != nil {
			return err
		}
		logger.Debug("assess: draft lookup", "found", found)
	}

	printer := observability.NewTerminalPrinter(os.Stdout)
	remaining := len(types.AllSteps()) - 1 - orch.Snapshot().CurrentStep.Index()
	bar := progressbar.NewOptions(max(remaining, 1),
		progressbar.OptionSetDescription("Assessment"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetVisibility(observability.IsTerminal(os.Stderr)),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	applyErr := ans.apply(orch, func(types.WizardStep) { _ = bar.Add(1) })
	_ = bar.Finish()

	if err := orch.Flush(ctx); err != nil {
		logger.Warn("assess: draft not saved", "error", err)
	}

	printer.PrintReview(orch.Snapshot())
	if applyErr != nil {
		var verr *orchestrator.ValidationError
		if errors.As(applyErr, &verr) {
			fmt.Fprintln(out, "Draft saved; complete the answers file and run again with --resume.") //nolint:errcheck
		}
		return applyErr
	}
	if assessNoSubmit {
		fmt.Fprintln(out, "Draft saved; not submitted.") //nolint:errcheck
		return nil
	}

	deltas := &deltaPrinter{out: out}
	unsubscribe := orch.Subscribe(deltas.update)
	st, err := orch.Submit(ctx)
	unsubscribe()
	fmt.Fprintln(out) //nolint:errcheck

	printer.PrintSubmission(st)
	if err != nil {
		return fmt.Errorf("failed to submit assessment: %w", err)
	}
	return nil
}
