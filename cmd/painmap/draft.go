package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/pain-assessment/internal/observability"
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Inspect or discard the saved assessment draft",
}

var draftShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved draft",
	RunE:  runDraftShow,
}

var draftClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the saved draft",
	RunE:  runDraftClear,
}

func init() {
	draftCmd.AddCommand(draftShowCmd, draftClearCmd)
	rootCmd.AddCommand(draftCmd)
}

func runDraftShow(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadClientConfig(configPath)
	if err != nil {
		return err
	}
	store, closeStore, err := openDraftStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck

	orch := newOrchestrator(cfg, store, slog.Default())
	defer orch.Close()

	found, err := orch.Load(ctx)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintln(cmd.OutOrStdout(), "No saved draft.") //nolint:errcheck
		return nil
	}

	st := orch.Snapshot()
	printer := observability.NewTerminalPrinter(os.Stdout)
	if cmd.OutOrStdout() != os.Stdout {
		printer = observability.NewPrinter(cmd.OutOrStdout(), false)
	}
	printer.PrintReview(st)
	if st.LastSavedAt != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Saved at %s\n", st.LastSavedAt.Local().Format("2006-01-02 15:04:05")) //nolint:errcheck
	}
	return nil
}

func runDraftClear(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadClientConfig(configPath)
	if err != nil {
		return err
	}
	store, closeStore, err := openDraftStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck

	orch := newOrchestrator(cfg, store, slog.Default())
	defer orch.Close()

	if err := orch.ClearDraft(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Draft cleared.") //nolint:errcheck
	return nil
}
