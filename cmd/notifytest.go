package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gameresult-crawler/internal/config"
	"github.com/JakeFAU/gameresult-crawler/internal/notify"
)

func newNotifyTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify-test",
		Short: "Send a test message through every configured channel",
		RunE:  runNotifyTest,
	}
}

func runNotifyTest(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	cfg := rt.cfg
	cfg.Storage.Driver = config.StorageMemory
	cfg.Archive.Driver = config.ArchiveNone
	cfg.Notify.Live.Enabled = false

	a, err := newApp(cmd.Context(), cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			rt.logger.Warn("close application services", zap.Error(cerr))
		}
	}()

	if len(a.Dispatcher().Configured()) == 0 {
		return errors.New("no notification channels configured")
	}
	outcomes := a.Dispatcher().SendTest(cmd.Context())
	renderOutcomes(cmd.OutOrStdout(), outcomes)
	for _, o := range outcomes {
		if o.Err == nil {
			return nil
		}
	}
	return errors.New("every channel failed")
}

func renderOutcomes(w io.Writer, outcomes []notify.Outcome) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Channel", "Status", "Duration", "Error"})
	for _, o := range outcomes {
		status, errText := "OK", ""
		if o.Err != nil {
			status, errText = "FAILED", o.Err.Error()
		}
		t.AppendRow(table.Row{o.Channel, status, o.Duration.Round(time.Millisecond), errText})
	}
	t.Render()
}
