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
	"github.com/JakeFAU/gameresult-crawler/internal/game"
)

type probeRow struct {
	Game      game.Type
	OK        bool
	Candidate game.Candidate
	Elapsed   time.Duration
}

func newProbeCmd() *cobra.Command {
	var games []string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Acquire the current result of each game once and print it",
		Long: `Runs the acquisition strategies once per game without storing or
announcing anything. Useful to check which strategy gets through the site's
defenses.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProbe(cmd, games)
		},
	}
	cmd.Flags().StringSliceVar(&games, "game", nil, "game types to probe (default: all)")
	return cmd
}

func runProbe(cmd *cobra.Command, gameFlags []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	// probing never persists or notifies
	cfg := rt.cfg
	cfg.Storage.Driver = config.StorageMemory
	cfg.Archive.Driver = config.ArchiveNone
	cfg.Notify = config.NotifyConfig{Timeout: cfg.Notify.Timeout}

	types := make([]game.Type, 0, len(gameFlags))
	for _, raw := range gameFlags {
		gt, err := game.ParseType(raw)
		if err != nil {
			return err
		}
		types = append(types, gt)
	}
	if len(types) == 0 {
		types = game.Types()
	}

	a, err := newApp(ctx, cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			rt.logger.Warn("close application services", zap.Error(cerr))
		}
	}()

	rows := make([]probeRow, 0, len(types))
	found := 0
	for _, gt := range types {
		start := time.Now()
		c, ok := a.Coordinator().AcquireCurrent(ctx, gt)
		rows = append(rows, probeRow{Game: gt, OK: ok, Candidate: c, Elapsed: time.Since(start)})
		if ok {
			found++
		}
	}
	renderProbe(cmd.OutOrStdout(), rows)
	if found == 0 {
		return errors.New("no game result acquired")
	}
	return nil
}

func renderProbe(w io.Writer, rows []probeRow) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Game", "Status", "Strategy", "Result", "Session", "MD5", "Elapsed"})
	for _, row := range rows {
		status := "FAILED"
		if row.OK {
			status = "OK"
		}
		c := row.Candidate
		t.AppendRow(table.Row{
			row.Game, status, c.Strategy, c.Result, c.SessionID, c.Fingerprint,
			row.Elapsed.Round(time.Millisecond),
		})
	}
	t.Render()
}
