package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"scrapectl/internal/apperrors"
	"scrapectl/internal/config"
	"scrapectl/internal/controller"
	"scrapectl/internal/health"
	"scrapectl/internal/job"
	"scrapectl/internal/retrieve"
	"scrapectl/internal/ui"
)

func newRunCmd(cfg *config.ClientConfig) *cobra.Command {
	var (
		p         job.Params
		waitReady time.Duration
		table     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit one scrape, wait for it and save the artifact",
		Long: "Submit one scrape, follow it until it finishes and save the artifact to the\n" +
			"output directory. Interrupt once to cancel and keep partial results; interrupt\n" +
			"again to quit immediately.",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cfg, cmd.ErrOrStderr())
			if p.Format == "" {
				p.Format = job.Format(cfg.Format)
			}
			return runOnce(cmd.Context(), cfg, p, waitReady, table, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&p.Site, "site", job.SiteBumeran, "portal: "+strings.Join(job.Sites, ", "))
	cmd.Flags().StringVar(&p.Title, "title", "", "job title to search for (required for computrabajo)")
	cmd.Flags().StringVar(&p.Location, "location", "", "location to search in (required for computrabajo)")
	cmd.Flags().IntVar(&p.Pages, "pages", 1, fmt.Sprintf("result pages to scrape (%d-%d)", job.MinPages, job.MaxPages))
	cmd.Flags().StringVar((*string)(&p.Format), "format", "", "artifact format: json or excel (default from config)")
	cmd.Flags().DurationVar(&waitReady, "wait-ready", 0, "wait up to this long for the backend before submitting")
	cmd.Flags().BoolVar(&table, "table", false, "print JSON rows as a table")
	return cmd
}

func runOnce(parent context.Context, cfg *config.ClientConfig, p job.Params, waitReady time.Duration, table bool, stdout, stderr io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := context.WithCancel(parent)
	defer stop()

	s, err := newStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if waitReady > 0 {
		if err := health.WaitReady(ctx, s.client, waitReady); err != nil {
			return err
		}
	}

	unsubscribe := s.ctrl.Subscribe(progressPrinter(stderr))
	defer unsubscribe()

	if err := s.ctrl.Submit(ctx, p); err != nil {
		if field := apperrors.FieldOf(err); field != "" {
			return fmt.Errorf("--%s: %w", field, err)
		}
		return err
	}

	// First interrupt cancels the job and keeps waiting for the partial
	// result; the second one gives up.
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
		case <-ctx.Done():
			return
		}
		fmt.Fprintln(stderr, "cancelling… (interrupt again to quit)")
		if _, err := s.ctrl.Cancel(ctx); err != nil && !errors.Is(err, controller.ErrClosed) {
			fmt.Fprintln(stderr, "cancel failed:", err)
		}
		select {
		case <-sigs:
			stop()
		case <-ctx.Done():
		}
	}()

	j, err := s.ctrl.Wait(ctx)
	if err != nil {
		return fmt.Errorf("job %s not finished (%s): %w", j.ID, j.State, err)
	}
	return report(cfg, j, table, stdout)
}

// progressPrinter writes one human line per state change or probe.
func progressPrinter(w io.Writer) controller.Listener {
	return func(ev controller.Event) {
		switch ev.Kind {
		case controller.Transition:
			fmt.Fprintf(w, "%s  %s\n", ev.Job.State, ui.RenderJob(ev.Job).Status)
		case controller.Progress:
			fmt.Fprintf(w, "  job %s %s, next check in %s\n", ev.Job.ID, ev.Outcome, ev.Delay)
		case controller.Superseded:
			fmt.Fprintf(w, "job %s superseded\n", ev.Job.ID)
		}
	}
}

func report(cfg *config.ClientConfig, j job.Job, table bool, stdout io.Writer) error {
	switch j.State {
	case job.StateCompleted:
		path, err := retrieve.Save(cfg.OutputDir, j.Artifact)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, path)
		if table && j.Artifact.Rows != nil {
			return printRows(stdout, j.Artifact.Rows)
		}
		return nil
	case job.StateEmpty:
		fmt.Fprintln(stdout, "no results")
		return nil
	case job.StateCancelled:
		fmt.Fprintln(stdout, "cancelled, no partial results")
		return nil
	default:
		return fmt.Errorf("job %s failed: %w", j.ID, j.Err)
	}
}

// printRows writes rows as a bordered table with columns in name order.
func printRows(w io.Writer, rows []map[string]any) error {
	var cols []string
	for _, row := range rows {
		for k := range row {
			if !slices.Contains(cols, k) {
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(cols...)
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			if v, ok := row[c]; ok && v != nil {
				cells[i] = fmt.Sprint(v)
			}
		}
		t.Row(cells...)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}
