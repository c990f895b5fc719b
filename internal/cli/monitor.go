package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	apperrors "memwatch/internal/errors"
	"memwatch/internal/logging"
	"memwatch/internal/metrics"
	"memwatch/internal/models"
	"memwatch/internal/notify"
	"memwatch/internal/report"
	"memwatch/internal/source"
	"memwatch/internal/store"
	"memwatch/internal/tracker"
)

// lockStaleAfter is how old a run lock must be before it is considered
// abandoned.
const lockStaleAfter = 30 * time.Minute

type monitorOptions struct {
	noEmail bool
	verbose bool
}

func newMonitorCmd(app *App) *cobra.Command {
	var opts monitorOptions

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Fetch prices, update history and send the report",
		Long: `Fetch the current memory prices, compare them with the stored history
and deliver the price report.

The run fails when no price data could be fetched or when the report could
not be delivered.`,
		Example: `  memwatch monitor
  memwatch monitor --no-email -v
  memwatch monitor --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runMonitor(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.noEmail, "no-email", false, "print the report instead of sending it")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print every product")

	return cmd
}

func (app *App) runMonitor(cmd *cobra.Command, opts monitorOptions) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	output := NewOutput(cmd)
	if !app.Config.UI.ColorEnabled {
		output.DisableColor()
	}
	cfg := app.Config

	runID := uuid.NewString()
	logger := logging.WithRunID(app.Logger, runID)
	ctx = logging.WithLogger(ctx, logger)

	rec := metrics.NewRecorder()
	defer func() {
		rec.ObserveRun(time.Now(), err == nil)
		if werr := rec.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			logger.Warn().Err(werr).Str("path", cfg.Metrics.Textfile).Msg("Failed to write metrics")
		}
	}()

	notifier := notify.NewMultiNotifier(&cfg.Notifications, notify.WithLogger(logger))
	var failures notify.Notifier = notifier
	if opts.noEmail {
		failures = notify.NewNoOpNotifier()
	}
	defer func() {
		if err == nil || errors.Is(err, apperrors.ErrNotifierNotConfigured) || errors.Is(err, apperrors.ErrReportSuppressed) {
			return
		}
		var notifyErr *apperrors.NotifyError
		if errors.As(err, &notifyErr) {
			return
		}
		if serr := failures.SendError(context.WithoutCancel(ctx), err, "memwatch monitor"); serr != nil {
			logger.Debug().Err(serr).Msg("Error notification not delivered")
		}
	}()

	if !output.IsJSON() {
		output.Bold("Memory price monitor")
		output.Dim("%s  run %s", time.Now().Format("2006-01-02 15:04:05"), runID[:8])
		output.Println()
	}

	lock, err := store.AcquireLock(cfg.LockPath(), lockStaleAfter)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			logger.Warn().Err(rerr).Msg("Failed to release run lock")
		}
	}()

	hs, err := app.openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer hs.Close()

	strategy, err := tracker.ParseDeltaStrategy(cfg.Tracker.DeltaStrategy)
	if err != nil {
		return err
	}
	t, err := tracker.New(ctx, hs,
		tracker.WithDeltaStrategy(strategy),
		tracker.WithLogger(logger))
	if err != nil {
		return err
	}

	src := source.NewCFMSource(cfg.Source,
		source.WithFetchObserver(rec.ObserveFetch))

	if !output.IsJSON() {
		output.Info("Fetching prices from %s...", source.SourceName)
	}
	snap, fetchErr := src.Fetch(ctx)
	if snap.IsEmpty() {
		if fetchErr != nil {
			return fmt.Errorf("%w: %w", apperrors.ErrNoData, fetchErr)
		}
		return apperrors.ErrNoData
	}
	if fetchErr != nil && !output.IsJSON() {
		output.Warning("Some price pages failed: %v", fetchErr)
	}

	cs, err := t.UpdatePrices(ctx, snap)
	if err != nil {
		return err
	}
	rec.ObserveChangeSet(cs, snap.Len()-cs.TotalProducts, len(t.History().Records))

	gen := report.NewGenerator()
	text := gen.Text(cs)
	html, err := gen.HTML(cs)
	if err != nil {
		return err
	}
	rpt := notify.NewReport(cs, text, html)

	if output.IsJSON() {
		if err := output.JSON(cs); err != nil {
			return err
		}
	} else {
		printSummary(output, cs, opts.verbose)
	}

	if opts.noEmail {
		if output.IsJSON() {
			return nil
		}
		output.Println()
		console := notify.NewConsoleNotifier(output.Writer(), false)
		return console.SendReport(ctx, rpt)
	}

	if err := notifier.SendReport(ctx, rpt); err != nil {
		if errors.Is(err, apperrors.ErrNotifierNotConfigured) {
			return fmt.Errorf("sending report: %w (configure SMTP_EMAIL, SMTP_PASSWORD and RECIPIENT_EMAIL or use --no-email)", err)
		}
		if errors.Is(err, apperrors.ErrReportSuppressed) {
			return fmt.Errorf("sending report: %w (set notifications.level to all or reports_only, or use --no-email)", err)
		}
		return fmt.Errorf("sending report: %w", err)
	}

	if !output.IsJSON() {
		output.Success("✓ Report sent via %s", strings.Join(notifier.Channels(), ", "))
	}
	logMonitorDone(logger, cs)
	return nil
}

func printSummary(output *Output, cs *models.ChangeSet, verbose bool) {
	output.Printf("Products: %d   %s   %s\n",
		cs.TotalProducts,
		output.Red(fmt.Sprintf("up %d", len(cs.PriceUps))),
		output.Green(fmt.Sprintf("down %d", len(cs.PriceDowns))))

	if !verbose {
		return
	}
	output.Println()
	for _, p := range cs.AllProducts {
		output.Println("  " + output.ProductLine(p))
	}
}

func logMonitorDone(logger zerolog.Logger, cs *models.ChangeSet) {
	logger.Info().
		Str("date", cs.Date).
		Int("products", cs.TotalProducts).
		Msg("Monitor run complete")
}
