package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"memwatch/internal/tracker"
	"memwatch/pkg/utils"
)

func newTrendCmd(app *App) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "trend <product>",
		Short: "Show a product's recorded prices",
		Long: `Show the recorded prices of one product over the most recent history
records, oldest first.`,
		Example: `  memwatch trend "DDR5 UDIMM 16GB 5600"
  memwatch trend "DDR4 UDIMM 8GB 3200" --days 14 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			t, closeFn, err := app.openTracker(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			product := args[0]
			points := t.TrendPoints(product, days)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"product": product,
					"days":    days,
					"points":  points,
				})
			}

			if len(points) == 0 {
				output.Warning("No recorded prices for %s in the last %d records", product, days)
				return nil
			}

			output.Bold(product)
			table := NewTable(output, "DATE", "PRICE", "CHANGE")
			for i, p := range points {
				change := "-"
				if i > 0 {
					d := p.Price - points[i-1].Price
					change = output.ChangeColor(d, utils.TrendArrow(d)+" "+utils.FormatChange(d))
				}
				table.AddRow(p.Date, utils.FormatUSD(p.Price), change)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "number of history records to include")
	return cmd
}

func newHistoryCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored price snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			t, closeFn, err := app.openTracker(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			records := t.History().Records
			if limit > 0 && len(records) > limit {
				records = records[len(records)-limit:]
			}

			if output.IsJSON() {
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Dim("No history recorded yet")
				return nil
			}

			table := NewTable(output, "DATE", "TIMESTAMP", "PRODUCTS")
			for i := len(records) - 1; i >= 0; i-- {
				r := records[i]
				table.AddRow(r.Date, r.Timestamp, strconv.Itoa(len(r.Prices)))
			}
			table.Render()
			output.Println()
			output.Dim("%d of %d records", len(records), len(t.History().Records))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum records to show (0 for all)")
	return cmd
}

// openTracker loads the history for read-only commands. The returned
// function closes the store.
func (app *App) openTracker(cmd *cobra.Command) (*tracker.Tracker, func(), error) {
	hs, err := app.openStore(app.Config, app.Logger)
	if err != nil {
		return nil, nil, err
	}
	t, err := tracker.New(cmd.Context(), hs, tracker.WithLogger(app.Logger))
	if err != nil {
		hs.Close()
		return nil, nil, fmt.Errorf("opening history: %w", err)
	}
	return t, func() { hs.Close() }, nil
}
