package cli

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"memwatch/internal/models"
)

// priceRow is one product price of one history record.
type priceRow struct {
	Date      string  `csv:"date" json:"date"`
	Timestamp string  `csv:"timestamp" json:"timestamp"`
	Product   string  `csv:"product" json:"product"`
	Price     float64 `csv:"price" json:"price"`
}

func newExportCmd(app *App) *cobra.Command {
	var (
		format  string
		outFile string
		product string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the price history",
		Long:  "Export every recorded product price to CSV or JSON, one row per product and snapshot.",
		Example: `  memwatch export --format csv --output prices.csv
  memwatch export --product "DDR4 UDIMM 16GB 3200"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if format != "csv" && format != "json" {
				return fmt.Errorf("unsupported format %q (use csv or json)", format)
			}

			t, closeFn, err := app.openTracker(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			rows := priceRows(t.History(), product)

			var w io.Writer = output.Writer()
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return fmt.Errorf("creating %s: %w", outFile, err)
				}
				defer f.Close()
				w = f
			}

			if err := writeRows(w, format, rows); err != nil {
				return err
			}

			if outFile != "" {
				output.Success("✓ Exported %d rows to %s", len(rows), outFile)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format: csv or json")
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&product, "product", "", "only export this product")
	return cmd
}

// priceRows flattens h oldest first, products sorted by name within a record.
func priceRows(h *models.History, product string) []*priceRow {
	rows := make([]*priceRow, 0)
	for _, rec := range h.Records {
		names := make([]string, 0, len(rec.Prices))
		for name := range rec.Prices {
			if product == "" || name == product {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			rows = append(rows, &priceRow{
				Date:      rec.Date,
				Timestamp: rec.Timestamp,
				Product:   name,
				Price:     rec.Prices[name],
			})
		}
	}
	return rows
}

func writeRows(w io.Writer, format string, rows []*priceRow) error {
	if format == "json" {
		out := &Output{writer: w}
		return out.JSON(rows)
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}
