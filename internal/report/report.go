// Package report renders a change-set as a plain-text and an HTML price
// report.
package report

import (
	"bytes"
	"cmp"
	"embed"
	"fmt"
	"html/template"
	"slices"
	"strings"
	"time"

	"memwatch/internal/models"
	"memwatch/pkg/utils"
)

//go:embed templates/email.html
var templatesFS embed.FS

var emailTemplate = template.Must(
	template.New("email.html").Funcs(template.FuncMap{
		"usd":     utils.FormatUSD,
		"change":  utils.FormatChange,
		"percent": utils.FormatPercent,
		"arrow":   utils.TrendArrow,
		"deref":   deref,
	}).ParseFS(templatesFS, "templates/email.html"),
)

const (
	barCount      = 6
	barBase       = 25.0
	barFlatHeight = 20
	barMinHeight  = 8
	barMaxHeight  = 30

	maxTopProducts = 4
	ruleWidth      = 55
)

// RankedProduct is a product with its position by change percent and the
// heights of its trend bars.
type RankedProduct struct {
	models.PriceRecord
	Rank         int
	TrendHeights []int
}

// Data is everything a report shows.
type Data struct {
	Date           string
	DataUpdateTime string
	GeneratedAt    string
	TotalProducts  int
	PriceUps       int
	PriceDowns     int
	AverageChange  float64
	Products       []models.PriceRecord
	Ranked         []RankedProduct
	TopProducts    []models.PriceRecord
	Source         string
}

// Generator renders reports.
type Generator struct {
	now func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source used for the generation timestamp.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a Generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Build derives the report data from cs.
func (g *Generator) Build(cs *models.ChangeSet) Data {
	date := cs.Date
	if date == "" {
		date = g.now().Format("2006-01-02")
	}

	source := "ChinaFlashMarket (CFM)"
	for _, p := range cs.AllProducts {
		if p.Source != "" {
			source = p.Source
			break
		}
	}

	return Data{
		Date:           date,
		DataUpdateTime: cs.DataUpdateTime(),
		GeneratedAt:    g.now().Format("2006-01-02 15:04:05"),
		TotalProducts:  len(cs.AllProducts),
		PriceUps:       len(cs.PriceUps),
		PriceDowns:     len(cs.PriceDowns),
		AverageChange:  cs.AverageChangePercent(),
		Products:       cs.AllProducts,
		Ranked:         Rank(cs.AllProducts),
		TopProducts:    TopProducts(cs.AllProducts),
		Source:         source,
	}
}

// Rank orders products by change percent, largest first. Ties keep their
// original order.
func Rank(products []models.PriceRecord) []RankedProduct {
	sorted := slices.Clone(products)
	slices.SortStableFunc(sorted, func(a, b models.PriceRecord) int {
		return cmp.Compare(b.ChangePercent, a.ChangePercent)
	})

	ranked := make([]RankedProduct, len(sorted))
	for i, p := range sorted {
		ranked[i] = RankedProduct{
			PriceRecord:  p,
			Rank:         i + 1,
			TrendHeights: TrendHeights(p.ChangePercent),
		}
	}
	return ranked
}

// TrendHeights returns the heights of the six bars drawn next to a product:
// rising for a positive change, falling for a negative one and level
// otherwise.
func TrendHeights(changePercent float64) []int {
	heights := make([]int, barCount)
	for i := range heights {
		var h int
		switch {
		case changePercent > 0:
			h = int(barBase * (0.6 + float64(i)*0.08))
		case changePercent < 0:
			h = int(barBase * (1.0 - float64(i)*0.06))
		default:
			h = barFlatHeight
		}
		heights[i] = min(barMaxHeight, max(barMinHeight, h))
	}
	return heights
}

// TopProducts picks the headline products: the first DDR5 32GB, a DDR5
// 16GB, a DDR4 16GB and a DDR4 32GB, in that order, skipping any that are
// missing.
func TopProducts(products []models.PriceRecord) []models.PriceRecord {
	picks := []struct{ family, capacity string }{
		{"DDR5", "32GB"},
		{"DDR5", "16GB"},
		{"DDR4", "16GB"},
		{"DDR4", "32GB"},
	}

	top := make([]models.PriceRecord, 0, maxTopProducts)
	chosen := make(map[string]bool)
	for _, pick := range picks {
		for _, p := range products {
			if chosen[p.Product] {
				continue
			}
			if strings.Contains(p.Product, pick.family) && strings.Contains(p.Product, pick.capacity) {
				top = append(top, p)
				chosen[p.Product] = true
				break
			}
		}
		if len(top) == maxTopProducts {
			break
		}
	}
	return top
}

// Text renders the plain-text report.
func (g *Generator) Text(cs *models.ChangeSet) string {
	d := g.Build(cs)
	rule := strings.Repeat("=", ruleWidth)
	thin := strings.Repeat("-", ruleWidth)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Memory Price Report - %s\n", d.Date)
	sb.WriteString(rule + "\n")
	fmt.Fprintf(&sb, "Data updated: %s\n\n", d.DataUpdateTime)

	sb.WriteString("Market overview:\n")
	fmt.Fprintf(&sb, "   Products monitored: %d\n", d.TotalProducts)
	fmt.Fprintf(&sb, "   Up this week:       %d\n", d.PriceUps)
	fmt.Fprintf(&sb, "   Down this week:     %d\n", d.PriceDowns)
	fmt.Fprintf(&sb, "   Average change:     %s\n\n", utils.FormatPercent(d.AverageChange))

	sb.WriteString("Top products:\n")
	sb.WriteString(thin + "\n")
	for _, p := range d.TopProducts {
		fmt.Fprintf(&sb, "   %s: %s (%s)\n", p.Product, utils.FormatUSD(p.Price), shortTrend(p))
	}

	sb.WriteString("\nPrice changes this week:\n")
	sb.WriteString(thin + "\n")
	for _, p := range d.Ranked {
		rank := fmt.Sprintf(" %d.", p.Rank)
		if p.Rank <= 3 {
			rank = fmt.Sprintf("[%d]", p.Rank)
		}
		fmt.Fprintf(&sb, "\n  %s %s\n", rank, p.Product)
		fmt.Fprintf(&sb, "      This week: %s  %s\n", utils.FormatUSD(p.Price), longTrend(p.PriceRecord))
		fmt.Fprintf(&sb, "      Last week: %s  Week low/high: %s ~ %s\n",
			utils.FormatUSD(deref(p.LastWeekPrice)),
			utils.FormatUSD(deref(p.WeekLow)),
			utils.FormatUSD(deref(p.WeekHigh)))
	}

	sb.WriteString("\n" + rule + "\n")
	fmt.Fprintf(&sb, "Source: %s\n", d.Source)
	fmt.Fprintf(&sb, "Generated: %s\n", d.GeneratedAt)
	sb.WriteString("Prices are channel-market USD quotes, updated Tuesdays 11:00 (GMT+8)\n")
	return sb.String()
}

// HTML renders the HTML report.
func (g *Generator) HTML(cs *models.ChangeSet) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, g.Build(cs)); err != nil {
		return "", fmt.Errorf("rendering html report: %w", err)
	}
	return buf.String(), nil
}

func shortTrend(p models.PriceRecord) string {
	switch {
	case p.IsUp():
		return fmt.Sprintf("↑+%.1f%%", p.ChangePercent)
	case p.IsDown():
		return fmt.Sprintf("↓%.1f%%", p.ChangePercent)
	default:
		return "flat"
	}
}

func longTrend(p models.PriceRecord) string {
	switch {
	case p.IsUp():
		return fmt.Sprintf("↑ %s (%s)", utils.FormatChange(p.Change), utils.FormatPercent(p.ChangePercent))
	case p.IsDown():
		return fmt.Sprintf("↓ %s (%s)", utils.FormatChange(p.Change), utils.FormatPercent(p.ChangePercent))
	default:
		return "flat"
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
