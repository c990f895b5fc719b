package source

import (
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"memwatch/internal/models"
)

var (
	dollarPattern     = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d+)?)`)
	signedPattern     = regexp.MustCompile(`[+-]?\d+(?:\.\d+)?`)
	percentPattern    = regexp.MustCompile(`([+-]?\d+(?:\.\d+)?)\s*%`)
	updateTimePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}\s*\d{2}:\d{2}`)
)

// minCells is the number of columns in a CFM price row: product, price,
// change, change percent, last week, week high, week low.
const minCells = 7

// RowError describes a table row that could not be parsed.
type RowError struct {
	Row     int
	Product string
	Err     error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d (%s): %v", e.Row, e.Product, e.Err)
}

// Page is the parsed content of one price page.
type Page struct {
	UpdateTime string
	Products   []models.ProductQuote
	RowErrors  []*RowError
}

// ParsePage parses a CFM price page. Rows that do not parse are reported in
// RowErrors and left out of Products.
func ParsePage(r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	page := &Page{}
	if m := updateTimePattern.FindString(doc.Text()); m != "" {
		page.UpdateTime = normalizeUpdateTime(m)
	}

	table := doc.Find("table").First()
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		// Header rows
		if row.Find("th").Length() > 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < minCells {
			return
		}

		q, err := parseRow(cells)
		if err != nil {
			page.RowErrors = append(page.RowErrors, &RowError{Row: i, Product: q.Product, Err: err})
			return
		}
		page.Products = append(page.Products, q)
	})

	return page, nil
}

func parseRow(cells *goquery.Selection) (models.ProductQuote, error) {
	var q models.ProductQuote

	name := cells.Eq(0)
	if link := name.Find("a").First(); link.Length() > 0 {
		q.Product = cleanText(link.Text())
	} else {
		q.Product = cleanText(name.Text())
	}
	if q.Product == "" {
		return q, fmt.Errorf("missing product name")
	}

	price, err := dollars(cells.Eq(1).Text())
	if err != nil {
		return q, fmt.Errorf("price: %w", err)
	}
	lastWeek, err := dollars(cells.Eq(4).Text())
	if err != nil {
		return q, fmt.Errorf("last week price: %w", err)
	}
	high, err := dollars(cells.Eq(5).Text())
	if err != nil {
		return q, fmt.Errorf("week high: %w", err)
	}
	low, err := dollars(cells.Eq(6).Text())
	if err != nil {
		return q, fmt.Errorf("week low: %w", err)
	}

	changeText := cells.Eq(2).Text()
	change := firstNumber(signedPattern.FindString(changeText))
	pct := 0.0
	if m := percentPattern.FindStringSubmatch(cells.Eq(3).Text()); m != nil {
		pct = firstNumber(m[1])
	}

	// The change cell carries an explicit "+" for rises; anything else is a
	// fall unless the value is zero.
	var trend models.Trend
	if strings.Contains(changeText, "+") {
		change, pct = math.Abs(change), math.Abs(pct)
		trend = models.TrendUp
	} else {
		change, pct = -math.Abs(change), -math.Abs(pct)
		trend = models.TrendFromChange(change)
		if change == 0 {
			change, pct = 0, 0
		}
	}

	q.Price = models.Float(price)
	q.Change = models.Float(change)
	q.ChangePercent = models.Float(pct)
	q.LastWeekPrice = models.Float(lastWeek)
	q.WeekHigh = models.Float(high)
	q.WeekLow = models.Float(low)
	q.Trend = trend
	return q, nil
}

func dollars(s string) (float64, error) {
	m := dollarPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("no dollar amount in %q", cleanText(s))
	}
	return strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
}

func firstNumber(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeUpdateTime turns "2026-01-2011:00" or "2026-01-20  11:00" into
// "2026-01-20 11:00".
func normalizeUpdateTime(s string) string {
	s = strings.Join(strings.Fields(s), "")
	if len(s) == len("2006-01-0215:04") {
		return s[:10] + " " + s[10:]
	}
	return s
}
