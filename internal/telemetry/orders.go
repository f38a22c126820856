// Package telemetry imports order exports from the point-of-sale system
// and aggregates them into per-store KPIs that feed market-analysis
// prompts.
package telemetry

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Order is one row of a point-of-sale order export.
type Order struct {
	StoreID   string
	StoreName string
	PlacedAt  time.Time
	TotalUSD  float64
}

// orderColumns is the required header of an order export.
var orderColumns = []string{"store_id", "store_name", "placed_at", "total_usd"}

// ImportOrders reads a CSV order export. Rows that fail to parse are
// skipped and counted rather than aborting the import; POS exports are
// routinely dirty.
func ImportOrders(ctx context.Context, r io.Reader) ([]Order, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("telemetry: empty order export")
	}
	if err != nil {
		return nil, eris.Wrap(err, "telemetry: read header")
	}

	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var orders []Order
	var skipped int
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "telemetry: import cancelled")
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "telemetry: read row")
		}

		order, ok := parseOrder(record, idx)
		if !ok {
			skipped++
			continue
		}
		orders = append(orders, order)
	}

	if skipped > 0 {
		zap.L().Warn("telemetry: skipped malformed order rows",
			zap.Int("skipped", skipped),
			zap.Int("imported", len(orders)),
		)
	}

	return orders, nil
}

func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range orderColumns {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("telemetry: missing column %q in order export", col)
		}
	}
	return idx, nil
}

func parseOrder(record []string, idx map[string]int) (Order, bool) {
	field := func(name string) string {
		i := idx[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	storeID := field("store_id")
	if storeID == "" {
		return Order{}, false
	}

	placedAt, err := parseTimestamp(field("placed_at"))
	if err != nil {
		return Order{}, false
	}

	total, err := strconv.ParseFloat(field("total_usd"), 64)
	if err != nil || total < 0 {
		return Order{}, false
	}

	return Order{
		StoreID:   storeID,
		StoreName: field("store_name"),
		PlacedAt:  placedAt,
		TotalUSD:  total,
	}, true
}

// parseTimestamp accepts RFC3339 and the date-only form POS exports use.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
