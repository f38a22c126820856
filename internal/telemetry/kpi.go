package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/forkline/expansion-cli/internal/model"
)

// Aggregate rolls orders inside the window up into per-store KPIs.
// Trend compares revenue in the back half of the window against the
// front half.
func Aggregate(orders []Order, windowDays int, now time.Time) []model.StoreKPI {
	if windowDays <= 0 {
		windowDays = 30
	}
	windowStart := now.AddDate(0, 0, -windowDays)
	midpoint := now.AddDate(0, 0, -windowDays/2)

	type acc struct {
		name         string
		orders       int
		revenue      float64
		frontRevenue float64
		backRevenue  float64
	}
	byStore := make(map[string]*acc)

	for _, o := range orders {
		if o.PlacedAt.Before(windowStart) || o.PlacedAt.After(now) {
			continue
		}
		a := byStore[o.StoreID]
		if a == nil {
			a = &acc{name: o.StoreName}
			byStore[o.StoreID] = a
		}
		a.orders++
		a.revenue += o.TotalUSD
		if o.PlacedAt.Before(midpoint) {
			a.frontRevenue += o.TotalUSD
		} else {
			a.backRevenue += o.TotalUSD
		}
	}

	kpis := make([]model.StoreKPI, 0, len(byStore))
	for id, a := range byStore {
		kpi := model.StoreKPI{
			StoreID:    id,
			StoreName:  a.name,
			Orders:     a.orders,
			RevenueUSD: a.revenue,
			WindowDays: windowDays,
		}
		if a.orders > 0 {
			kpi.AvgTicketUSD = a.revenue / float64(a.orders)
		}
		if a.frontRevenue > 0 {
			kpi.TrendPct = (a.backRevenue - a.frontRevenue) / a.frontRevenue * 100
		}
		kpis = append(kpis, kpi)
	}

	sort.Slice(kpis, func(i, j int) bool { return kpis[i].StoreID < kpis[j].StoreID })
	return kpis
}

// PromptContext renders KPIs as the compact block market-analysis
// prompts embed. Stable ordering keeps prompt context deterministic.
func PromptContext(kpis []model.StoreKPI) string {
	if len(kpis) == 0 {
		return "No existing-store telemetry available."
	}

	var sb strings.Builder
	sb.WriteString("Existing store performance (last ")
	fmt.Fprintf(&sb, "%d days):\n", kpis[0].WindowDays)
	for _, k := range kpis {
		fmt.Fprintf(&sb, "- %s: %d orders, $%.2f avg ticket, $%.0f revenue, %+.1f%% trend\n",
			k.StoreName, k.Orders, k.AvgTicketUSD, k.RevenueUSD, k.TrendPct)
	}
	return strings.TrimRight(sb.String(), "\n")
}
