package main

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forkline/expansion-cli/internal/model"
	"github.com/forkline/expansion-cli/internal/telemetry"
)

var (
	importTenant string
	importFile   string
	importWindow int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import existing-store data for a tenant",
}

// -- import orders --

var importOrdersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Import an order-telemetry CSV and aggregate per-store KPIs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		f, err := os.Open(importFile)
		if err != nil {
			return eris.Wrapf(err, "open orders csv %s", importFile)
		}
		defer f.Close() //nolint:errcheck

		orders, err := telemetry.ImportOrders(ctx, f)
		if err != nil {
			return eris.Wrap(err, "import orders")
		}

		kpis := telemetry.Aggregate(orders, importWindow, time.Now())
		if err := st.UpsertStoreKPIs(ctx, importTenant, kpis); err != nil {
			return eris.Wrap(err, "save store KPIs")
		}

		zap.L().Info("order import complete",
			zap.String("tenant_id", importTenant),
			zap.Int("orders", len(orders)),
			zap.Int("stores", len(kpis)),
			zap.Int("window_days", importWindow),
		)
		return nil
	},
}

// -- import stores --

var importStoresCmd = &cobra.Command{
	Use:   "stores",
	Short: "Import the tenant's existing store locations from CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		locations, err := readLocationsCSV(importFile)
		if err != nil {
			return err
		}
		if err := st.UpsertStoreLocations(ctx, importTenant, locations); err != nil {
			return eris.Wrap(err, "save store locations")
		}

		zap.L().Info("store import complete",
			zap.String("tenant_id", importTenant),
			zap.Int("stores", len(locations)),
		)
		return nil
	},
}

// readLocationsCSV parses a store-locations CSV with a header row:
// id,name,lat,lon,opened_at. opened_at is optional per row.
func readLocationsCSV(path string) ([]model.StoreLocation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open stores csv %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "read stores csv")
	}
	if len(records) < 2 {
		return nil, eris.New("stores csv has no data rows")
	}

	var locations []model.StoreLocation
	for i, rec := range records[1:] {
		if len(rec) < 4 {
			zap.L().Warn("skipping malformed store row", zap.Int("line", i+2))
			continue
		}
		lat, latErr := strconv.ParseFloat(rec[2], 64)
		lon, lonErr := strconv.ParseFloat(rec[3], 64)
		if latErr != nil || lonErr != nil {
			zap.L().Warn("skipping store row with bad coordinates", zap.Int("line", i+2))
			continue
		}

		loc := model.StoreLocation{ID: rec[0], Name: rec[1], Lat: lat, Lon: lon}
		if len(rec) > 4 && rec[4] != "" {
			if opened, tErr := time.Parse("2006-01-02", rec[4]); tErr == nil {
				loc.OpenedAt = opened
			}
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

func init() {
	importCmd.PersistentFlags().StringVar(&importTenant, "tenant", "", "tenant ID (required)")
	importCmd.PersistentFlags().StringVar(&importFile, "file", "", "path to CSV file (required)")
	_ = importCmd.MarkPersistentFlagRequired("tenant")
	_ = importCmd.MarkPersistentFlagRequired("file")

	importOrdersCmd.Flags().IntVar(&importWindow, "window", 28, "KPI aggregation window in days")

	importCmd.AddCommand(importOrdersCmd)
	importCmd.AddCommand(importStoresCmd)
	rootCmd.AddCommand(importCmd)
}
