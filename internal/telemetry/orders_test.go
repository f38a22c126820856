package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleExport = `store_id,store_name,placed_at,total_usd
1,Downtown,2026-08-01 12:30:00,14.50
1,Downtown,2026-08-02,22.00
2,Campus,2026-08-01T18:45:00Z,9.75
`

func TestImportOrders(t *testing.T) {
	orders, err := ImportOrders(context.Background(), strings.NewReader(sampleExport))
	require.NoError(t, err)
	require.Len(t, orders, 3)

	assert.Equal(t, "1", orders[0].StoreID)
	assert.Equal(t, "Downtown", orders[0].StoreName)
	assert.InDelta(t, 14.50, orders[0].TotalUSD, 1e-9)
	assert.Equal(t, 2026, orders[0].PlacedAt.Year())

	assert.Equal(t, "Campus", orders[2].StoreName)
}

func TestImportOrders_SkipsMalformedRows(t *testing.T) {
	dirty := `store_id,store_name,placed_at,total_usd
1,Downtown,2026-08-01,14.50
,Downtown,2026-08-01,9.00
2,Campus,not-a-date,9.75
3,Airport,2026-08-01,-5.00
4,Mall,2026-08-02,31.25
`
	orders, err := ImportOrders(context.Background(), strings.NewReader(dirty))
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "1", orders[0].StoreID)
	assert.Equal(t, "4", orders[1].StoreID)
}

func TestImportOrders_MissingColumn(t *testing.T) {
	_, err := ImportOrders(context.Background(), strings.NewReader("store_id,placed_at\n1,2026-08-01\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "store_name"`)
}

func TestImportOrders_Empty(t *testing.T) {
	_, err := ImportOrders(context.Background(), strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty order export")
}

func TestImportOrders_HeaderCaseInsensitive(t *testing.T) {
	export := "Store_ID,Store_Name,Placed_At,Total_USD\n7,Arena District,2026-08-01,18.00\n"
	orders, err := ImportOrders(context.Background(), strings.NewReader(export))
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "7", orders[0].StoreID)
}
