package sqlstore

import (
	"context"
	"testing"
	"time"

	ierr "github.com/smallbiznis/mrrlab/internal/errors"
	"github.com/smallbiznis/mrrlab/internal/sink"
	"github.com/smallbiznis/mrrlab/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newSink(t *testing.T) (*Sink, *gorm.DB) {
	t.Helper()
	conn, err := db.OpenMemory(t.Name(), zaptest.NewLogger(t))
	require.NoError(t, err)
	s := New(conn, 2, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Ensure(context.Background(), sink.Tables()))
	return s, conn
}

func TestEnsureCreatesEveryTable(t *testing.T) {
	_, conn := newSink(t)
	for _, table := range sink.Tables() {
		assert.True(t, conn.Migrator().HasTable(table.Name), table.Name)
	}
}

func TestReplaceSwapsContents(t *testing.T) {
	s, conn := newSink(t)
	ctx := context.Background()
	table, err := sink.Lookup(sink.TablePrices)
	require.NoError(t, err)
	now := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	first := []sink.PriceRow{
		{PriceID: "price_1", ProductID: "prod_1", Created: now, ExtractedAt: now},
		{PriceID: "price_2", ProductID: "prod_1", Created: now, ExtractedAt: now},
		{PriceID: "price_3", ProductID: "prod_1", Created: now, ExtractedAt: now},
	}
	n, err := s.Replace(ctx, table, sink.NewBatch(first))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	second := []sink.PriceRow{{PriceID: "price_9", ProductID: "prod_2", Created: now, ExtractedAt: now}}
	n, err = s.Replace(ctx, table, sink.NewBatch(second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var stored []sink.PriceRow
	require.NoError(t, conn.Table(table.Name).Find(&stored).Error)
	require.Len(t, stored, 1)
	assert.Equal(t, "price_9", stored[0].PriceID)
}

func TestReplaceWithEmptyBatchClearsTable(t *testing.T) {
	s, conn := newSink(t)
	ctx := context.Background()
	table, err := sink.Lookup(sink.TableMonthlySummary)
	require.NoError(t, err)
	month := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	_, err = s.Replace(ctx, table, sink.NewBatch([]sink.MonthlySummaryRow{{MonthYear: "2024-01", MonthStartDate: month, CalculatedAt: month}}))
	require.NoError(t, err)
	n, err := s.Replace(ctx, table, sink.NewBatch([]sink.MonthlySummaryRow{}))
	require.NoError(t, err)
	assert.Zero(t, n)

	var count int64
	require.NoError(t, conn.Table(table.Name).Count(&count).Error)
	assert.Zero(t, count)
}

func TestFailedReplaceKeepsPreviousRows(t *testing.T) {
	s, conn := newSink(t)
	ctx := context.Background()
	table, err := sink.Lookup(sink.TableProducts)
	require.NoError(t, err)
	now := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	_, err = s.Replace(ctx, table, sink.NewBatch([]sink.ProductRow{{ProductID: "prod_1", Name: "CloudSync Platform", Created: now, ExtractedAt: now}}))
	require.NoError(t, err)

	duplicated := []sink.ProductRow{
		{ProductID: "prod_2", Name: "a", Created: now, ExtractedAt: now},
		{ProductID: "prod_2", Name: "b", Created: now, ExtractedAt: now},
	}
	_, err = s.Replace(ctx, table, sink.NewBatch(duplicated))
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))

	var stored []sink.ProductRow
	require.NoError(t, conn.Table(table.Name).Find(&stored).Error)
	require.Len(t, stored, 1)
	assert.Equal(t, "prod_1", stored[0].ProductID)
}

func TestEnsureRequiresModel(t *testing.T) {
	s, _ := newSink(t)
	err := s.Ensure(context.Background(), []sink.Table{{Name: "orphan"}})
	assert.ErrorIs(t, err, ErrMissingModel)
}
