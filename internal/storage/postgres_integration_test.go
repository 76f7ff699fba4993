package storage

import (
	"context"
	"testing"
	"time"

	"github.com/dyike/SchwabAI/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresJournalIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("journal"),
		tcpostgres.WithUsername("schwabai"),
		tcpostgres.WithPassword("schwabai"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("terminate container: %v", err)
		}
	}()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := OpenPostgres(dsn)
	require.NoError(t, err)
	defer store.Close()

	// Migrations are idempotent.
	require.NoError(t, Migrate(dsn))

	runID := NewRunID(time.Now())
	require.NoError(t, store.StartRun(ctx, Run{ID: runID, AccountValue: decimal.NewFromInt(10000)}))
	require.NoError(t, store.RecordRecommendation(ctx, runID, models.Recommendation{Symbol: "AAPL", Action: models.ActionHold}))
	require.NoError(t, store.RecordTrade(ctx, runID, sampleTrade(models.TradeCompleted)))
	require.NoError(t, store.FinishRun(ctx, runID, RunDone))

	trades, err := store.RecentTrades(ctx, 5)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, models.TradeCompleted, trades[0].Status)
	assert.True(t, decimal.NewFromInt(20).Equal(trades[0].Quantity))
}
