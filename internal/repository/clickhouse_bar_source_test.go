package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinPrep/internal/domain/models"
)

func TestTableFor(t *testing.T) {
	tbl, err := tableFor(models.FreqDaily)
	require.NoError(t, err)
	assert.Equal(t, "candles_1d", tbl)

	tbl, err = tableFor(models.FreqMinute)
	require.NoError(t, err)
	assert.Equal(t, "candles_1m", tbl)

	_, err = tableFor("5Min")
	assert.ErrorIs(t, err, models.ErrUnsupportedFrequency)
}

func TestBarSchema(t *testing.T) {
	stmts := BarSchema("market")
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS market", stmts[0])
	assert.True(t, strings.Contains(stmts[1], "market.candles_1d"))
	assert.True(t, strings.Contains(stmts[2], "market.candles_1m"))
}

func TestNormalizeTimestamp(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	ts := time.Date(2024, 3, 5, 16, 0, 0, 0, ny)

	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), normalizeTimestamp(ts, models.FreqDaily))
	assert.Equal(t, time.Date(2024, 3, 5, 21, 0, 0, 0, time.UTC), normalizeTimestamp(ts, models.FreqMinute))
}

func TestQueryBounds(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)

	from, to := queryBounds(start, end, models.FreqDaily)
	assert.Equal(t, start, from)
	assert.Equal(t, time.Date(2024, 1, 4, 23, 59, 59, 0, time.UTC), to)

	// A row stored at the session open still falls inside the last date.
	open := time.Date(2024, 1, 4, 14, 30, 0, 0, time.UTC)
	assert.False(t, open.After(to))

	from, to = queryBounds(start.Add(8*time.Hour), end.Add(9*time.Hour), models.FreqMinute)
	assert.Equal(t, start.Add(8*time.Hour), from)
	assert.Equal(t, end.Add(9*time.Hour), to)
}
