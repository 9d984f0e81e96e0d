package data

import (
	"testing"
	"time"

	"ShipRelay/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildExecutionStatsUpdates_Success(t *testing.T) {
	cur := &AutomationRule{
		TotalExecutions:      4,
		SuccessfulExecutions: 3,
		FailedExecutions:     1,
		AvgDurationMs:        100,
	}
	executedAt := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	rec := &model.ExecutionRecord{
		OrderID:    9001,
		ExecutedAt: executedAt,
		Success:    true,
		Duration:   600 * time.Millisecond,
	}

	updates := buildExecutionStatsUpdates(cur, rec)

	assert.Equal(t, int64(5), updates["total_executions"])
	// Running average: (100*4 + 600) / 5.
	assert.Equal(t, int64(200), updates["avg_duration_ms"])
	assert.Equal(t, int64(4), updates["successful_executions"])
	assert.Equal(t, executedAt, updates["last_executed"])
	assert.Equal(t, executedAt, updates["last_success"])
	assert.NotContains(t, updates, "failed_executions")
	assert.NotContains(t, updates, "last_error")
}

func TestBuildExecutionStatsUpdates_Failure(t *testing.T) {
	cur := &AutomationRule{
		TotalExecutions:      1,
		SuccessfulExecutions: 1,
		AvgDurationMs:        50,
	}
	executedAt := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	rec := &model.ExecutionRecord{
		OrderID:    9001,
		ExecutedAt: executedAt,
		Success:    false,
		Duration:   150 * time.Millisecond,
		Error:      "failed to update tags: connection refused",
	}

	updates := buildExecutionStatsUpdates(cur, rec)

	assert.Equal(t, int64(2), updates["total_executions"])
	assert.Equal(t, int64(100), updates["avg_duration_ms"])
	assert.Equal(t, int64(1), updates["failed_executions"])
	assert.Equal(t, "failed to update tags: connection refused", updates["last_error"])
	assert.NotContains(t, updates, "successful_executions")
	assert.NotContains(t, updates, "last_success")
}

func TestBuildExecutionStatsUpdates_FirstExecution(t *testing.T) {
	rec := &model.ExecutionRecord{
		OrderID:    9001,
		ExecutedAt: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
		Success:    true,
		Duration:   80 * time.Millisecond,
	}

	updates := buildExecutionStatsUpdates(&AutomationRule{}, rec)

	require.Equal(t, int64(1), updates["total_executions"])
	assert.Equal(t, int64(80), updates["avg_duration_ms"])
}
