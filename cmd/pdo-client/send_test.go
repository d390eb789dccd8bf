package main

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ruteri/pdo-contract-client/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartMetrics(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	collector, stop, err := startMetrics("", log)
	require.NoError(t, err)
	assert.Nil(t, collector)
	stop()

	collector, stop, err = startMetrics("127.0.0.1:0", log)
	require.NoError(t, err)
	require.NotNil(t, collector)
	collector.ObserveStage(metrics.StageSubmit, time.Now(), nil)
	stop()
}
