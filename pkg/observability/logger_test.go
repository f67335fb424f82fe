package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLogLevel("WARNING"))
	assert.Equal(t, ErrorLevel, ParseLogLevel("error"))
	assert.Equal(t, InfoLevel, ParseLogLevel("bogus"))
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithAuthname("jdoe").WithField("outcome", "finalized").Info("login finalized")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "login finalized", entry["msg"])
	assert.Equal(t, "jdoe", entry["authname"])
	assert.Equal(t, "finalized", entry["outcome"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warnf("shown %d", 1)
	assert.Contains(t, buf.String(), "shown 1")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(nil).Info("nothing attached")
	assert.NotContains(t, buf.String(), "error")

	buf.Reset()
	logger.WithError(errors.New("boom")).Error("failed")
	assert.Contains(t, buf.String(), "boom")
}

func TestNewMetricsRegisters(t *testing.T) {
	// Non-default registry so repeated test runs do not collide.
	m := NewMetrics(prometheus.NewRegistry())
	require.NotNil(t, m)
	m.LoginsTotal.WithLabelValues(OutcomeFinalized).Inc()
	m.SyncWarningsTotal.WithLabelValues("mail").Inc()
	m.RuleParseIssues.Set(2)
}
