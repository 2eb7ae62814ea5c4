package trace

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

type recordingExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func TestLogHook(t *testing.T) {
	exporter := &recordingExporter{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	logger := logrus.New()
	logger.AddHook(NewLogHook(provider))

	logger.WithFields(logrus.Fields{"lock_id": "1001", "attempt": 2}).
		WithError(errors.New("connection reset")).
		Warn("Resync request failed")

	require.Len(t, exporter.records, 1)
	record := exporter.records[0]
	assert.Equal(t, "Resync request failed", record.Body().AsString())
	assert.Equal(t, otellog.SeverityWarn, record.Severity())
	assert.Equal(t, "warning", record.SeverityText())

	attrs := map[string]string{}
	record.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	assert.Equal(t, "1001", attrs["lock_id"])
	assert.Equal(t, "2", attrs["attempt"])
	assert.Equal(t, "connection reset", attrs["error"])
}
