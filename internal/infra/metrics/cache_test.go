//go:build !integration

package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, scope, result string) float64 {
	t.Helper()
	var m dto.Metric
	if err := settingsCacheTotal.WithLabelValues(scope, result).Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestIncSettingsCache(t *testing.T) {
	// Arrange
	before := counterValue(t, "key", CacheError)

	// Act
	IncSettingsCache(" Key ", "ERROR")

	// Assert
	if got := counterValue(t, "key", CacheError); got != before+1 {
		t.Errorf("expected %v, got %v", before+1, got)
	}
}
