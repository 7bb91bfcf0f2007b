package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitTelemetry_InvalidSampleRatio(t *testing.T) {
	for _, ratio := range []float64{0, -0.5, 1.5} {
		_, err := InitTelemetry(context.Background(), Config{ServiceName: "readpilot", SampleRatio: ratio})
		require.Error(t, err)
	}
}

func TestGetMetrics_Singleton(t *testing.T) {
	m := GetMetrics()
	require.NotNil(t, m)
	require.Same(t, m, GetMetrics())
	require.NotNil(t, m.EntitlementChecksTotal)
	require.NotNil(t, m.AnalyzeDuration)
}
