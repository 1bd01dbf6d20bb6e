package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll_RegistersOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	for _, c := range All() {
		require.NoError(t, reg.Register(c))
	}
}

func TestInit_Idempotent(t *testing.T) {
	Init()
	Init()
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(Notifications.WithLabelValues("test", "skipped"))
	Notifications.WithLabelValues("test", "skipped").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Notifications.WithLabelValues("test", "skipped")))

	WorkersRunning.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(WorkersRunning))
	WorkersRunning.Set(0)
}
