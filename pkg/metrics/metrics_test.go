package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CommitsTotal.WithLabelValues("ok").Inc()
	m.ActiveGeneration.Set(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CommitsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ActiveGeneration))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
