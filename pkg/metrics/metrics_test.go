package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("clinic", reg)

	m.Transitions.WithLabelValues("appointment", "scheduled", "confirmed").Inc()
	m.PresenceConnections.Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("appointment", "scheduled", "confirmed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PresenceConnections))

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewTwiceOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New("clinic", prometheus.NewRegistry())
		New("clinic", prometheus.NewRegistry())
	})
}
