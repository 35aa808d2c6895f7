package obsprom

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserver_RecordsEventsDropsAndQueueDepth(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs := NewObserver(registry)

	obs.ObserveEvent("sis3302", 5000, true)
	obs.ObserveEvent("sis3302", 0, false)
	obs.ObserveDrop("sis3302")
	obs.ObserveQueueDepth("sis3302", 3)

	assert.Equal(t, float64(1), testutil.ToFloat64(obs.eventsTotal.WithLabelValues("sis3302", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(obs.eventsTotal.WithLabelValues("sis3302", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(obs.dropsTotal.WithLabelValues("sis3302")))
	assert.Equal(t, float64(3), testutil.ToFloat64(obs.queueDepth.WithLabelValues("sis3302")))
}
