package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestObserveNodeStatusesUpdatesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveNodeStatuses(3, 5, 2)

	require.InDelta(t, 3, gaugeValue(t, m.NodesRegistered), 0)
	require.InDelta(t, 5, gaugeValue(t, m.SlotsFree), 0)
	require.InDelta(t, 2, gaugeValue(t, m.SlotsBusy), 0)
}

func TestSchedulerTicksCounterVecLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SchedulerTicks.WithLabelValues("matched").Inc()
	m.SchedulerTicks.WithLabelValues("matched").Inc()
	m.SchedulerTicks.WithLabelValues("rejected").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "gridcore_distributor_scheduler_ticks_total" {
			found = true
			require.Len(t, f.GetMetric(), 2)
		}
	}
	require.True(t, found, "expected scheduler ticks metric family to be registered")
}
