package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCollectorsAreIndependentlyRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	m.MessagesRouted.Add(3)
	m.MessagesFailed.Inc()
	m.WorkersActive.Set(2)
	m.DisconnectsTotal.WithLabelValues("remote").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}

	require.Contains(t, byName, "router_messages_routed_total")
	assert.Equal(t, 3.0, byName["router_messages_routed_total"].Metric[0].Counter.GetValue())

	require.Contains(t, byName, "router_messages_failed_total")
	assert.Equal(t, 1.0, byName["router_messages_failed_total"].Metric[0].Counter.GetValue())

	require.Contains(t, byName, "portal_workers_active")
	assert.Equal(t, 2.0, byName["portal_workers_active"].Metric[0].Gauge.GetValue())

	require.Contains(t, byName, "portal_disconnects_total")
	assert.Equal(t, "remote", byName["portal_disconnects_total"].Metric[0].Label[0].GetValue())
}
