package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRecorderExportsSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	r.RecordRefresh("snapshot", "5m", "ok")
	r.RecordRefresh("snapshot", "5m", "ok")
	r.RecordRows("snapshot", "5m", 42)
	r.RecordQuality("LDN", false)
	r.RecordLatency("snapshot_refresh", 0.2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				byName[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				byName[mf.GetName()] += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				byName[mf.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	want := map[string]float64{
		"fxrollup_refresh_total":              2,
		"fxrollup_refresh_rows":               42,
		"fxrollup_quality_hours_total":        1,
		"fxrollup_operation_duration_seconds": 1,
	}
	for name, v := range want {
		if byName[name] != v {
			t.Errorf("%s = %v, want %v", name, byName[name], v)
		}
	}
}
