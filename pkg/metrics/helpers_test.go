package metrics

import (
	"fmt"

	dto "github.com/prometheus/client_model/go"
)

// seriesFor returns the first series of family name carrying label=value.
func seriesFor(mfs []*dto.MetricFamily, name, label, value string) (*dto.Metric, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return nil, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric, nil
		}
	}
	return nil, fmt.Errorf("metric %q has no series with %s=%s", name, label, value)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := seriesFor(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := seriesFor(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleSum(), nil
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
