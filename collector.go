package threadmap

import "github.com/prometheus/client_golang/prometheus"

// Collector exports a Store as two Prometheus gauges: the sum of every
// entry's value and the number of entries. It is the usual way to publish
// per-goroutine counters kept in a ThreadMap or ThreadMapX.
//
// Each scrape folds the store, so with ThreadMap it briefly takes the write
// lock. A poisoned store is reported as an invalid metric.
type Collector[V any] struct {
	store   Store[V]
	value   func(v V) float64
	sum     *prometheus.Desc
	entries *prometheus.Desc
}

// NewCollector creates a Collector for s. value converts an entry to the
// number that is summed. The gauges are named after opts and opts with an
// "_entries" suffix. NewCollector panics if s or value is nil.
func NewCollector[V any](s Store[V], opts prometheus.Opts, value func(v V) float64) *Collector[V] {
	if s == nil || value == nil {
		panic("threadmap: NewCollector: nil store or value function")
	}
	name := prometheus.BuildFQName(opts.Namespace, opts.Subsystem, opts.Name)
	return &Collector[V]{
		store: s,
		value: value,
		sum:   prometheus.NewDesc(name, opts.Help, nil, opts.ConstLabels),
		entries: prometheus.NewDesc(name+"_entries",
			"Number of goroutines with an entry in "+name+".", nil, opts.ConstLabels),
	}
}

type collectTotal struct {
	sum float64
	n   int
}

// Describe implements prometheus.Collector.
func (c *Collector[V]) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sum
	ch <- c.entries
}

// Collect implements prometheus.Collector.
func (c *Collector[V]) Collect(ch chan<- prometheus.Metric) {
	total, err := FoldValues(c.store, collectTotal{}, func(t collectTotal, v V) collectTotal {
		return collectTotal{sum: t.sum + c.value(v), n: t.n + 1}
	})
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.sum, err)
		ch <- prometheus.NewInvalidMetric(c.entries, err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.sum, prometheus.GaugeValue, total.sum)
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(total.n))
}
