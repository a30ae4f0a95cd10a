package stats

import "strings"
import "sync"

import "github.com/prometheus/client_golang/prometheus"

/// Collector_t exports stats structs as Prometheus metrics. Counter_t fields
/// become counters; Time_t fields become counters of seconds.
type Collector_t struct {
	ns    string
	label string
	src   func() []Source_t

	sync.Mutex
	descs map[string]*prometheus.Desc
}

/// Mkcollector returns a collector whose metrics are named ns_<field> and
/// labelled with label=Source_t.Label.
func Mkcollector(ns, label string, src func() []Source_t) *Collector_t {
	return &Collector_t{ns: ns, label: label, src: src,
		descs: make(map[string]*prometheus.Desc)}
}

func (c *Collector_t) desc(f Field_t) *prometheus.Desc {
	c.Lock()
	defer c.Unlock()
	if d, ok := c.descs[f.Name]; ok {
		return d
	}
	name := strings.ToLower(f.Name) + "_total"
	help := "Count of " + f.Name
	if f.Time {
		name = strings.ToLower(f.Name) + "_seconds_total"
		help = "Seconds spent in " + f.Name
	}
	d := prometheus.NewDesc(prometheus.BuildFQName(c.ns, "", name), help,
		[]string{c.label}, nil)
	c.descs[f.Name] = d
	return d
}

/// Describe implements prometheus.Collector.
func (c *Collector_t) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

/// Collect implements prometheus.Collector.
func (c *Collector_t) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.src() {
		for _, f := range Fields(s.Stats) {
			v := float64(f.Val)
			if f.Time {
				v /= 1e9
			}
			ch <- prometheus.MustNewConstMetric(c.desc(f),
				prometheus.CounterValue, v, s.Label)
		}
	}
}
