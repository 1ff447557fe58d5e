// Package metrics exposes a prometheus.Collector over the per-path
// congestion and RTT state of a set of registered associations, the way
// runZeroInc's pkg/exporter collects live tcpinfo per registered
// net.Conn: nothing here feeds back into the recovery engine, it only
// reads Association.PathStats() on each scrape.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/userspace-sctp/sctp/sctp"
)

type assocEntry struct {
	labels []string
}

type gaugeSpec struct {
	desc  *prometheus.Desc
	value func(sctp.PathStats) float64
}

// AssociationCollector aggregates PathStats across every registered
// association into prometheus gauges, labeled by the caller-supplied
// connectionLabels plus an association id and path index.
type AssociationCollector struct {
	mu     sync.Mutex
	assocs map[*sctp.Association]assocEntry
	gauges []gaugeSpec
}

// NewAssociationCollector builds a collector. connectionLabels names the
// label values a caller will supply per-association via Add; constLabels
// are fixed for the whole process (host, region, ...).
func NewAssociationCollector(connectionLabels []string, constLabels prometheus.Labels) *AssociationCollector {
	labelNames := append(append([]string{}, connectionLabels...), "assoc_id", "path")

	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("sctp_"+name, help, labelNames, constLabels)
	}

	c := &AssociationCollector{
		assocs: make(map[*sctp.Association]assocEntry),
	}
	c.gauges = []gaugeSpec{
		{desc("cwnd_bytes", "Congestion window in bytes."), func(s sctp.PathStats) float64 { return float64(s.Cwnd) }},
		{desc("ssthresh_bytes", "Slow-start threshold in bytes."), func(s sctp.PathStats) float64 { return float64(s.Ssthresh) }},
		{desc("srtt_seconds", "Smoothed round-trip time."), func(s sctp.PathStats) float64 { return s.SRTT.Seconds() }},
		{desc("rttvar_seconds", "Round-trip time variance."), func(s sctp.PathStats) float64 { return s.RTTVar.Seconds() }},
		{desc("rto_seconds", "Current retransmission timeout."), func(s sctp.PathStats) float64 { return s.RTO.Seconds() }},
		{desc("bytes_in_flight", "Unacknowledged bytes outstanding."), func(s sctp.PathStats) float64 { return float64(s.BytesInFlight) }},
		{desc("retrans_count", "Consecutive retransmission count."), func(s sctp.PathStats) float64 { return float64(s.RetransCount) }},
		{desc("fast_recovery", "1 if the path is in fast recovery."), func(s sctp.PathStats) float64 {
			if s.InFastRecovery {
				return 1
			}
			return 0
		}},
	}
	return c
}

func (c *AssociationCollector) Describe(descs chan<- *prometheus.Desc) {
	for _, g := range c.gauges {
		descs <- g.desc
	}
}

func (c *AssociationCollector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for a, entry := range c.assocs {
		for i, ps := range a.PathStats() {
			labels := append(append([]string{}, entry.labels...), a.ID(), strconv.Itoa(i))
			for _, g := range c.gauges {
				metrics <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, g.value(ps), labels...)
			}
		}
	}
}

// Add registers an association for scraping, with label values matching
// the connectionLabels passed to NewAssociationCollector.
func (c *AssociationCollector) Add(a *sctp.Association, labels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assocs[a] = assocEntry{labels: labels}
}

// Remove stops scraping an association, e.g. once it has reached Closed.
func (c *AssociationCollector) Remove(a *sctp.Association) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.assocs, a)
}
