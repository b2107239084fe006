// Package metrics exports published engine snapshots as Prometheus gauges.
package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/mh-dx/fpv-linkstats/internal/linkstats/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linkstats"

// Collector mirrors the latest snapshot into gauges.
type Collector struct {
	registry *prometheus.Registry

	// Interfaces
	interfaceRxBytes      *prometheus.GaugeVec
	interfaceRxRate       *prometheus.GaugeVec
	interfaceTxRate       *prometheus.GaugeVec
	interfaceBad          *prometheus.GaugeVec
	interfaceLost         *prometheus.GaugeVec
	interfaceQuality      *prometheus.GaugeVec
	interfaceRelative     *prometheus.GaugeVec
	interfaceSignal       *prometheus.GaugeVec
	interfaceFrequencyKhz *prometheus.GaugeVec

	// Links
	linkRxRate      *prometheus.GaugeVec
	linkTxRate      *prometheus.GaugeVec
	linkRTT         *prometheus.GaugeVec
	linkRTTStdDev   *prometheus.GaugeVec
	linkRTTQuantile *prometheus.GaugeVec
	linkMinRTT      *prometheus.GaugeVec
	linkBestTxRadio *prometheus.GaugeVec

	// Streams
	streamRxPackets  *prometheus.GaugeVec
	streamRxRate     *prometheus.GaugeVec
	streamDuplicates *prometheus.GaugeVec
	streamLost       *prometheus.GaugeVec
	streamRecovered  *prometheus.GaugeVec

	commandRTT      prometheus.Gauge
	trackedPeers    prometheus.Gauge
	snapshotVersion prometheus.Gauge

	mu          sync.Mutex
	lastVersion uint64
}

// NewCollector registers every gauge on registry. A nil registry gets a fresh one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)
	gaugeVec := func(name string, help string, label string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{label})
	}

	c := &Collector{registry: registry}

	c.interfaceRxBytes = gaugeVec("interface_rx_bytes", "Bytes received on a radio interface", "interface")
	c.interfaceRxRate = gaugeVec("interface_rx_bytes_per_second", "Receive rate of a radio interface", "interface")
	c.interfaceTxRate = gaugeVec("interface_tx_bytes_per_second", "Transmit rate of a radio interface", "interface")
	c.interfaceBad = gaugeVec("interface_bad_packets", "Packets with a failed CRC or header on a radio interface", "interface")
	c.interfaceLost = gaugeVec("interface_lost_packets", "Sequence gaps counted on a radio interface", "interface")
	c.interfaceQuality = gaugeVec("interface_quality_percent", "Recent reception quality of a radio interface", "interface")
	c.interfaceRelative = gaugeVec("interface_relative_quality", "Ranking score used to pick the transmit interface", "interface")
	c.interfaceSignal = gaugeVec("interface_signal_dbm", "Last signal reading of a radio interface", "interface")
	c.interfaceFrequencyKhz = gaugeVec("interface_frequency_khz", "Frequency a radio interface is tuned to", "interface")

	c.linkRxRate = gaugeVec("link_rx_bytes_per_second", "Deduplicated receive rate of a radio link", "link")
	c.linkTxRate = gaugeVec("link_tx_bytes_per_second", "Transmit rate of a radio link", "link")
	c.linkRTT = gaugeVec("link_rtt_milliseconds", "Mean round trip of a radio link", "link")
	c.linkMinRTT = gaugeVec("link_min_rtt_milliseconds", "Lowest mean round trip of a radio link", "link")
	c.linkRTTStdDev = gaugeVec("link_rtt_stddev_milliseconds", "Round trip spread over the sample window of a radio link", "link")
	c.linkRTTQuantile = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "link_rtt_quantile_milliseconds",
		Help:      "Round trip quantiles over the sample window of a radio link",
	}, []string{"link", "quantile"})
	c.linkBestTxRadio = gaugeVec("link_best_tx_interface", "Interface with the best relative quality on a radio link, -1 when none", "link")

	c.streamRxPackets = gaugeVec("stream_rx_packets", "Unique packets received on a stream", "stream")
	c.streamRxRate = gaugeVec("stream_rx_bytes_per_second", "Smoothed receive rate of a stream", "stream")
	c.streamDuplicates = gaugeVec("stream_duplicate_packets", "Duplicate packets dropped on a stream", "stream")
	c.streamLost = gaugeVec("stream_lost_packets", "Sequence gaps counted on a stream", "stream")
	c.streamRecovered = gaugeVec("stream_recovered_packets", "Skipped sequences that arrived late on a stream", "stream")

	c.commandRTT = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "command_rtt_milliseconds",
		Help:      "Mean command round trip",
	})
	c.trackedPeers = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_peers",
		Help:      "Peers holding a dedup history slot",
	})
	c.snapshotVersion = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_version",
		Help:      "Version of the exported snapshot",
	})
	return c
}

// Update copies a snapshot into the gauges. Versions already exported are skipped.
func (c *Collector) Update(snapshot *engine.Snapshot) bool {
	if snapshot == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if snapshot.Version <= c.lastVersion {
		return false
	}
	c.lastVersion = snapshot.Version

	for _, radio := range snapshot.Interfaces {
		label := strconv.Itoa(radio.Index)
		c.interfaceRxBytes.WithLabelValues(label).Set(float64(radio.RxBytes))
		c.interfaceRxRate.WithLabelValues(label).Set(float64(radio.RxBytesPerSec))
		c.interfaceTxRate.WithLabelValues(label).Set(float64(radio.TxBytesPerSec))
		c.interfaceBad.WithLabelValues(label).Set(float64(radio.BadPackets))
		c.interfaceLost.WithLabelValues(label).Set(float64(radio.LostPackets))
		c.interfaceQuality.WithLabelValues(label).Set(float64(radio.QualityPercent))
		c.interfaceRelative.WithLabelValues(label).Set(float64(radio.RelativeQuality))
		c.interfaceSignal.WithLabelValues(label).Set(float64(radio.LastSignalDBM))
		c.interfaceFrequencyKhz.WithLabelValues(label).Set(float64(radio.FrequencyKhz))
	}
	for _, link := range snapshot.Links {
		label := strconv.Itoa(link.Index)
		c.linkRxRate.WithLabelValues(label).Set(float64(link.RxBytesPerSec))
		c.linkTxRate.WithLabelValues(label).Set(float64(link.TxBytesPerSec))
		c.linkRTT.WithLabelValues(label).Set(link.RTTMs)
		c.linkBestTxRadio.WithLabelValues(label).Set(float64(link.BestTxInterface))
		if link.HasRTT {
			c.linkMinRTT.WithLabelValues(label).Set(link.MinRTTMs)
			c.linkRTTStdDev.WithLabelValues(label).Set(link.RTTStdDevMs)
			c.linkRTTQuantile.WithLabelValues(label, "0.5").Set(link.RTTP50Ms)
			c.linkRTTQuantile.WithLabelValues(label, "0.95").Set(link.RTTP95Ms)
		}
	}
	for _, stream := range snapshot.Streams {
		if stream.RxPackets == 0 && stream.TxPackets == 0 {
			continue
		}
		label := strconv.Itoa(stream.Index)
		c.streamRxPackets.WithLabelValues(label).Set(float64(stream.RxPackets))
		c.streamRxRate.WithLabelValues(label).Set(float64(stream.RxBytesPerSec))
		c.streamDuplicates.WithLabelValues(label).Set(float64(stream.DuplicatePackets))
		c.streamLost.WithLabelValues(label).Set(float64(stream.LostPackets))
		c.streamRecovered.WithLabelValues(label).Set(float64(stream.RecoveredPackets))
	}
	c.commandRTT.Set(snapshot.CommandRTTMs)
	c.trackedPeers.Set(float64(len(snapshot.Peers)))
	c.snapshotVersion.Set(float64(snapshot.Version))
	return true
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
