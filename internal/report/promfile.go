package report

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "simstat"

// Registry builds a registry holding one gauge per reported value, labelled
// with the input file. It is meant for WriteTextfile, not for serving.
func Registry(r *Report) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_info",
		Help:      "Identifies the simstat run that produced this file",
	}, []string{"run_id"})
	info.WithLabelValues(labelValue(r.RunID)).Set(1)
	generated := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "generated_timestamp_seconds",
		Help:      "Unix time the report was generated",
	})
	generated.Set(float64(r.GeneratedAt.UnixNano()) / 1e9)
	reg.MustRegister(info, generated)

	gauge := func(subsystem, name, help, source string, value float64) {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, []string{"source"})
		g.WithLabelValues(labelValue(source)).Set(value)
		reg.MustRegister(g)
	}

	if c := r.Cwnd; c != nil {
		gauge("cwnd", "samples", "Number of cwnd samples averaged", c.Source, float64(c.Weight))
		gauge("cwnd", "mean_bytes", "Mean congestion window in bytes", c.Source, c.MeanBytes)
		if c.SegmentSize > 0 {
			gauge("cwnd", "mean_segments", "Mean congestion window in segments", c.Source, c.MeanSegments)
		}
	}
	if f := r.Flowmon; f != nil {
		gauge("flowmon", "flows", "Flows that passed every filter", f.Source, float64(f.Flows))
		gauge("flowmon", "tx_packets", "Transmitted packets of the qualifying flows (total weight)", f.Source, f.Weight)
		gauge("flowmon", "rx_packets", "Received packets of the qualifying flows", f.Source, f.RxPackets)
		gauge("flowmon", "goodput_packets_per_second", "txPackets-weighted mean receive rate", f.Source, f.GoodputPps)
		gauge("flowmon", "delivery_ratio", "Received over transmitted packets", f.Source, f.DeliveryRatio)
		gauge("flowmon", "retransmit_ratio", "Transmitted minus received over transmitted packets", f.Source, f.RetransmitRatio)
		gauge("flowmon", "mean_delay_seconds", "delaySum over rxPackets", f.Source, f.MeanDelaySeconds)
	}
	if m := r.MeanErr; m != nil {
		gauge("meanerr", "mean", "Weighted mean RTT estimation error", m.Source, m.Mean)
		gauge("meanerr", "weight", "Sum of the kept weights", m.Source, float64(m.Weight))
	}
	return reg
}

// labelValue makes s usable as a label value. Paths on Linux may hold
// bytes that are not UTF-8, which client_golang refuses with a panic.
func labelValue(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// WriteTextfile writes r in the Prometheus text format to path, replacing
// the file atomically, for the node_exporter textfile collector.
func WriteTextfile(path string, r *Report) error {
	return prometheus.WriteToTextfile(path, Registry(r))
}
