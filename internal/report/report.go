// Package report renders analysis results as text, JSON or a Prometheus
// textfile.
package report

import (
	"time"

	"github.com/NodePath81/simstat/internal/cwnd"
	"github.com/NodePath81/simstat/internal/flowmon"
	"github.com/NodePath81/simstat/internal/meanerr"
)

// Report groups the results of one simstat invocation.
type Report struct {
	RunID       string         `json:"run_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Cwnd        *CwndReport    `json:"cwnd,omitempty"`
	Flowmon     *FlowmonReport `json:"flowmon,omitempty"`
	MeanErr     *MeanErrReport `json:"meanerr,omitempty"`
}

// CwndReport is the congestion-window summary.
type CwndReport struct {
	Source       string  `json:"source"`
	Weight       int     `json:"weight"`
	MeanBytes    float64 `json:"mean_bytes"`
	SegmentSize  int     `json:"segment_size,omitempty"`
	MeanSegments float64 `json:"mean_segments,omitempty"`
}

// FlowmonReport is the flow-monitor summary. Ratios are in [0,1].
type FlowmonReport struct {
	Source           string  `json:"source"`
	Candidates       int     `json:"candidate_flows"`
	Flows            int     `json:"flows"`
	Weight           float64 `json:"packet_weight"`
	RxPackets        float64 `json:"rx_packets"`
	LostPackets      float64 `json:"lost_packets"`
	GoodputPps       float64 `json:"goodput_pps"`
	DeliveryRatio    float64 `json:"delivery_ratio"`
	RetransmitRatio  float64 `json:"retransmit_ratio"`
	MeanDelaySeconds float64 `json:"mean_delay_seconds"`
}

// MeanErrReport is the RTT mean-error summary.
type MeanErrReport struct {
	Source  string  `json:"source"`
	Mean    float64 `json:"mean_error"`
	Weight  int64   `json:"weight"`
	Entries int     `json:"entries"`
	Kept    int     `json:"kept"`
}

// New starts an empty report for runID.
func New(runID string, now time.Time) *Report {
	return &Report{RunID: runID, GeneratedAt: now.UTC()}
}

func (r *Report) SetCwnd(res cwnd.Result) {
	r.Cwnd = &CwndReport{
		Source:       res.Source,
		Weight:       res.Count,
		MeanBytes:    res.MeanBytes,
		SegmentSize:  res.SegmentSize,
		MeanSegments: res.MeanSegments,
	}
}

func (r *Report) SetFlowmon(sum flowmon.Summary) {
	r.Flowmon = &FlowmonReport{
		Source:           sum.Source,
		Candidates:       sum.Candidates,
		Flows:            sum.Flows,
		Weight:           sum.TxPackets,
		RxPackets:        sum.RxPackets,
		LostPackets:      sum.LostPackets,
		GoodputPps:       sum.GoodputPps,
		DeliveryRatio:    sum.DeliveryRatio,
		RetransmitRatio:  sum.RetransmitRatio,
		MeanDelaySeconds: sum.MeanDelay,
	}
}

func (r *Report) SetMeanErr(res meanerr.Result) {
	r.MeanErr = &MeanErrReport{
		Source:  res.Source,
		Mean:    res.Mean,
		Weight:  res.Weight,
		Entries: res.Entries,
		Kept:    res.Kept,
	}
}

// Empty reports whether no analysis result has been recorded.
func (r *Report) Empty() bool {
	return r.Cwnd == nil && r.Flowmon == nil && r.MeanErr == nil
}
