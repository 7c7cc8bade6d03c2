// Package flowmon summarizes ns-3 FlowMonitor reports.
//
// Only TCP flows that carried more than one packet and that have a
// non-zero transmit and receive span are considered. Goodput, delivery
// ratio and retransmission ratio are weighted by each flow's txPackets.
package flowmon

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/NodePath81/simstat/internal/analysis"
)

const (
	// ProtocolTCP is the IANA protocol number for TCP.
	ProtocolTCP = 6
	// DefaultMinPackets is the classifier packet count a flow must exceed.
	DefaultMinPackets = 1
)

var (
	errDurationNegative = errors.New("last rx time precedes first rx time")
	errAmbiguousFlowID  = errors.New("flow id is not unique")
)

// Options selects which flows take part in the summary.
type Options struct {
	// Protocol is the classifier protocol number to keep.
	Protocol int
	// MinPackets is the classifier packet count a flow must exceed.
	MinPackets int64
	// Logger receives one debug line per kept flow. Nil disables it.
	Logger *slog.Logger
}

// DefaultOptions keeps TCP flows with more than one packet.
func DefaultOptions() Options {
	return Options{Protocol: ProtocolTCP, MinPackets: DefaultMinPackets}
}

// Flow is a qualifying flow with its attributes converted to numbers.
// Times are in seconds.
type Flow struct {
	ID          string
	TxPackets   float64
	RxPackets   float64
	LostPackets float64
	FirstTx     float64
	LastTx      float64
	FirstRx     float64
	LastRx      float64
	DelaySum    float64
}

// RxDuration is the active receive span in seconds.
func (f Flow) RxDuration() float64 {
	return f.LastRx - f.FirstRx
}

// RxRate is the receive rate in packets per second.
func (f Flow) RxRate() float64 {
	return f.RxPackets / f.RxDuration()
}

// Summary is the txPackets-weighted summary of the qualifying flows.
type Summary struct {
	// Source is the report the flows were read from.
	Source string
	// Candidates is the number of classifier flows matching protocol and packet count.
	Candidates int
	// Flows is the number of flows that passed every filter.
	Flows int
	// TxPackets is the total weight.
	TxPackets float64
	// RxPackets is the total number of received packets.
	RxPackets float64
	// LostPackets is the total reported by FlowMonitor.
	LostPackets float64
	// GoodputPps is the weighted mean receive rate in packets per second.
	GoodputPps float64
	// DeliveryRatio is received / transmitted packets.
	DeliveryRatio float64
	// RetransmitRatio is (transmitted - received) / transmitted packets.
	RetransmitRatio float64
	// MeanDelay is delaySum / rxPackets in seconds (0 when not reported).
	MeanDelay float64
}

// SummarizeFile opens path and summarizes the report it holds.
func SummarizeFile(path string, opts Options) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()
	return Summarize(f, path, opts)
}

// Summarize decodes a report from r and summarizes it.
func Summarize(r io.Reader, source string, opts Options) (Summary, error) {
	rep, err := Decode(r, source)
	if err != nil {
		return Summary{}, err
	}
	selected, err := SelectFlowIDs(rep, source, opts)
	if err != nil {
		return Summary{}, err
	}
	flows, err := QualifyingFlows(rep, source, selected)
	if err != nil {
		return Summary{}, err
	}
	sum, err := Aggregate(flows, opts.Logger)
	if err != nil {
		return Summary{}, err
	}
	sum.Source = source
	sum.Candidates = len(selected)
	return sum, nil
}

// SelectFlowIDs returns the classifier flow ids whose protocol equals
// opts.Protocol and whose first Dscp packet count exceeds opts.MinPackets.
//
// FlowStats records carry only a flow id, so an id listed twice, which
// happens when the IPv4 and IPv6 classifiers number their flows
// independently, cannot be attributed and is reported as a ParseError.
func SelectFlowIDs(rep *Report, source string, opts Options) (map[string]struct{}, error) {
	selected := make(map[string]struct{})
	seen := make(map[string]string, len(rep.IPv4)+len(rep.IPv6))
	sections := []struct {
		name  string
		flows []ClassifiedFlow
	}{
		{"Ipv4FlowClassifier", rep.IPv4},
		{"Ipv6FlowClassifier", rep.IPv6},
	}
	for _, sec := range sections {
		for _, cf := range sec.flows {
			if prev, ok := seen[cf.FlowID]; ok {
				return nil, &analysis.ParseError{Source: source, Record: cf.FlowID, Field: "flowId", Text: cf.FlowID,
					Err: fmt.Errorf("%w: listed in %s and %s", errAmbiguousFlowID, prev, sec.name)}
			}
			seen[cf.FlowID] = sec.name

			proto, err := strconv.Atoi(strings.TrimSpace(cf.Protocol))
			if err != nil {
				return nil, &analysis.ParseError{Source: source, Record: cf.FlowID, Field: "protocol", Text: cf.Protocol, Err: err}
			}
			if proto != opts.Protocol || len(cf.Dscp) == 0 {
				continue
			}
			packets, err := strconv.ParseInt(strings.TrimSpace(cf.Dscp[0].Packets), 10, 64)
			if err != nil {
				return nil, &analysis.ParseError{Source: source, Record: cf.FlowID, Field: "packets", Text: cf.Dscp[0].Packets, Err: err}
			}
			if packets > opts.MinPackets {
				selected[cf.FlowID] = struct{}{}
			}
		}
	}
	return selected, nil
}

// QualifyingFlows converts the FlowStats records whose id is selected and
// whose receive and transmit spans are non-zero.
func QualifyingFlows(rep *Report, source string, selected map[string]struct{}) ([]Flow, error) {
	var flows []Flow
	for _, st := range rep.Stats {
		if _, ok := selected[st.FlowID]; !ok {
			continue
		}
		if st.TimeFirstRxPacket == st.TimeLastRxPacket || st.TimeFirstTxPacket == st.TimeLastTxPacket {
			continue
		}
		flow, err := convertStats(st, source)
		if err != nil {
			return nil, err
		}
		// "+1ns" and "+1.0ns" differ as text but not as time.
		if flow.FirstRx == flow.LastRx || flow.FirstTx == flow.LastTx {
			continue
		}
		if flow.RxDuration() < 0 {
			return nil, &analysis.ParseError{Source: source, Record: st.FlowID, Field: "timeLastRxPacket", Text: st.TimeLastRxPacket, Err: errDurationNegative}
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

// Aggregate computes the txPackets-weighted summary of flows. It returns
// an error wrapping analysis.ErrZeroWeight when the flows carry no weight
// and one wrapping analysis.ErrOverflow when a total leaves the float64
// range.
func Aggregate(flows []Flow, logger *slog.Logger) (Summary, error) {
	var goodput analysis.WeightedMean
	var rxSum, retransSum, lostSum, delaySum float64
	for _, f := range flows {
		rate := f.RxRate()
		if err := goodput.Add(rate, f.TxPackets); err != nil {
			return Summary{}, fmt.Errorf("flow %s: %w", f.ID, err)
		}
		rxSum += f.RxPackets
		retransSum += f.TxPackets - f.RxPackets
		lostSum += f.LostPackets
		delaySum += f.DelaySum
		if logger != nil {
			logger.Debug("flow kept", "flow_id", f.ID, "tx_packets", f.TxPackets, "rx_packets", f.RxPackets, "rx_rate_pps", rate)
		}
	}

	weight := goodput.Weight()
	gp, err := goodput.Mean()
	switch {
	case errors.Is(err, analysis.ErrZeroWeight):
		return Summary{}, analysis.ZeroWeight("no qualifying flows")
	case err != nil:
		return Summary{}, fmt.Errorf("goodput: %w", err)
	}
	totals := []struct {
		name  string
		value float64
	}{
		{"rx packets", rxSum},
		{"retransmitted packets", retransSum},
		{"lost packets", lostSum},
		{"delay sum", delaySum},
	}
	for _, tot := range totals {
		if err := analysis.CheckFinite(tot.name, tot.value); err != nil {
			return Summary{}, err
		}
	}
	delivery, err := analysis.Ratio(rxSum, weight)
	if err != nil {
		return Summary{}, fmt.Errorf("delivery ratio: %w", err)
	}
	retrans, err := analysis.Ratio(retransSum, weight)
	if err != nil {
		return Summary{}, fmt.Errorf("retransmit ratio: %w", err)
	}
	sum := Summary{
		Flows:           len(flows),
		TxPackets:       weight,
		RxPackets:       rxSum,
		LostPackets:     lostSum,
		GoodputPps:      gp,
		DeliveryRatio:   delivery,
		RetransmitRatio: retrans,
	}
	meanDelay, err := analysis.Ratio(delaySum, rxSum)
	switch {
	case err == nil:
		sum.MeanDelay = meanDelay
	case !errors.Is(err, analysis.ErrZeroWeight):
		return Summary{}, fmt.Errorf("mean delay: %w", err)
	}
	return sum, nil
}

func convertStats(st FlowStats, source string) (Flow, error) {
	flow := Flow{ID: st.FlowID}
	counts := []struct {
		field string
		raw   string
		dst   *float64
		opt   bool
	}{
		{"txPackets", st.TxPackets, &flow.TxPackets, false},
		{"rxPackets", st.RxPackets, &flow.RxPackets, false},
		{"lostPackets", st.LostPackets, &flow.LostPackets, true},
	}
	for _, c := range counts {
		if c.opt && strings.TrimSpace(c.raw) == "" {
			continue
		}
		v, err := parseCount(c.raw)
		if err != nil {
			return Flow{}, &analysis.ParseError{Source: source, Record: st.FlowID, Field: c.field, Text: c.raw, Err: err}
		}
		*c.dst = v
	}

	times := []struct {
		field string
		raw   string
		dst   *float64
		opt   bool
	}{
		{"timeFirstTxPacket", st.TimeFirstTxPacket, &flow.FirstTx, false},
		{"timeLastTxPacket", st.TimeLastTxPacket, &flow.LastTx, false},
		{"timeFirstRxPacket", st.TimeFirstRxPacket, &flow.FirstRx, false},
		{"timeLastRxPacket", st.TimeLastRxPacket, &flow.LastRx, false},
		{"delaySum", st.DelaySum, &flow.DelaySum, true},
	}
	for _, tm := range times {
		if tm.opt && strings.TrimSpace(tm.raw) == "" {
			continue
		}
		v, err := ParseTimestamp(tm.raw)
		if err != nil {
			return Flow{}, &analysis.ParseError{Source: source, Record: st.FlowID, Field: tm.field, Text: tm.raw, Err: err}
		}
		*tm.dst = v
	}
	return flow, nil
}
