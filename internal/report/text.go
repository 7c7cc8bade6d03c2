package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/NodePath81/simstat/internal/util"
)

// WriteText renders r for a terminal.
func WriteText(w io.Writer, r *Report) error {
	var b strings.Builder
	first := true
	section := func(title, source string) {
		if !first {
			b.WriteString("\n")
		}
		first = false
		fmt.Fprintf(&b, "=== %s (%s) ===\n", title, source)
	}

	if c := r.Cwnd; c != nil {
		section("Congestion Window", c.Source)
		fmt.Fprintf(&b, "  Weight:            %d samples\n", c.Weight)
		fmt.Fprintf(&b, "  Average cwnd:      %g bytes (%s)\n", c.MeanBytes, util.FormatBytes(c.MeanBytes))
		if c.SegmentSize > 0 {
			fmt.Fprintf(&b, "  Average cwnd:      %.2f segments of %d B\n", c.MeanSegments, c.SegmentSize)
		}
	}

	if f := r.Flowmon; f != nil {
		section("Flow Monitor", f.Source)
		fmt.Fprintf(&b, "  Flows:             %d of %d candidate flows\n", f.Flows, f.Candidates)
		fmt.Fprintf(&b, "  Packet weight:     %g\n", f.Weight)
		fmt.Fprintf(&b, "  Goodput:           %g p/s (%s)\n", f.GoodputPps, util.FormatPacketRate(f.GoodputPps))
		fmt.Fprintf(&b, "  Delivery ratio:    %g (%s)\n", f.DeliveryRatio, util.FormatPercent(f.DeliveryRatio))
		fmt.Fprintf(&b, "  Retransmit ratio:  %g (%s)\n", f.RetransmitRatio, util.FormatPercent(f.RetransmitRatio))
		fmt.Fprintf(&b, "  Lost packets:      %g\n", f.LostPackets)
		if f.MeanDelaySeconds > 0 {
			fmt.Fprintf(&b, "  Mean delay:        %s\n", util.FormatSeconds(f.MeanDelaySeconds))
		}
	}

	if m := r.MeanErr; m != nil {
		section("RTT Mean Error", m.Source)
		fmt.Fprintf(&b, "  Average error:     %g\n", m.Mean)
		fmt.Fprintf(&b, "  Weight:            %d\n", m.Weight)
		fmt.Fprintf(&b, "  Entries:           %d kept of %d\n", m.Kept, m.Entries)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON renders r as one indented JSON document.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
