package flowmon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NodePath81/simstat/internal/analysis"
)

type statsFixture struct {
	id                             string
	tx, rx                         int
	firstTx, lastTx, firstRx, last string
}

type classFixture struct {
	id       string
	protocol string
	packets  string
}

func buildReport(stats []statsFixture, classes []classFixture) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" ?>` + "\n<FlowMonitor>\n  <FlowStats>\n")
	for _, s := range stats {
		fmt.Fprintf(&b, `    <Flow flowId="%s" timeFirstTxPacket="%s" timeFirstRxPacket="%s" timeLastTxPacket="%s" timeLastRxPacket="%s" delaySum="+0.0ns" jitterSum="+0.0ns" lastDelay="+0.0ns" txBytes="0" rxBytes="0" txPackets="%d" rxPackets="%d" lostPackets="%d" timesForwarded="0">`+"\n    </Flow>\n",
			s.id, s.firstTx, s.firstRx, s.lastTx, s.last, s.tx, s.rx, s.tx-s.rx)
	}
	b.WriteString("  </FlowStats>\n  <Ipv4FlowClassifier>\n")
	for _, c := range classes {
		fmt.Fprintf(&b, `    <Flow flowId="%s" sourceAddress="10.1.1.1" destinationAddress="10.1.1.2" protocol="%s" sourcePort="49153" destinationPort="1024">`+"\n", c.id, c.protocol)
		fmt.Fprintf(&b, `      <Dscp value="0x0" packets="%s" />`+"\n    </Flow>\n", c.packets)
	}
	b.WriteString("  </Ipv4FlowClassifier>\n  <Ipv6FlowClassifier>\n  </Ipv6FlowClassifier>\n  <FlowProbes>\n  </FlowProbes>\n</FlowMonitor>\n")
	return b.String()
}

func twoTCPFlows() ([]statsFixture, []classFixture) {
	stats := []statsFixture{
		{id: "1", tx: 100, rx: 90, firstTx: "+900000000.0ns", lastTx: "+1900000000.0ns", firstRx: "+1000000000.0ns", last: "+2000000000.0ns"},
		{id: "2", tx: 200, rx: 190, firstTx: "+0.0ns", lastTx: "+1900000000.0ns", firstRx: "+100000000.0ns", last: "+2100000000.0ns"},
	}
	classes := []classFixture{
		{id: "1", protocol: "6", packets: "100"},
		{id: "2", protocol: "6", packets: "200"},
	}
	return stats, classes
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("+123456789.0ns")
	require.NoError(t, err)
	assert.InDelta(t, 0.123456789, got, 1e-15)

	got, err = ParseTimestamp("+1.5e+09ns")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, got, 1e-12)

	got, err = ParseTimestamp("-2000000000ns")
	require.NoError(t, err)
	assert.InDelta(t, -2.0, got, 1e-12)

	for _, bad := range []string{"", "ns", "+12.0s", "+abcns", "+NaNns"} {
		_, err := ParseTimestamp(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestSummarizeTwoFlows(t *testing.T) {
	stats, classes := twoTCPFlows()
	sum, err := Summarize(strings.NewReader(buildReport(stats, classes)), "s4.flowmon", DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Flows)
	assert.Equal(t, 2, sum.Candidates)
	assert.Equal(t, 300.0, sum.TxPackets)
	assert.Equal(t, 280.0, sum.RxPackets)
	assert.Equal(t, 20.0, sum.LostPackets)
	assert.InDelta(t, 280.0/300.0, sum.DeliveryRatio, 1e-12)
	assert.InDelta(t, 20.0/300.0, sum.RetransmitRatio, 1e-12)
	// flow 1: 90 pkts over 1s, flow 2: 190 pkts over 2s
	assert.InDelta(t, (90.0*100+95.0*200)/300.0, sum.GoodputPps, 1e-9)
	assert.Equal(t, "s4.flowmon", sum.Source)
}

func TestSummarizeExcludesNonTCP(t *testing.T) {
	stats, classes := twoTCPFlows()
	stats = append(stats, statsFixture{id: "3", tx: 100000, rx: 1, firstTx: "+0.0ns", lastTx: "+5.0ns", firstRx: "+1.0ns", last: "+9.0ns"})
	classes = append(classes, classFixture{id: "3", protocol: "17", packets: "100000"})

	sum, err := Summarize(strings.NewReader(buildReport(stats, classes)), "r", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Flows)
	assert.Equal(t, 300.0, sum.TxPackets)
}

func TestSelectFlowIDs(t *testing.T) {
	cases := []struct {
		name    string
		classes []classFixture
		want    []string
	}{
		{"tcp with packets", []classFixture{{"1", "6", "2"}}, []string{"1"}},
		{"udp never selected", []classFixture{{"1", "17", "500"}}, nil},
		{"one packet excluded", []classFixture{{"1", "6", "1"}}, nil},
		{"zero packets excluded", []classFixture{{"1", "6", "0"}}, nil},
		{"padded protocol", []classFixture{{"1", " 6 ", "5"}, {"2", "06", "5"}}, []string{"1", "2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rep, err := Decode(strings.NewReader(buildReport(nil, tc.classes)), "r")
			require.NoError(t, err)
			got, err := SelectFlowIDs(rep, "r", DefaultOptions())
			require.NoError(t, err)
			assert.Len(t, got, len(tc.want))
			for _, id := range tc.want {
				assert.Contains(t, got, id)
			}
		})
	}
}

func TestSelectFlowIDsCustomProtocol(t *testing.T) {
	rep, err := Decode(strings.NewReader(buildReport(nil, []classFixture{{"1", "6", "9"}, {"2", "17", "9"}})), "r")
	require.NoError(t, err)
	got, err := SelectFlowIDs(rep, "r", Options{Protocol: 17, MinPackets: 5})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"2": {}}, got)
}

func TestZeroDurationExcluded(t *testing.T) {
	stats, classes := twoTCPFlows()
	stats[1].firstRx = stats[1].last
	sum, err := Summarize(strings.NewReader(buildReport(stats, classes)), "r", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Flows)
	assert.Equal(t, 100.0, sum.TxPackets)

	// equal in value although spelled differently
	stats, classes = twoTCPFlows()
	stats[0].firstRx = "+2e+09ns"
	sum, err = Summarize(strings.NewReader(buildReport(stats, classes)), "r", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Flows)
	assert.Equal(t, 200.0, sum.TxPackets)

	stats, classes = twoTCPFlows()
	stats[0].firstTx = stats[0].lastTx
	sum, err = Summarize(strings.NewReader(buildReport(stats, classes)), "r", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Flows)
}

func TestNoQualifyingFlows(t *testing.T) {
	stats, _ := twoTCPFlows()
	classes := []classFixture{{"1", "17", "100"}, {"2", "6", "1"}}
	_, err := Summarize(strings.NewReader(buildReport(stats, classes)), "r", DefaultOptions())
	assert.ErrorIs(t, err, analysis.ErrZeroWeight)
	assert.Contains(t, err.Error(), "no qualifying flows")
}

func TestMalformedAttribute(t *testing.T) {
	stats, classes := twoTCPFlows()
	stats[1].firstRx = "+12.0ms"
	_, err := Summarize(strings.NewReader(buildReport(stats, classes)), "r", DefaultOptions())
	var perr *analysis.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "2", perr.Record)
	assert.Equal(t, "timeFirstRxPacket", perr.Field)

	classes[0].protocol = "tcp"
	_, err = Summarize(strings.NewReader(buildReport(stats, classes)), "r", DefaultOptions())
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "protocol", perr.Field)
}

func TestNegativeDurationRejected(t *testing.T) {
	stats, classes := twoTCPFlows()
	stats[0].firstRx, stats[0].last = stats[0].last, stats[0].firstRx
	_, err := Summarize(strings.NewReader(buildReport(stats, classes)), "r", DefaultOptions())
	var perr *analysis.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "1", perr.Record)
}

func TestMalformedXML(t *testing.T) {
	_, err := Summarize(strings.NewReader("<FlowMonitor><FlowStats>"), "r", DefaultOptions())
	var perr *analysis.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "xml", perr.Field)

	_, err = Summarize(strings.NewReader(""), "r", DefaultOptions())
	require.True(t, errors.As(err, &perr))
}

func TestAggregateConstantRate(t *testing.T) {
	flows := []Flow{
		{ID: "a", TxPackets: 10, RxPackets: 50, FirstRx: 0, LastRx: 1},
		{ID: "b", TxPackets: 1000, RxPackets: 100, FirstRx: 3, LastRx: 5},
	}
	sum, err := Aggregate(flows, nil)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, sum.GoodputPps, 1e-12)
}

func TestAggregateTotalsOutOfRange(t *testing.T) {
	flows := []Flow{
		{ID: "a", TxPackets: 1, RxPackets: 1e308, FirstRx: 0, LastRx: 1e10},
		{ID: "b", TxPackets: 1, RxPackets: 1e308, FirstRx: 0, LastRx: 1e10},
	}
	_, err := Aggregate(flows, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrOverflow)
	assert.Contains(t, err.Error(), "rx packets")

	fast := []Flow{{ID: "c", TxPackets: 10, RxPackets: 1e300, FirstRx: 0, LastRx: 1e-9}}
	_, err = Aggregate(fast, nil)
	assert.ErrorIs(t, err, analysis.ErrOverflow)
	assert.NotErrorIs(t, err, analysis.ErrZeroWeight)
}

func TestSelectFlowIDsRejectsSharedIDs(t *testing.T) {
	tcp := func(id string) ClassifiedFlow {
		return ClassifiedFlow{FlowID: id, Protocol: "6", Dscp: []DscpCount{{Value: "0x0", Packets: "10"}}}
	}
	rep := &Report{
		IPv4: []ClassifiedFlow{tcp("1"), tcp("2")},
		IPv6: []ClassifiedFlow{tcp("3")},
	}
	selected, err := SelectFlowIDs(rep, "r", DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, selected, 3)

	rep.IPv6 = append(rep.IPv6, tcp("2"))
	_, err = SelectFlowIDs(rep, "r", DefaultOptions())
	var perr *analysis.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "2", perr.Record)
	assert.Equal(t, "flowId", perr.Field)
	assert.Contains(t, err.Error(), "Ipv4FlowClassifier and Ipv6FlowClassifier")
}

func TestSummarizeFile(t *testing.T) {
	stats, classes := twoTCPFlows()
	path := filepath.Join(t.TempDir(), "s4.flowmon")
	require.NoError(t, os.WriteFile(path, []byte(buildReport(stats, classes)), 0o644))

	sum, err := SummarizeFile(path, DefaultOptions())
	require.NoError(t, err)
	assert.InDelta(t, 0.93333333, sum.DeliveryRatio, 1e-6)

	_, err = SummarizeFile(filepath.Join(t.TempDir(), "nope"), DefaultOptions())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
