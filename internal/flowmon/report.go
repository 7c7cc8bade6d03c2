package flowmon

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/NodePath81/simstat/internal/analysis"
)

// Report mirrors the parts of an ns-3 FlowMonitor XML file that are read.
// Attribute values are kept as text and converted on demand so that a
// malformed value can be reported against its flow and attribute.
type Report struct {
	Stats []FlowStats      `xml:"FlowStats>Flow"`
	IPv4  []ClassifiedFlow `xml:"Ipv4FlowClassifier>Flow"`
	IPv6  []ClassifiedFlow `xml:"Ipv6FlowClassifier>Flow"`
}

// FlowStats is one FlowStats/Flow element.
type FlowStats struct {
	FlowID            string `xml:"flowId,attr"`
	TimeFirstTxPacket string `xml:"timeFirstTxPacket,attr"`
	TimeFirstRxPacket string `xml:"timeFirstRxPacket,attr"`
	TimeLastTxPacket  string `xml:"timeLastTxPacket,attr"`
	TimeLastRxPacket  string `xml:"timeLastRxPacket,attr"`
	DelaySum          string `xml:"delaySum,attr"`
	TxPackets         string `xml:"txPackets,attr"`
	RxPackets         string `xml:"rxPackets,attr"`
	LostPackets       string `xml:"lostPackets,attr"`
}

// ClassifiedFlow is one classifier Flow element (the 5-tuple of a flow).
type ClassifiedFlow struct {
	FlowID             string      `xml:"flowId,attr"`
	SourceAddress      string      `xml:"sourceAddress,attr"`
	DestinationAddress string      `xml:"destinationAddress,attr"`
	Protocol           string      `xml:"protocol,attr"`
	SourcePort         string      `xml:"sourcePort,attr"`
	DestinationPort    string      `xml:"destinationPort,attr"`
	Dscp               []DscpCount `xml:"Dscp"`
}

// DscpCount is the per-DSCP packet count nested in a classifier flow.
type DscpCount struct {
	Value   string `xml:"value,attr"`
	Packets string `xml:"packets,attr"`
}

var (
	errTimeUnit  = errors.New("timestamp must end with ns")
	errNegative  = errors.New("value must be >= 0")
	errNotFinite = errors.New("value is not finite")
)

// Decode reads a FlowMonitor document from r.
func Decode(r io.Reader, source string) (*Report, error) {
	var rep Report
	if err := xml.NewDecoder(r).Decode(&rep); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &analysis.ParseError{Source: source, Field: "xml", Err: io.ErrUnexpectedEOF}
		}
		var syntaxErr *xml.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, &analysis.ParseError{Source: source, Line: syntaxErr.Line, Field: "xml", Err: err}
		}
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	return &rep, nil
}

// ParseTimestamp converts a FlowMonitor time such as "+123456789.0ns" into
// seconds. The leading sign and the trailing "ns" unit are stripped before
// the nanosecond value is divided by 1e9.
func ParseTimestamp(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if len(s) < 3 || !strings.HasSuffix(s, "ns") {
		return 0, errTimeUnit
	}
	s = s[:len(s)-2]
	sign := 1.0
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		sign = -1
		s = s[1:]
	}
	ns, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(ns) || math.IsInf(ns, 0) {
		return 0, errNotFinite
	}
	return sign * ns / 1e9, nil
}

func parseCount(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	if v < 0 {
		return 0, errNegative
	}
	return v, nil
}
