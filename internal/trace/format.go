package trace

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Format selects the stream output encoding.
type Format uint8

const (
	// FormatAuto picks a format from the output path extension.
	FormatAuto Format = iota
	// FormatText is a human-readable line per event.
	FormatText
	// FormatNDJSON is one JSON object per line.
	FormatNDJSON
)

// String returns the string representation of Format.
func (f Format) String() string {
	switch f {
	case FormatAuto:
		return "auto"
	case FormatText:
		return "text"
	case FormatNDJSON:
		return "ndjson"
	default:
		return "unknown"
	}
}

// ParseFormat converts a string to Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "auto":
		return FormatAuto, nil
	case "text":
		return FormatText, nil
	case "ndjson":
		return FormatNDJSON, nil
	default:
		return FormatAuto, fmt.Errorf("invalid trace format: %q (expected: auto|text|ndjson)", s)
	}
}

type jsonEvent struct {
	Time   string `json:"time"`
	Seq    uint64 `json:"seq"`
	Kind   string `json:"kind"`
	Scope  string `json:"scope"`
	SpanID uint64 `json:"span,omitempty"`
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
	Addr   string `json:"addr,omitempty"`
}

// FormatEvent renders one event, newline-terminated.
func FormatEvent(ev *Event, format Format) []byte {
	switch format {
	case FormatNDJSON:
		je := jsonEvent{
			Time:   ev.Time.Format(time.RFC3339Nano),
			Seq:    ev.Seq,
			Kind:   ev.Kind.String(),
			Scope:  ev.Scope.String(),
			SpanID: ev.SpanID,
			Name:   ev.Name,
			Detail: ev.Detail,
		}
		if ev.Addr != 0 {
			je.Addr = fmt.Sprintf("0x%06x", ev.Addr)
		}
		data, err := json.Marshal(je)
		if err != nil {
			return []byte(fmt.Sprintf("{\"name\":%q,\"error\":%q}\n", ev.Name, err))
		}
		return append(data, '\n')
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "%s [%06d] %-7s %-5s %s",
			ev.Time.Format("15:04:05.000000"), ev.Seq, ev.Scope, ev.Kind, ev.Name)
		if ev.Addr != 0 {
			fmt.Fprintf(&b, " @0x%06x", ev.Addr)
		}
		if ev.Detail != "" {
			fmt.Fprintf(&b, " : %s", ev.Detail)
		}
		b.WriteByte('\n')
		return []byte(b.String())
	}
}
