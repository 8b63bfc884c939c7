package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// Event describes a single calendar entry for the ICS feed.
type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// ICSExporter renders events into an RFC 5545 calendar document.
type ICSExporter struct {
	prodID string
}

// NewICSExporter builds an ICS exporter identified by the given product id.
func NewICSExporter(prodID string) *ICSExporter {
	if prodID == "" {
		prodID = "-//office-hours-api//EN"
	}
	return &ICSExporter{prodID: prodID}
}

// Render produces an ICS document for the supplied events.
func (e *ICSExporter) Render(name string, events []Event) ([]byte, error) {
	buf := &bytes.Buffer{}
	writeLine(buf, "BEGIN:VCALENDAR")
	writeLine(buf, "VERSION:2.0")
	writeLine(buf, "PRODID:"+escapeText(e.prodID))
	writeLine(buf, "CALSCALE:GREGORIAN")
	if name != "" {
		writeLine(buf, "X-WR-CALNAME:"+escapeText(name))
	}

	for _, event := range events {
		if event.UID == "" {
			return nil, fmt.Errorf("ics event requires a uid")
		}
		writeLine(buf, "BEGIN:VEVENT")
		writeLine(buf, "UID:"+escapeText(event.UID))
		writeLine(buf, "DTSTAMP:"+formatUTC(time.Now()))
		writeLine(buf, "DTSTART:"+formatUTC(event.Start))
		writeLine(buf, "DTEND:"+formatUTC(event.End))
		writeLine(buf, "SUMMARY:"+escapeText(event.Summary))
		if event.Description != "" {
			writeLine(buf, "DESCRIPTION:"+escapeText(event.Description))
		}
		if event.Location != "" {
			writeLine(buf, "LOCATION:"+escapeText(event.Location))
		}
		writeLine(buf, "END:VEVENT")
	}

	writeLine(buf, "END:VCALENDAR")
	return buf.Bytes(), nil
}

func formatUTC(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// escapeText applies the RFC 5545 TEXT escaping rules.
func escapeText(s string) string {
	r := strings.NewReplacer("\\", "\\\\", ";", "\\;", ",", "\\,", "\n", "\\n", "\r", "")
	return r.Replace(s)
}

func writeLine(buf *bytes.Buffer, line string) {
	buf.WriteString(foldLine(line))
	buf.WriteString("\r\n")
}

// foldLine wraps content lines longer than 75 octets per RFC 5545 §3.1.
func foldLine(line string) string {
	const limit = 75
	if len(line) <= limit {
		return line
	}
	var b strings.Builder
	for len(line) > limit {
		b.WriteString(line[:limit])
		b.WriteString("\r\n ")
		line = line[limit:]
	}
	b.WriteString(line)
	return b.String()
}
