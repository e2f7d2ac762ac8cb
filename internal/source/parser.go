package source

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/crlsmrls/logsentry/internal/logrecord"
)

// logLine mirrors the JSON-lines access log shape and its short field
// names. DBCursorSource scans typed SQL columns instead; both source
// adapters produce the same logrecord.Record.
type logLine struct {
	Host      string `json:"host"`
	User      string `json:"user"`
	Time      string `json:"time"`
	TimeMs    int64  `json:"time_ms"`
	Req       string `json:"req"`
	ReqTime   string `json:"req_time"`
	Status    string `json:"st"`
	Bytes     string `json:"bytes"`
	Referer   string `json:"pr"`
	UserAgent string `json:"c"`
	Domain    string `json:"domain"`
	Country   string `json:"country"`
	Upstream  string `json:"upstream"`
	UpsTime   string `json:"ups_time"`
	URL       string `json:"url"`
	RequestID string `json:"requestid"`
}

// parseLine turns one JSON log line into a Record. A malformed line
// returns ok=false; the caller is responsible for counting it as a
// parse error rather than treating it as fatal.
func parseLine(line string, lineNumber int64) (*logrecord.Record, bool) {
	var raw logLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, false
	}

	method, path, proto := splitRequestLine(raw.Req)
	if path == "" && raw.URL != "" {
		method, path, proto = splitRequestLine(raw.URL)
	}

	ts := raw.TimeMs
	if ts == 0 && raw.Time != "" {
		if parsed, err := parseLogTime(raw.Time); err == nil {
			ts = parsed
		}
	}
	if ts == 0 {
		return nil, false
	}

	status := stringToNumber[int](raw.Status)
	bytesSent := stringToNumber[int64](raw.Bytes)

	requestID, acceptEncoding := splitRequestID(raw.RequestID)

	rec := &logrecord.Record{
		LineNumber:         lineNumber,
		TimestampMs:        ts,
		ClientIP:           orDash(raw.Host),
		Method:             orDash(method),
		Path:               orDash(path),
		Proto:              orDash(proto),
		Status:             status,
		BytesSent:          bytesSent,
		UserAgent:          orDash(raw.UserAgent),
		Referer:            orDash(raw.Referer),
		Host:               orDash(raw.Domain),
		CountryCode:        orDash(raw.Country),
		RequestID:          requestID,
		AcceptEncoding:     acceptEncoding,
		SuccessfullyParsed: true,
		RawLine:            truncate(line, 2048),
	}

	if v, err := strconv.ParseFloat(raw.ReqTime, 64); err == nil {
		rec.DurationSeconds = v
		rec.HasDuration = true
	}
	if v, err := strconv.ParseFloat(raw.UpsTime, 64); err == nil {
		rec.UpstreamDurationSeconds = v
		rec.HasUpstreamDuration = true
	}

	return rec, true
}

// splitRequestLine splits a "METHOD /path HTTP/1.1"-style request
// field into its three parts, tolerating missing pieces the way the
// original's parse_request_details does.
func splitRequestLine(field string) (method, path, proto string) {
	if field == "" || field == "-" {
		return "-", "-", "-"
	}
	firstSpace := strings.IndexByte(field, ' ')
	if firstSpace < 0 {
		return "-", field, "-"
	}
	method = field[:firstSpace]
	lastSpace := strings.LastIndexByte(field, ' ')
	if lastSpace <= firstSpace {
		return method, field[firstSpace+1:], "-"
	}
	proto = field[lastSpace+1:]
	path = field[firstSpace+1 : lastSpace]
	if path == "" {
		path = "/"
	}
	return method, path, proto
}

// splitRequestID splits a "id|encoding" field into its two halves.
func splitRequestID(field string) (id, encoding string) {
	idx := strings.IndexByte(field, '|')
	if idx < 0 {
		return field, "-"
	}
	return field[:idx], field[idx+1:]
}

func parseLogTime(s string) (int64, error) {
	for _, layout := range []string{time.RFC3339, "02/Jan/2006:15:04:05 -0700"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("source: unrecognized timestamp %q", s)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// stringToNumber is the Go counterpart of the original's
// Utils::string_to_number<T> template: parse failures yield the zero
// value rather than propagating an error, since a malformed numeric
// sub-field shouldn't sink an otherwise-parseable record.
func stringToNumber[T int | int64](s string) T {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return T(n)
}
