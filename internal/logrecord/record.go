// Package logrecord defines the parsed HTTP access log event and its
// lifecycle: created by a source adapter, consumed by the analysis
// engine, and referenced through a shared immutable handle by any Alert
// that originates from it.
package logrecord

// Record is a single parsed request event. It is treated as immutable
// once constructed; callers share it via pointer rather than copying, and
// an Alert reaches it through its Event's Record field purely for operator
// inspection (no cycle arises because nothing downstream mutates it).
type Record struct {
	LineNumber int64 // monotonic ingest line number, for debugging
	TimestampMs int64

	ClientIP string
	Method   string
	Path     string // full path; query string retained, see Query()
	Proto    string
	Status   int
	BytesSent int64

	DurationSeconds         float64
	HasDuration             bool
	UpstreamDurationSeconds float64
	HasUpstreamDuration     bool

	UserAgent      string
	Referer        string
	Host           string
	CountryCode    string
	RequestID      string
	AcceptEncoding string

	// SuccessfullyParsed distinguishes a fully parsed record from one
	// that was assembled from a malformed line (see Non-goals in
	// spec.md §1: malformed lines are dropped upstream of analysis, but
	// the flag is kept on the type so a source adapter can surface a
	// best-effort partial record if it chooses to).
	SuccessfullyParsed bool

	// RawLine is the raw source line, truncated by the source adapter to
	// a bounded size, retained so alerts can include an operator-facing
	// sample.
	RawLine string
}

// PathWithoutQuery returns Path with any "?..." suffix stripped.
func (r *Record) PathWithoutQuery() string {
	for i := 0; i < len(r.Path); i++ {
		if r.Path[i] == '?' {
			return r.Path[:i]
		}
	}
	return r.Path
}

// Query returns the query-string portion of Path, excluding the leading
// "?", or "" if there is none.
func (r *Record) Query() string {
	for i := 0; i < len(r.Path); i++ {
		if r.Path[i] == '?' {
			return r.Path[i+1:]
		}
	}
	return ""
}

// IsError reports whether the status code is >= 400.
func (r *Record) IsError() bool {
	return r.Status >= 400
}
