package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// INIDocument is the result of parsing an INI-formatted config file per
// spec.md §6: "[Section]" headers, "key = value" pairs, "#"/";"
// comments. Unknown keys in the global (pre-header) section land in
// Global; keys under a header land in Sections[header].
type INIDocument struct {
	Global   map[string]string
	Sections map[string]map[string]string
}

// LoadINI parses path into an INIDocument. It is intentionally
// permissive: blank lines and comment lines are skipped, and a
// malformed "key" line with no "=" is ignored rather than failing the
// whole parse, matching the original source's leniency for this
// operator-edited file.
func LoadINI(path string) (*INIDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ini file: %w", err)
	}
	defer f.Close()
	return ParseINI(f)
}

// ParseINI parses INI content from r.
func ParseINI(r io.Reader) (*INIDocument, error) {
	doc := &INIDocument{
		Global:   map[string]string{},
		Sections: map[string]map[string]string{},
	}

	currentSection := ""
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = strings.TrimSpace(line[1 : len(line)-1])
			if _, ok := doc.Sections[currentSection]; !ok {
				doc.Sections[currentSection] = map[string]string{}
			}
			continue
		}

		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue // malformed key line, skip per §6 leniency
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		if key == "" {
			continue
		}

		if currentSection == "" {
			doc.Global[key] = value
		} else {
			doc.Sections[currentSection][key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan ini file: %w", err)
	}
	return doc, nil
}

// Bool parses an INI boolean loosely: "true", "1", "yes", "on" are
// true (case-insensitively); everything else is false.
func Bool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// List splits a comma-separated INI value and trims each element,
// dropping empty elements produced by trailing/leading commas.
func List(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Int parses an INI integer value, returning def on failure.
func Int(value string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return n
}

// Float parses an INI float value, returning def on failure.
func Float(value string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return def
	}
	return f
}

// ApplyINI overlays recognized keys from doc onto a Config, filling
// only fields with corresponding entries in the [logsentry] section;
// unrecognized keys under [logsentry] and anything in the global
// section are left untouched by the typed Config and are available to
// callers that need the raw document for operator-visible diagnostics.
func (c *Config) ApplyINI(doc *INIDocument) {
	sec, ok := doc.Sections["logsentry"]
	if !ok {
		return
	}
	if v, ok := sec["port"]; ok {
		c.Port = Int(v, c.Port)
	}
	if v, ok := sec["log-level"]; ok {
		c.LogLevel = v
	}
	if v, ok := sec["metrics-path"]; ok {
		c.MetricsPath = v
	}
	if v, ok := sec["auth-token"]; ok {
		c.AuthToken = v
	}
	if v, ok := sec["jwt-secret"]; ok {
		c.JWTSecret = v
	}
	if v, ok := sec["sliding-window-seconds"]; ok {
		c.SlidingWindowSeconds = Int(v, c.SlidingWindowSeconds)
	}
	if v, ok := sec["z-score-threshold"]; ok {
		c.ZScoreThreshold = Float(v, c.ZScoreThreshold)
	}
	if v, ok := sec["min-samples-for-z-score"]; ok {
		c.MinSamplesForZScore = Int(v, c.MinSamplesForZScore)
	}
	if v, ok := sec["session-tracking-enabled"]; ok {
		c.SessionTrackingEnabled = Bool(v)
	}
	if v, ok := sec["session-key-fields"]; ok {
		c.SessionKeyFields = List(v)
	}
	if v, ok := sec["file-dispatcher-enabled"]; ok {
		c.FileDispatcherEnabled = Bool(v)
	}
	if v, ok := sec["file-dispatcher-path"]; ok {
		c.FileDispatcherPath = v
	}
	if v, ok := sec["syslog-dispatcher-enabled"]; ok {
		c.SyslogDispatcherEnabled = Bool(v)
	}
	if v, ok := sec["syslog-address"]; ok {
		c.SyslogAddress = v
	}
	if v, ok := sec["http-dispatcher-enabled"]; ok {
		c.HTTPDispatcherEnabled = Bool(v)
	}
	if v, ok := sec["webhook-url"]; ok {
		c.WebhookURL = v
	}
	if v, ok := sec["tier4-enabled"]; ok {
		c.Tier4Enabled = Bool(v)
	}
	if v, ok := sec["promql-endpoint"]; ok {
		c.PromQLEndpoint = v
	}
	if v, ok := sec["log-file-path"]; ok {
		c.LogFilePath = v
	}
	if v, ok := sec["db-conn-string"]; ok {
		c.DBConnString = v
	}
}
