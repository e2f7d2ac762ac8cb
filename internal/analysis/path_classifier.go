package analysis

import "strings"

// PathClassifierConfig carries the suffix/prefix/exact-path rules
// used to bucket a request path as HTML or asset traffic (spec.md
// §4.3 step 5).
type PathClassifierConfig struct {
	HTMLPathSuffixes  []string
	HTMLExactPaths    []string
	AssetPathPrefixes []string
	AssetPathSuffixes []string
}

// PathClassifier buckets a path as HTML and/or asset traffic for the
// IP's HTML/asset sliding windows.
type PathClassifier struct {
	cfg PathClassifierConfig
}

// NewPathClassifier constructs a classifier from cfg.
func NewPathClassifier(cfg PathClassifierConfig) *PathClassifier {
	return &PathClassifier{cfg: cfg}
}

// IsHTML reports whether path classifies as an HTML/document request.
func (c *PathClassifier) IsHTML(path string) bool {
	for _, exact := range c.cfg.HTMLExactPaths {
		if path == exact {
			return true
		}
	}
	for _, suffix := range c.cfg.HTMLPathSuffixes {
		if suffix != "" && strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// IsAsset reports whether path classifies as a static-asset request.
func (c *PathClassifier) IsAsset(path string) bool {
	for _, prefix := range c.cfg.AssetPathPrefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	for _, suffix := range c.cfg.AssetPathSuffixes {
		if suffix != "" && strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}
