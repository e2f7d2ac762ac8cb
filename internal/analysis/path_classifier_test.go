package analysis

import "testing"

func testPathClassifier() *PathClassifier {
	return NewPathClassifier(PathClassifierConfig{
		HTMLExactPaths:    []string{"/"},
		HTMLPathSuffixes:  []string{".html", ".htm"},
		AssetPathPrefixes: []string{"/static/", "/assets/"},
		AssetPathSuffixes: []string{".css", ".js", ".png"},
	})
}

func TestIsHTMLExactRoot(t *testing.T) {
	c := testPathClassifier()
	if !c.IsHTML("/") {
		t.Error("expected / to classify as HTML")
	}
}

func TestIsHTMLSuffix(t *testing.T) {
	c := testPathClassifier()
	if !c.IsHTML("/about.html") {
		t.Error("expected /about.html to classify as HTML")
	}
}

func TestIsAssetPrefix(t *testing.T) {
	c := testPathClassifier()
	if !c.IsAsset("/static/app.bundle") {
		t.Error("expected /static/app.bundle to classify as asset")
	}
}

func TestIsAssetSuffix(t *testing.T) {
	c := testPathClassifier()
	if !c.IsAsset("/img/logo.png") {
		t.Error("expected /img/logo.png to classify as asset")
	}
}

func TestNeitherHTMLNorAsset(t *testing.T) {
	c := testPathClassifier()
	if c.IsHTML("/api/v1/users") {
		t.Error("did not expect /api/v1/users to classify as HTML")
	}
	if c.IsAsset("/api/v1/users") {
		t.Error("did not expect /api/v1/users to classify as asset")
	}
}
