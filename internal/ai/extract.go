package ai

import "regexp"

// LocatorKind tags how an image locator was found in reply text.
type LocatorKind string

const (
	LocatorNone     LocatorKind = "none"
	LocatorMarkdown LocatorKind = "markdown_image_url"
	LocatorBareURL  LocatorKind = "bare_url"
	LocatorDataURI  LocatorKind = "data_uri"
)

// Locator identifies where a result image can be found.
type Locator struct {
	Kind  LocatorKind `json:"kind"`
	Value string      `json:"value,omitempty"`
}

func (l Locator) Found() bool { return l.Kind != LocatorNone && l.Value != "" }

var (
	markdownImageRe = regexp.MustCompile(`!\[.*?\]\((https?://[^)]+)\)`)
	bareURLRe       = regexp.MustCompile(`https?://[^\s)]+`)
	dataURIRe       = regexp.MustCompile(`data:image/[^;\s]+;base64,[A-Za-z0-9+/]+={0,2}`)
)

// ExtractLocator scans reply text for an image reference. A markdown image link
// wins over a bare URL, which wins over an embedded data URI.
func ExtractLocator(text string) Locator {
	if m := markdownImageRe.FindStringSubmatch(text); m != nil {
		return Locator{Kind: LocatorMarkdown, Value: m[1]}
	}
	if m := bareURLRe.FindString(text); m != "" {
		return Locator{Kind: LocatorBareURL, Value: m}
	}
	if m := dataURIRe.FindString(text); m != "" {
		return Locator{Kind: LocatorDataURI, Value: m}
	}
	return Locator{Kind: LocatorNone}
}
