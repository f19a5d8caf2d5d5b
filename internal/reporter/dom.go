package reporter

import "strings"

const (
	unknownRegion   = "Unknown Region"
	unknownTheme    = "Unknown Theme"
	unknownLanguage = "Unknown Language"
)

// Element is a snapshot of a DOM element as seen by the beacon.
type Element struct {
	Tag     string            `json:"tag"`
	ID      string            `json:"id,omitempty"`
	Classes []string          `json:"classes,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
	Text    string            `json:"text,omitempty"`
}

// Attr returns the attribute value, or "" when it is missing.
func (e Element) Attr(name string) string {
	if e.Attrs == nil {
		return ""
	}
	return e.Attrs[name]
}

// HasAttr reports whether the attribute is present, even if empty.
func (e Element) HasAttr(name string) bool {
	_, ok := e.Attrs[name]
	return ok
}

// HasClass reports whether the element carries the class.
func (e Element) HasClass(class string) bool {
	for _, c := range e.Classes {
		if c == class {
			return true
		}
	}
	return false
}

func (e Element) isTag(tag string) bool {
	return strings.EqualFold(e.Tag, tag)
}

// firstNonEmpty follows the falsy-string fallthrough of the attribute chains.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// IsRegion reports whether a click target counts as a map region.
func IsRegion(e Element) bool {
	return e.isTag("path") || e.HasClass("region")
}

// ResolveRegion picks the region identifier: data-region, title, id, then a fallback.
func ResolveRegion(e Element) string {
	return firstNonEmpty(e.Attr("data-region"), e.Attr("title"), e.ID, unknownRegion)
}

// ResolveTheme picks the theme value: data-theme, text content, then a fallback.
func ResolveTheme(e Element) string {
	return firstNonEmpty(e.Attr("data-theme"), e.Text, unknownTheme)
}

// ResolveLanguage picks the language value: data-language, text content, then a fallback.
func ResolveLanguage(e Element) string {
	return firstNonEmpty(e.Attr("data-language"), e.Text, unknownLanguage)
}

// matchesSelector reports whether path[i] matches `[attr], .container button`.
func matchesSelector(path []Element, i int, attr, container string) bool {
	el := path[i]
	if el.HasAttr(attr) {
		return true
	}
	if !el.isTag("button") {
		return false
	}
	for _, anc := range path[i+1:] {
		if anc.HasClass(container) {
			return true
		}
	}
	return false
}

// IsThemeControl reports whether path[i] matches the theme selector.
func IsThemeControl(path []Element, i int) bool {
	return matchesSelector(path, i, "data-theme", "theme-selector")
}

// IsLanguageControl reports whether path[i] matches the language selector.
func IsLanguageControl(path []Element, i int) bool {
	return matchesSelector(path, i, "data-language", "language-selector")
}
