package navigation

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Item is a single entry of a breadcrumb trail
type Item struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// Root is the first item of every trail
var Root = Item{Label: "Home", Href: "/"}

// segmentLabels maps known route tokens to their display label.
// Keep it in sync with the routes registered in cmd/server.
var segmentLabels = map[string]string{
	"admin":     "Admin",
	"api":       "API",
	"brands":    "Brands",
	"dashboard": "Dashboard",
	"entry":     "Data Entry",
	"kpi":       "KPI",
	"kpis":      "KPIs",
	"login":     "Login",
	"overview":  "Overview",
	"profile":   "Profile",
	"reports":   "Reports",
	"settings":  "Settings",
	"summary":   "Summary",
	"user":      "User",
	"users":     "Users",
	"values":    "Values",
}

// LabelFor returns the display label for a single path segment.
// Unknown segments are shown with their first character upper-cased.
func LabelFor(segment string) string {
	if label, ok := segmentLabels[segment]; ok {
		return label
	}
	return capitalize(segment)
}

// KnownSegments lists the segments that have a dedicated label, sorted
func KnownSegments() []string {
	segments := make([]string, 0, len(segmentLabels))
	for s := range segmentLabels {
		segments = append(segments, s)
	}
	sort.Strings(segments)
	return segments
}

// Resolve turns a slash-delimited path into a root-first breadcrumb trail.
// A non-empty title replaces the label of the last item.
func Resolve(path, title string) []Item {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	items := make([]Item, 0, len(segments)+1)
	items = append(items, Root)

	var href strings.Builder
	for _, s := range segments {
		href.WriteString("/")
		href.WriteString(s)
		items = append(items, Item{Label: LabelFor(s), Href: href.String()})
	}

	if title != "" && len(segments) > 0 {
		items[len(items)-1].Label = title
	}
	return items
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
