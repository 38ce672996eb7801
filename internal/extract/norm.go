package extract

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
)

// nodeText returns the node's own text content, trimmed. Descendant element
// text is deliberately excluded to match how leaf values are read.
func nodeText(n *xmlquery.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.TextNode || c.Type == xmlquery.CharDataNode {
			b.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

// firstText returns the first non-empty text among the nodes.
func firstText(nodes []*xmlquery.Node) string {
	for _, n := range nodes {
		if t := nodeText(n); t != "" {
			return t
		}
	}
	return ""
}

// normDate reduces an ISO-8601-like string to its date component: a trailing
// zone marker is trimmed, then everything from the first "T" or "+" on is cut.
func normDate(d string) string {
	d = strings.TrimSpace(d)
	if d == "" {
		return ""
	}
	d = strings.TrimRight(d, "Zz")
	if i := strings.Index(d, "T"); i >= 0 {
		d = d[:i]
	}
	if i := strings.Index(d, "+"); i >= 0 {
		d = d[:i]
	}
	return d
}

// parseISODate parses a normalized YYYY-MM-DD string.
func parseISODate(d string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", d)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// durationToDays converts a duration value plus unit code into days using the
// approximate calendar factors 30 and 365. Unknown units and unparseable
// values report ok=false.
func durationToDays(val, unit string) (int, bool) {
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, false
	}
	num, err := strconv.ParseFloat(strings.ReplaceAll(val, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "DAY", "D", "DAYS":
		return int(math.Round(num)), true
	case "MON", "M", "MONTH", "MONTHS":
		return int(math.Round(num * 30)), true
	case "ANN", "Y", "YEAR", "YEARS":
		return int(math.Round(num * 365)), true
	}
	return 0, false
}
