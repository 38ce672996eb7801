// Package locate derives candidate document URLs from raw notice records.
//
// The search API's links block has shipped in several shapes: sometimes
// double-nested under a second "links" key, with key casing that varies by
// schema version. Everything here is pure; network fallbacks live in the
// fetch package.
package locate

import (
	"sort"
	"strings"

	"github.com/procurio/ted-harvester/internal/ted"
)

// Candidates returns the notice's document URLs in priority order: the "mul"
// (multi-lingual) link first when present, then the remaining non-empty XML
// links in sorted key order. A bare-string xml entry is returned alone. An
// absent xml entry yields no candidates; the fetcher then falls through to
// its constructed-URL and detail-scrape strategies.
func Candidates(notice ted.RawNotice) []string {
	block := linksBlock(notice)
	switch xml := block["xml"].(type) {
	case map[string]any:
		var urls []string
		for _, k := range sortedKeys(xml) {
			if lower(k) != "mul" {
				continue
			}
			if v, ok := xml[k].(string); ok && v != "" {
				urls = append(urls, v)
			}
		}
		for _, k := range sortedKeys(xml) {
			if lower(k) == "mul" {
				continue
			}
			if v, ok := xml[k].(string); ok && v != "" {
				urls = append(urls, v)
			}
		}
		return urls
	case string:
		if xml != "" {
			return []string{xml}
		}
	}
	return nil
}

// linksBlock normalizes the notice's links structure into a canonical
// lowercase-keyed map, done once at the boundary so every later lookup is
// against the canonical form.
func linksBlock(notice ted.RawNotice) map[string]any {
	links, ok := notice["links"].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	if inner, ok := links["links"].(map[string]any); ok {
		links = inner
	}
	canonical := make(map[string]any, len(links))
	for k, v := range links {
		canonical[lower(k)] = v
	}
	return canonical
}

// sortedKeys keeps candidate ordering deterministic; Go map iteration order
// is randomized, and callers rely on Candidates being a pure function.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func lower(s string) string {
	return strings.ToLower(s)
}

