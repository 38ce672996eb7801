// Package ted defines core domain types shared across subsystems.
package ted

import (
	"fmt"
	"strings"
	"time"
)

// NoticeTypes is the fixed whitelist of notice types the harvester asks for.
// Only calls for competition and related forms carry the fields we extract.
var NoticeTypes = []string{
	"pin-cfc-standard",
	"pin-cfc-social",
	"qu-sy",
	"cn-standard",
	"cn-social",
	"subco",
	"cn-desg",
}

// ResultListKeys are the response keys the search API has been observed to
// use for its result list, tried in order.
var ResultListKeys = []string{"results", "items", "notices"}

// TotalCountKeys are the response keys that may carry the total hit count.
var TotalCountKeys = []string{"total", "totalCount"}

// SearchQuery describes one harvest request against the notice search API.
type SearchQuery struct {
	// DateStart and DateEnd bound the publication date, formatted YYYYMMDD.
	DateStart string
	DateEnd   string
	// BuyerCountries holds ISO alpha-3 country codes of the contracting authority.
	BuyerCountries []string
	// CPVCodes restricts results to these classification codes.
	CPVCodes []string
	// Keywords is an optional free-text match.
	Keywords string
}

// Validate enforces the query invariant: at least one of CPV codes or
// free-text keywords must be present.
func (q SearchQuery) Validate() error {
	if len(q.CPVCodes) == 0 && strings.TrimSpace(q.Keywords) == "" {
		return fmt.Errorf("search query requires cpv codes or keywords")
	}
	if q.DateStart == "" || q.DateEnd == "" {
		return fmt.Errorf("search query requires a publication date range")
	}
	return nil
}

// Expression renders the query as the API's conjunctive boolean grammar.
// CPV and free-text terms are omitted when empty.
func (q SearchQuery) Expression() string {
	terms := []string{
		fmt.Sprintf("(publication-date >=%s<=%s)", q.DateStart, q.DateEnd),
		fmt.Sprintf("(buyer-country IN (%s))", strings.Join(q.BuyerCountries, " ")),
	}
	if len(q.CPVCodes) > 0 {
		terms = append(terms, fmt.Sprintf("(classification-cpv IN (%s))", strings.Join(q.CPVCodes, " ")))
	}
	if kw := strings.TrimSpace(q.Keywords); kw != "" {
		terms = append(terms, fmt.Sprintf("(FT ~ (%s))", kw))
	}
	terms = append(terms, fmt.Sprintf("(notice-type IN (%s))", strings.Join(NoticeTypes, " ")))
	return strings.Join(terms, " AND ")
}

// RawNotice is one search result as returned by the API. Its shape varies
// between schema versions, so it stays an opaque mapping until the locator
// normalizes it.
type RawNotice map[string]any

// PublicationNumber returns the notice's publication identifier, or "" when
// the record has none.
func (n RawNotice) PublicationNumber() string {
	if v, ok := n["publication-number"].(string); ok {
		return v
	}
	return ""
}

// Fixed output column names. The German labels are the business-facing
// spreadsheet headers and are treated as opaque identifiers.
const (
	FieldPublicationNumber = "publication-number"
	FieldAuthority         = "Beschaffer"
	FieldTitle             = "Projektbezeichnung"
	FieldCity              = "Ort/Region"
	FieldPlatform          = "Vergabeplattform"
	FieldTedLink           = "Ted-Link"
	FieldProjectStart      = "Projektstart"
	FieldProjectEnd        = "Projektende"
	FieldReferences        = "Geforderte Unternehmensreferenzen"
	FieldCVFlag            = "Geforderte Kriterien CVs"
	FieldVolume            = "Projektvolumen"
	FieldDeadline          = "Frist Abgabedatum"
	FieldPublished         = "Veröffentlichung Datum"
	FieldCPVCodes          = "CPV Codes"
	FieldLots              = "Leistungen/Rollen"
)

// Headers returns the fixed spreadsheet column order.
func Headers() []string {
	return []string{
		FieldPublicationNumber,
		FieldAuthority,
		FieldTitle,
		FieldCity,
		FieldPlatform,
		FieldTedLink,
		FieldProjectStart,
		FieldProjectEnd,
		FieldReferences,
		FieldCVFlag,
		FieldVolume,
		FieldDeadline,
		FieldPublished,
		FieldCPVCodes,
		FieldLots,
	}
}

// Row is one extracted field record. Every header key is present; fields the
// document does not carry hold the empty string.
type Row map[string]string

// CVSentinel is the marker written when the selection criteria demand CVs.
const CVSentinel = "CV"

// NoticeResult is the per-notice outcome: either a populated row or a skip
// reason. Exactly one of Row and Err is set.
type NoticeResult struct {
	PublicationNumber string
	Row               Row
	Err               error
}

// Skipped reports whether the notice was excluded from the output.
func (r NoticeResult) Skipped() bool {
	return r.Err != nil
}

// Skip identifies one excluded notice in a run summary.
type Skip struct {
	PublicationNumber string `json:"publication_number"`
	Reason            string `json:"reason"`
}

// RunSummary aggregates the outcome of one harvest batch.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Query      string    `json:"query"`
	Matched    int       `json:"matched"`
	Rows       int       `json:"rows"`
	Skips      []Skip    `json:"skips,omitempty"`
	OutputPath string    `json:"output_path"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
