// Package extract parses notice XML documents into flat field records.
//
// Documents arrive in several schema revisions of the UBL/eForms family, so
// every rule is computed independently and defensively: an absent path yields
// an empty string, never an error. The only failure mode is a document the
// parser cannot turn into a tree at all.
package extract

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/procurio/ted-harvester/internal/metrics"
	"github.com/procurio/ted-harvester/internal/ted"
)

// Well-known procurement-schema namespace URIs, used as defaults when the
// document root does not declare a prefix.
var defaultNamespaces = map[string]string{
	"cbc":  "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2",
	"cac":  "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2",
	"efac": "http://data.europa.eu/p27/eforms-ubl-extension-aggregate-components/1",
	"efbc": "http://data.europa.eu/p27/eforms-ubl-extension-basic-components/1",
}

var (
	// Internal reference-number noise at the head of titles, e.g. "2024-00123 - ".
	titlePrefix = regexp.MustCompile(`^\s*\d{4}[-_]\d{5,}[\s_\-–:]+`)
	// Selection-criteria scheme-code tokens embedded in description text.
	schemeCodeToken = regexp.MustCompile(`(?i)\bslc-[a-z0-9\-]+\b`)
	// Whole-word keywords indicating the criteria demand CVs.
	cvKeywords = regexp.MustCompile(`(?i)\b(CV|Lebenslauf|Schlüsselpersonal|key staff|Personaleinsatz)\b`)
)

// Extractor turns document bytes into output rows.
type Extractor struct {
	detailHost string
}

// New builds an Extractor. detailHost is used to construct canonical notice
// detail links, e.g. "https://ted.europa.eu".
func New(detailHost string) *Extractor {
	return &Extractor{detailHost: strings.TrimSuffix(detailHost, "/")}
}

// Extract parses the document and applies every field rule. The returned row
// always carries all header keys.
func (e *Extractor) Extract(doc []byte) (ted.Row, error) {
	started := time.Now()
	// Non-strict decoding repairs mildly malformed documents instead of
	// rejecting them; only a document that yields no tree at all fails.
	tree, err := xmlquery.ParseWithOptions(bytes.NewReader(doc), xmlquery.ParserOptions{
		Decoder: &xmlquery.DecoderOptions{
			Strict:    false,
			AutoClose: xml.HTMLAutoClose,
			Entity:    xml.HTMLEntity,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("parse notice xml: %w", err)
	}
	q := &docQuery{root: tree, ns: documentNamespaces(tree)}

	row := ted.Row{}
	for _, h := range ted.Headers() {
		row[h] = ""
	}

	row[ted.FieldAuthority] = q.first(
		".//cac:ContractingParty//cac:PartyName/cbc:Name",
		".//efac:Organizations//efac:Company/cac:PartyName/cbc:Name",
	)
	row[ted.FieldTitle] = cleanTitle(q.first(
		".//cac:ProcurementProject/cbc:Name | .//cbc:Title | .//efbc:Title",
	))
	row[ted.FieldCity] = q.first("//cac:PostalAddress/cbc:CityName")
	row[ted.FieldPlatform] = q.first(
		".//cbc:AccessToolsURI | .//cbc:WebsiteURI | .//cbc:URI | .//cbc:EndpointID",
	)
	row[ted.FieldTedLink] = e.detailLink(q)

	start, end := e.plannedPeriod(q)
	row[ted.FieldProjectStart] = start
	row[ted.FieldProjectEnd] = end

	criteria := e.selectionCriteria(q)
	row[ted.FieldReferences] = criteria
	if cvKeywords.MatchString(criteria) {
		row[ted.FieldCVFlag] = ted.CVSentinel
	}

	row[ted.FieldVolume] = e.monetaryValue(q)
	row[ted.FieldDeadline] = e.deadline(q)
	row[ted.FieldPublished] = normDate(q.first(
		".//efbc:PublicationDate",
		".//cbc:PublicationDate",
	))
	row[ted.FieldCPVCodes] = e.cpvCodes(q)
	row[ted.FieldLots] = e.lotDescriptions(q)

	metrics.ObserveExtract(time.Since(started))
	return row, nil
}

// detailLink builds the canonical notice URL from the document's own
// publication id. The pipeline backfills the search-result id when absent.
func (e *Extractor) detailLink(q *docQuery) string {
	pubID := q.first(".//efbc:NoticePublicationID[@schemeName='ojs-notice-id']")
	if pubID == "" {
		return ""
	}
	return fmt.Sprintf("%s/en/notice/-/detail/%s", e.detailHost, pubID)
}

// plannedPeriod reads the project start and end dates, looking at both
// project-level and lot-level planned periods. A missing start date is
// derived from the end date minus the declared duration when possible.
func (e *Extractor) plannedPeriod(q *docQuery) (string, string) {
	start := normDate(q.first(
		".//cac:ProcurementProject/cac:PlannedPeriod/cbc:StartDate" +
			" | .//cac:ProcurementProjectLot//cac:ProcurementProject/cac:PlannedPeriod/cbc:StartDate",
	))
	end := normDate(q.first(
		".//cac:ProcurementProject/cac:PlannedPeriod/cbc:EndDate" +
			" | .//cac:ProcurementProjectLot//cac:ProcurementProject/cac:PlannedPeriod/cbc:EndDate",
	))
	if start != "" || end == "" {
		return start, end
	}

	durNodes := q.nodes(
		".//cac:ProcurementProject/cac:PlannedPeriod/cbc:DurationMeasure" +
			" | .//cac:ProcurementProjectLot//cac:ProcurementProject/cac:PlannedPeriod/cbc:DurationMeasure",
	)
	for _, dn := range durNodes {
		val := nodeText(dn)
		if val == "" {
			continue
		}
		days, ok := durationToDays(val, dn.SelectAttr("unitCode"))
		if !ok || days == 0 {
			break
		}
		endDate, ok := parseISODate(end)
		if !ok {
			break
		}
		start = endDate.AddDate(0, 0, -days).Format("2006-01-02")
		break
	}
	return start, end
}

// selectionCriteria concatenates every criterion description and strips the
// embedded scheme-code tokens.
func (e *Extractor) selectionCriteria(q *docQuery) string {
	nodes := q.nodes(
		".//*[contains(local-name(),'SelectionCriteria') or contains(local-name(),'SelectionCriterion')]/cbc:Description",
	)
	var parts []string
	for _, n := range nodes {
		if t := nodeText(n); t != "" {
			parts = append(parts, t)
		}
	}
	text := strings.Join(parts, " ")
	return strings.TrimSpace(schemeCodeToken.ReplaceAllString(text, ""))
}

// monetaryValue scans the amount-bearing paths in priority order and appends
// a currency code found on the node or its parent.
func (e *Extractor) monetaryValue(q *docQuery) string {
	nodes := q.nodes(
		".//cbc:EstimatedOverallContractAmount" +
			" | .//cbc:EstimatedOverallContractAmount/cbc:Value" +
			" | .//efbc:EstimatedValue" +
			" | .//cbc:PayableAmount",
	)
	for _, n := range nodes {
		value := nodeText(n)
		if value == "" {
			continue
		}
		currency := n.SelectAttr("currencyID")
		if currency == "" && n.Parent != nil && n.Parent.Type == xmlquery.ElementNode {
			currency = n.Parent.SelectAttr("currencyID")
		}
		if currency != "" {
			value += " " + currency
		}
		return value
	}
	return ""
}

// deadline tries the four submission-deadline paths in fixed priority order,
// falling back to the participation-request reception period.
func (e *Extractor) deadline(q *docQuery) string {
	submission := normDate(q.first(".//cac:TenderSubmissionDeadlinePeriod/cbc:EndDate"))
	if submission == "" {
		submission = normDate(q.first(".//cac:TenderingTerms/cbc:SubmissionDeadlineDate"))
	}
	if submission == "" {
		submission = normDate(q.first(".//cac:InterestExpressionReceptionPeriod/cbc:EndDate"))
	}
	if submission == "" {
		submission = normDate(q.first(".//efac:InterestExpressionReceptionPeriod/cbc:EndDate"))
	}
	if submission != "" {
		return submission
	}
	participation := normDate(q.first(".//cac:ParticipationRequestReceptionPeriod/cbc:EndDate"))
	if participation == "" {
		participation = normDate(q.first(".//efac:ParticipationRequestReceptionPeriod/cbc:EndDate"))
	}
	return participation
}

// cpvCodes unions every main and additional classification code in the
// document, output as a sorted comma-joined string.
func (e *Extractor) cpvCodes(q *docQuery) string {
	seen := map[string]struct{}{}
	for _, expr := range []string{
		".//cac:MainCommodityClassification/cbc:ItemClassificationCode",
		".//cac:AdditionalCommodityClassification/cbc:ItemClassificationCode",
	} {
		for _, n := range q.nodes(expr) {
			if code := nodeText(n); code != "" {
				seen[code] = struct{}{}
			}
		}
	}
	codes := make([]string, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return strings.Join(codes, ", ")
}

// lotDescriptions joins each lot's name and description. Lot elements differ
// by schema version, so anything whose local name contains "Lot" counts.
func (e *Extractor) lotDescriptions(q *docQuery) string {
	var lots []string
	for _, lot := range q.nodes("//*[contains(local-name(), 'Lot')]") {
		name := firstText(q.relative(lot, "./cbc:Name"))
		desc := firstText(q.relative(lot, "./cbc:Description"))
		switch {
		case name != "" && desc != "":
			lots = append(lots, name+" – "+desc)
		case name != "":
			lots = append(lots, name)
		case desc != "":
			lots = append(lots, desc)
		}
	}
	return strings.Join(lots, "; ")
}

// cleanTitle strips the leading year/reference-number prefix from raw titles.
func cleanTitle(raw string) string {
	if raw == "" {
		return ""
	}
	return titlePrefix.ReplaceAllString(strings.TrimSpace(raw), "")
}

// docQuery bundles a parsed tree with its namespace bindings.
type docQuery struct {
	root *xmlquery.Node
	ns   map[string]string
}

// nodes evaluates an XPath expression against the document root. Expressions
// that fail to compile yield no nodes; extraction rules treat that the same
// as an absent path.
func (q *docQuery) nodes(expr string) []*xmlquery.Node {
	compiled, err := xpath.CompileWithNS(expr, q.ns)
	if err != nil {
		return nil
	}
	return xmlquery.QuerySelectorAll(q.root, compiled)
}

// relative evaluates an expression from a specific node.
func (q *docQuery) relative(n *xmlquery.Node, expr string) []*xmlquery.Node {
	compiled, err := xpath.CompileWithNS(expr, q.ns)
	if err != nil {
		return nil
	}
	return xmlquery.QuerySelectorAll(n, compiled)
}

// first returns the first non-empty text across the expressions, tried in
// priority order.
func (q *docQuery) first(exprs ...string) string {
	for _, expr := range exprs {
		if t := firstText(q.nodes(expr)); t != "" {
			return t
		}
	}
	return ""
}

// documentNamespaces reads prefix declarations from the document root and
// fills in the well-known defaults for any missing prefix, so extraction
// paths keep working across schema-version variations.
func documentNamespaces(tree *xmlquery.Node) map[string]string {
	ns := make(map[string]string, len(defaultNamespaces))
	for n := tree.FirstChild; n != nil; n = n.NextSibling {
		if n.Type != xmlquery.ElementNode {
			continue
		}
		for _, attr := range n.Attr {
			if attr.Name.Space == "xmlns" && attr.Name.Local != "" {
				ns[attr.Name.Local] = attr.Value
			}
		}
		break
	}
	for prefix, uri := range defaultNamespaces {
		if _, ok := ns[prefix]; !ok {
			ns[prefix] = uri
		}
	}
	return ns
}
