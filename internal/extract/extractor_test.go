package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/procurio/ted-harvester/internal/ted"
)

const nsDecls = `xmlns:cbc="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
	xmlns:cac="urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	xmlns:efac="http://data.europa.eu/p27/eforms-ubl-extension-aggregate-components/1"
	xmlns:efbc="http://data.europa.eu/p27/eforms-ubl-extension-basic-components/1"`

const contractNotice = `<?xml version="1.0" encoding="UTF-8"?>
<ContractNotice ` + nsDecls + `>
	<efbc:PublicationDate>2024-05-02+02:00</efbc:PublicationDate>
	<efac:Publication>
		<efbc:NoticePublicationID schemeName="ojs-notice-id">00123-2024</efbc:NoticePublicationID>
	</efac:Publication>
	<cac:ContractingParty>
		<cac:Party>
			<cac:PartyName>
				<cbc:Name>Stadt Musterhausen</cbc:Name>
			</cac:PartyName>
			<cac:PostalAddress>
				<cbc:CityName>Musterhausen</cbc:CityName>
			</cac:PostalAddress>
		</cac:Party>
	</cac:ContractingParty>
	<cac:TenderingTerms>
		<cbc:AccessToolsURI>https://vergabe.example.org</cbc:AccessToolsURI>
		<efac:SelectionCriteria>
			<cbc:Description>Vergleichbare Referenzen und Lebenslauf erforderlich slc-abc-12</cbc:Description>
		</efac:SelectionCriteria>
	</cac:TenderingTerms>
	<cac:TenderSubmissionDeadlinePeriod>
		<cbc:EndDate>2024-06-15T10:00:00Z</cbc:EndDate>
	</cac:TenderSubmissionDeadlinePeriod>
	<cac:ProcurementProject>
		<cbc:Name>2024-00123 - Road Works</cbc:Name>
		<cac:RequestedTenderTotal>
			<cbc:EstimatedOverallContractAmount currencyID="EUR">250000</cbc:EstimatedOverallContractAmount>
		</cac:RequestedTenderTotal>
		<cac:PlannedPeriod>
			<cbc:EndDate>2024-12-31Z</cbc:EndDate>
			<cbc:DurationMeasure unitCode="MON">6</cbc:DurationMeasure>
		</cac:PlannedPeriod>
		<cac:MainCommodityClassification>
			<cbc:ItemClassificationCode>71541000</cbc:ItemClassificationCode>
		</cac:MainCommodityClassification>
		<cac:AdditionalCommodityClassification>
			<cbc:ItemClassificationCode>71500000</cbc:ItemClassificationCode>
		</cac:AdditionalCommodityClassification>
	</cac:ProcurementProject>
	<cac:ProcurementProjectLot>
		<cbc:Name>Los 1</cbc:Name>
		<cbc:Description>Objektplanung</cbc:Description>
	</cac:ProcurementProjectLot>
	<cac:ProcurementProjectLot>
		<cbc:Name>Los 2</cbc:Name>
	</cac:ProcurementProjectLot>
</ContractNotice>`

func TestExtractContractNotice(t *testing.T) {
	t.Parallel()

	e := New("https://ted.europa.eu")
	row, err := e.Extract([]byte(contractNotice))
	require.NoError(t, err)

	require.Equal(t, "Stadt Musterhausen", row[ted.FieldAuthority])
	require.Equal(t, "Road Works", row[ted.FieldTitle], "reference-number prefix is stripped")
	require.Equal(t, "Musterhausen", row[ted.FieldCity])
	require.Equal(t, "https://vergabe.example.org", row[ted.FieldPlatform])
	require.Equal(t, "https://ted.europa.eu/en/notice/-/detail/00123-2024", row[ted.FieldTedLink])
	require.Equal(t, "2024-12-31", row[ted.FieldProjectEnd])
	require.Equal(t, "2024-07-04", row[ted.FieldProjectStart], "derived from end date minus 6 months")
	require.Equal(t, "Vergleichbare Referenzen und Lebenslauf erforderlich", row[ted.FieldReferences])
	require.Equal(t, ted.CVSentinel, row[ted.FieldCVFlag])
	require.Equal(t, "250000 EUR", row[ted.FieldVolume])
	require.Equal(t, "2024-06-15", row[ted.FieldDeadline])
	require.Equal(t, "2024-05-02", row[ted.FieldPublished])
	require.Equal(t, "71500000, 71541000", row[ted.FieldCPVCodes], "sorted, deduplicated union")
	require.Equal(t, "Los 1 – Objektplanung; Los 2", row[ted.FieldLots])
}

func TestExtractRowCarriesEveryHeader(t *testing.T) {
	t.Parallel()

	e := New("https://ted.europa.eu")
	row, err := e.Extract([]byte(`<?xml version="1.0"?><Notice ` + nsDecls + `></Notice>`))
	require.NoError(t, err)

	require.Len(t, row, len(ted.Headers()))
	for _, h := range ted.Headers() {
		_, ok := row[h]
		require.True(t, ok, "missing header %q", h)
		require.Empty(t, row[h])
	}
}

func TestExtractAuthorityFallbackPath(t *testing.T) {
	t.Parallel()

	doc := `<?xml version="1.0"?>
<ContractNotice ` + nsDecls + `>
	<efac:Organizations>
		<efac:Organization>
			<efac:Company>
				<cac:PartyName><cbc:Name>Bundesamt für Bau</cbc:Name></cac:PartyName>
			</efac:Company>
		</efac:Organization>
	</efac:Organizations>
</ContractNotice>`

	e := New("https://ted.europa.eu")
	row, err := e.Extract([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, "Bundesamt für Bau", row[ted.FieldAuthority])
}

func TestExtractDeadlineFallbackChain(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "tendering terms submission deadline",
			body: `<cac:TenderingTerms><cbc:SubmissionDeadlineDate>2024-07-01Z</cbc:SubmissionDeadlineDate></cac:TenderingTerms>`,
			want: "2024-07-01",
		},
		{
			name: "interest expression period",
			body: `<cac:InterestExpressionReceptionPeriod><cbc:EndDate>2024-07-02Z</cbc:EndDate></cac:InterestExpressionReceptionPeriod>`,
			want: "2024-07-02",
		},
		{
			name: "interest expression period under extension namespace",
			body: `<efac:InterestExpressionReceptionPeriod><cbc:EndDate>2024-07-03Z</cbc:EndDate></efac:InterestExpressionReceptionPeriod>`,
			want: "2024-07-03",
		},
		{
			name: "participation request fallback",
			body: `<cac:ParticipationRequestReceptionPeriod><cbc:EndDate>2024-07-04Z</cbc:EndDate></cac:ParticipationRequestReceptionPeriod>`,
			want: "2024-07-04",
		},
	}

	e := New("https://ted.europa.eu")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			doc := `<?xml version="1.0"?><ContractNotice ` + nsDecls + `>` + tc.body + `</ContractNotice>`
			row, err := e.Extract([]byte(doc))
			require.NoError(t, err)
			require.Equal(t, tc.want, row[ted.FieldDeadline])
		})
	}
}

func TestExtractExplicitStartDateWins(t *testing.T) {
	t.Parallel()

	doc := `<?xml version="1.0"?>
<ContractNotice ` + nsDecls + `>
	<cac:ProcurementProject>
		<cac:PlannedPeriod>
			<cbc:StartDate>2024-03-01Z</cbc:StartDate>
			<cbc:EndDate>2024-12-31Z</cbc:EndDate>
			<cbc:DurationMeasure unitCode="MON">6</cbc:DurationMeasure>
		</cac:PlannedPeriod>
	</cac:ProcurementProject>
</ContractNotice>`

	e := New("https://ted.europa.eu")
	row, err := e.Extract([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, "2024-03-01", row[ted.FieldProjectStart])
	require.Equal(t, "2024-12-31", row[ted.FieldProjectEnd])
}

func TestExtractCurrencyFromParentNode(t *testing.T) {
	t.Parallel()

	doc := `<?xml version="1.0"?>
<ContractNotice ` + nsDecls + `>
	<cac:RequestedTenderTotal currencyID="CHF">
		<cbc:PayableAmount>99000</cbc:PayableAmount>
	</cac:RequestedTenderTotal>
</ContractNotice>`

	e := New("https://ted.europa.eu")
	row, err := e.Extract([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, "99000 CHF", row[ted.FieldVolume])
}

func TestExtractCVKeywordIsWholeWord(t *testing.T) {
	t.Parallel()

	e := New("https://ted.europa.eu")

	doc := `<?xml version="1.0"?>
<ContractNotice ` + nsDecls + `>
	<efac:SelectionCriteria>
		<cbc:Description>A complete curriculum description without keywords</cbc:Description>
	</efac:SelectionCriteria>
</ContractNotice>`
	row, err := e.Extract([]byte(doc))
	require.NoError(t, err)
	require.Empty(t, row[ted.FieldCVFlag], "unrelated criteria text must not trigger the sentinel")

	doc = strings.Replace(doc, "curriculum description", "Angaben zum Schlüsselpersonal", 1)
	row, err = e.Extract([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, ted.CVSentinel, row[ted.FieldCVFlag])
}

func TestExtractMalformedDocumentIsRepaired(t *testing.T) {
	t.Parallel()

	// Unclosed inner element plus a raw ampersand: the non-strict decoder
	// still produces a usable tree.
	doc := `<?xml version="1.0"?>
<ContractNotice ` + nsDecls + `>
	<cac:ContractingParty>
		<cac:PartyName><cbc:Name>Amt für Strassen & Brücken</cac:PartyName>
	</cac:ContractingParty>
	<cac:ProcurementProject>
		<cac:MainCommodityClassification>
			<cbc:ItemClassificationCode>71240000</cbc:ItemClassificationCode>
		</cac:MainCommodityClassification>
	</cac:ProcurementProject>
</ContractNotice>`

	e := New("https://ted.europa.eu")
	row, err := e.Extract([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, "71240000", row[ted.FieldCPVCodes])
	require.Equal(t, "Amt für Strassen & Brücken", row[ted.FieldAuthority])
}
