package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkipo/ipo-calendar-backend/models"
)

func TestSelectTermSheetKeywordPriorityDominates(t *testing.T) {
	filings := []models.Filing{
		{
			Title:         "Announcement of Offer Price",
			URL:           "https://example.test/announcement.pdf",
			PublishedDate: dateAt(2024, time.June, 10),
			Source:        models.FilingSourceCrossReference,
		},
		{
			// Older and without the preferred provenance, but "prospectus"
			// outranks "announcement" in the keyword order.
			Title:         "Prospectus",
			URL:           "https://example.test/prospectus.pdf",
			PublishedDate: dateAt(2024, time.May, 1),
			Source:        models.FilingSourceCrossReference,
		},
	}

	selected := selectTermSheet(filings)
	require.NotNil(t, selected)
	assert.Equal(t, "https://example.test/prospectus.pdf", selected.URL)
}

func TestSelectTermSheetProvenanceBreaksTies(t *testing.T) {
	filings := []models.Filing{
		{
			Title:         "Prospectus",
			URL:           "https://example.test/search-hit.pdf",
			PublishedDate: dateAt(2024, time.June, 10),
			Source:        models.FilingSourceCrossReference,
		},
		{
			Title:         "Prospectus (Application Version)",
			URL:           "https://example.test/app-proof.pdf",
			PublishedDate: dateAt(2024, time.May, 1),
			Source:        models.FilingSourceApplicationProof,
		},
	}

	selected := selectTermSheet(filings)
	require.NotNil(t, selected)
	assert.Equal(t, "https://example.test/app-proof.pdf", selected.URL)
}

func TestSelectTermSheetRecencyBreaksRemainingTies(t *testing.T) {
	filings := []models.Filing{
		{
			Title:         "Prospectus",
			URL:           "https://example.test/older.pdf",
			PublishedDate: dateAt(2024, time.May, 1),
			Source:        models.FilingSourceCrossReference,
		},
		{
			Title:         "Prospectus",
			URL:           "https://example.test/newer.pdf",
			PublishedDate: dateAt(2024, time.June, 10),
			Source:        models.FilingSourceCrossReference,
		},
	}

	selected := selectTermSheet(filings)
	require.NotNil(t, selected)
	assert.Equal(t, "https://example.test/newer.pdf", selected.URL)
}

func TestSelectTermSheetEmpty(t *testing.T) {
	assert.Nil(t, selectTermSheet(nil))
}

func TestRankCandidatesOrdersByTuple(t *testing.T) {
	filings := []models.Filing{
		{Title: "Monthly return", URL: "https://example.test/return.pdf"},
		{Title: "Application Proof of ABC Limited", URL: "https://example.test/ap.pdf", Source: models.FilingSourceApplicationProof},
		{Title: "Prospectus", URL: "https://example.test/prospectus.pdf"},
	}

	ranked := rankCandidates(filings)
	require.Len(t, ranked, 3)
	assert.Equal(t, "https://example.test/ap.pdf", ranked[0].URL)
	assert.Equal(t, "https://example.test/prospectus.pdf", ranked[1].URL)
	assert.Equal(t, "https://example.test/return.pdf", ranked[2].URL)
}

func TestMergeExtractedTermsParsesFinancialFields(t *testing.T) {
	service := &DetailsService{normalizer: NewNormalizerService()}
	terms := models.ExtractedTerms{}

	text := "The Offer Price range is HK$ 23.50 per share. Gross proceeds of approximately HK$ 1,860 million are expected. " +
		"Market capitalisation of US$ 2.4 billion upon listing. The shares are valued at a P/E of 18.5x."
	service.mergeExtractedTerms(&terms, text)

	require.NotNil(t, terms.OfferPrice)
	assert.InDelta(t, 23.50, terms.OfferPrice.Amount, 0.001)
	assert.Equal(t, "HKD", terms.OfferPrice.Currency)

	require.NotNil(t, terms.GrossProceeds)
	assert.InDelta(t, 1_860_000_000, terms.GrossProceeds.Amount, 0.1)
	assert.Equal(t, "HKD", terms.GrossProceeds.Currency)
	require.NotNil(t, terms.RaiseAmountUSD)
	assert.InDelta(t, 1_860_000_000/7.80, *terms.RaiseAmountUSD, 0.1)

	require.NotNil(t, terms.MarketCap)
	assert.InDelta(t, 2_400_000_000, terms.MarketCap.Amount, 0.1)
	assert.Equal(t, "USD", terms.MarketCap.Currency)
	require.NotNil(t, terms.IPOValueUSD)
	assert.InDelta(t, 2_400_000_000, *terms.IPOValueUSD, 0.1)

	assert.Equal(t, "18.5x", terms.ValuationMultiple)
}

func TestMergeExtractedTermsWithInterveningWords(t *testing.T) {
	service := &DetailsService{normalizer: NewNormalizerService()}

	// Filler words between the phrase and the figure, the dominant
	// phrasing in real filings.
	terms := models.ExtractedTerms{}
	service.mergeExtractedTerms(&terms, "The Offer Price of HK$1.23 per Share was determined. "+
		"Gross proceeds of approximately HK$690 million.")
	require.NotNil(t, terms.OfferPrice)
	assert.InDelta(t, 1.23, terms.OfferPrice.Amount, 0.001)
	assert.Equal(t, "HKD", terms.OfferPrice.Currency)
	require.NotNil(t, terms.GrossProceeds)
	assert.InDelta(t, 690_000_000, terms.GrossProceeds.Amount, 0.1)
	assert.Equal(t, "HKD", terms.GrossProceeds.Currency)

	// Currency adjacent to the phrase.
	terms = models.ExtractedTerms{}
	service.mergeExtractedTerms(&terms, "Offer Price: HK$1.23")
	require.NotNil(t, terms.OfferPrice)
	assert.InDelta(t, 1.23, terms.OfferPrice.Amount, 0.001)
	assert.Equal(t, "HKD", terms.OfferPrice.Currency)

	// No currency token at all; the default applies.
	terms = models.ExtractedTerms{}
	service.mergeExtractedTerms(&terms, "The Offer Price of 1.23 per Share.")
	require.NotNil(t, terms.OfferPrice)
	assert.InDelta(t, 1.23, terms.OfferPrice.Amount, 0.001)
	assert.Equal(t, "USD", terms.OfferPrice.Currency)
}

func TestMergeExtractedTermsNeverOverwrites(t *testing.T) {
	service := &DetailsService{normalizer: NewNormalizerService()}
	existing := &models.MoneyAmount{Amount: 10, Currency: "HKD"}
	terms := models.ExtractedTerms{OfferPrice: existing}

	service.mergeExtractedTerms(&terms, "Offer Price HK$ 99.99")
	assert.Equal(t, existing, terms.OfferPrice)
}

func TestExtractSummarySelectsMatchingSentences(t *testing.T) {
	text := "This document is an application proof. We provide cloud infrastructure to enterprises across Asia. " +
		"Our business depends on long-term service contracts. The directors accept full responsibility."

	summary := extractSummary(text, []string{"our business", "we are", "we provide"}, 2)
	assert.Equal(t, "We provide cloud infrastructure to enterprises across Asia. Our business depends on long-term service contracts.", summary)
}

func TestExtractSummaryFallsBackToLeadingText(t *testing.T) {
	// Keyword appears but no sentence can be selected; the summary falls
	// back to the leading characters of the document.
	long := "revenue " + strings.Repeat("a", 500)
	summary := extractSummary(long, []string{"profit", "revenue"}, 0)
	assert.Len(t, summary, 400)
}

func TestExtractSummaryFallbackKeepsRuneBoundaries(t *testing.T) {
	long := "revenue " + strings.Repeat("表", 200)
	summary := extractSummary(long, []string{"revenue"}, 0)
	assert.True(t, utf8.ValidString(summary))
	assert.Len(t, summary, 398)
}

func TestExtractSummaryNoMatch(t *testing.T) {
	assert.Empty(t, extractSummary("nothing relevant here", []string{"revenue"}, 2))
}

func TestResolveDetailsRecordsOutcomeInMetrics(t *testing.T) {
	service := NewDetailsService(nil, nil, NewNormalizerService(), nil, nil, t.TempDir())

	// Nothing resolvable: no documents, no company to search for.
	service.ResolveDetails(context.Background(), models.IPORecord{})

	// A cross-referenced document resolves; the .htm link is never downloaded.
	service.ResolveDetails(context.Background(), models.IPORecord{
		ProspectusURL: "https://example.test/prospectus.htm",
	})

	stats := service.MetricsSnapshot()["resolve details"]
	assert.EqualValues(t, 2, stats.Attempts)
	assert.EqualValues(t, 1, stats.Successes)
	assert.EqualValues(t, 1, stats.Failures)
}

func TestSplitSentences(t *testing.T) {
	sentences := splitSentences("First sentence. Second one! Third? Trailing fragment")
	require.Len(t, sentences, 4)
	assert.Equal(t, "First sentence.", sentences[0])
	assert.Equal(t, "Second one!", sentences[1])
	assert.Equal(t, "Third?", sentences[2])
	assert.Equal(t, "Trailing fragment", sentences[3])

	// Decimal points inside numbers do not split.
	sentences = splitSentences("Priced at HK$23.50 per share. Done.")
	require.Len(t, sentences, 2)
	assert.Equal(t, "Priced at HK$23.50 per share.", sentences[0])
}

func TestParseMoney(t *testing.T) {
	service := &DetailsService{normalizer: NewNormalizerService()}

	money := service.parseMoney("1,860", "HK$", "million")
	require.NotNil(t, money)
	assert.InDelta(t, 1_860_000_000, money.Amount, 0.1)
	assert.Equal(t, "HKD", money.Currency)

	money = service.parseMoney("2.4", "", "billion")
	require.NotNil(t, money)
	assert.InDelta(t, 2_400_000_000, money.Amount, 0.1)
	assert.Equal(t, "USD", money.Currency)

	assert.Nil(t, service.parseMoney("not-a-number", "HK$", ""))
}

func TestLimitFilings(t *testing.T) {
	filings := make([]models.Filing, 9)
	assert.Len(t, limitFilings(filings, maxFilingsReturned), maxFilingsReturned)
	assert.Len(t, limitFilings(filings[:3], maxFilingsReturned), 3)
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	overrides := `{
		"goldenharbourroboticslimited": {
			"term_sheet_url": "https://example.test/manual.pdf",
			"business_model": "Manual override text"
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "overrides.json"), []byte(overrides), 0o644))

	service := &DetailsService{normalizer: NewNormalizerService(), dataDir: dir}
	loaded := service.loadOverrides()
	require.Contains(t, loaded, "goldenharbourroboticslimited")
	assert.Equal(t, "https://example.test/manual.pdf", loaded["goldenharbourroboticslimited"].TermSheetURL)

	// Missing file means no overrides, not an error.
	service = &DetailsService{normalizer: NewNormalizerService(), dataDir: t.TempDir()}
	assert.Nil(t, service.loadOverrides())
}
