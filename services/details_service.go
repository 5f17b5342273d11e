package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/hkipo/ipo-calendar-backend/models"
	"github.com/hkipo/ipo-calendar-backend/shared"
)

const (
	maxPDFBytes        = 12_000_000
	maxPDFDownloads    = 3
	maxPDFPages        = 10
	maxFilingsReturned = 6
	overridesFile      = "overrides.json"
)

// termSheetKeywords is the fixed priority list for term-sheet selection.
// Earlier keywords rank better; titles matching none rank last.
var termSheetKeywords = []string{
	"application proof",
	"hearing",
	"term sheet",
	"offering circular",
	"prospectus",
	"announcement",
	"allotment",
}

// The lazy `[^0-9]*?` skip lets filler words sit between the phrase and the
// figure ("gross proceeds of approximately HK$690 million") while still
// leaving the currency token for its capture group.
var (
	whitespacePattern    = regexp.MustCompile(`\s+`)
	offerPricePattern    = regexp.MustCompile(`(?i)offer price(?: range)?[^0-9]*?(HK\$|US\$|USD|HKD)?\s*([0-9.,]+)`)
	grossProceedsPattern = regexp.MustCompile(`(?i)gross proceeds[^0-9]*?(HK\$|US\$|USD|HKD)?\s*([0-9.,]+)\s*(million|billion|mn|bn)?`)
	marketCapPattern     = regexp.MustCompile(`(?i)market capitali[sz]ation[^0-9]*?(HK\$|US\$|USD|HKD)?\s*([0-9.,]+)\s*(million|billion|mn|bn)?`)
	valuationPattern     = regexp.MustCompile(`(?i)(?:P/E|price[- ]to[- ]earnings)[^0-9]*([0-9]+(?:\.[0-9]+)?)\s*(?:x|times)?`)
)

var (
	businessModelKeywords  = []string{"our business", "we are", "we provide"}
	financialTrendKeywords = []string{"revenue", "profit", "loss", "gross"}
)

// DetailsService resolves supporting documents and extracted financial terms
// for one company on demand. Nothing here is cached; the presentation layer
// owns caching.
type DetailsService struct {
	httpFactory  *shared.HTTPClientFactory
	rateLimiter  *shared.HTTPRequestRateLimiter
	normalizer   *NormalizerService
	search       *FilingSearchService
	pdfExtractor *PDFExtractorService
	dataDir      string
	metrics      *shared.ServiceMetrics
}

// NewDetailsService creates a filing resolution and term extraction service
func NewDetailsService(
	httpFactory *shared.HTTPClientFactory,
	rateLimiter *shared.HTTPRequestRateLimiter,
	normalizer *NormalizerService,
	search *FilingSearchService,
	pdfExtractor *PDFExtractorService,
	dataDir string,
) *DetailsService {
	return &DetailsService{
		httpFactory:  httpFactory,
		rateLimiter:  rateLimiter,
		normalizer:   normalizer,
		search:       search,
		pdfExtractor: pdfExtractor,
		dataDir:      dataDir,
		metrics:      shared.NewServiceMetrics("details"),
	}
}

// ResolveDetails assembles candidate filings for the record's company,
// selects the best term-sheet candidate and extracts financial terms from
// eligible PDF candidates.
func (s *DetailsService) ResolveDetails(ctx context.Context, record models.IPORecord) models.IPODetails {
	logger := logrus.WithFields(logrus.Fields{
		"component":  "DetailsService",
		"method":     "ResolveDetails",
		"company":    record.Company,
		"stock_code": record.StockCode,
	})
	started := time.Now()

	// Manual overrides are the escape hatch for known-bad automated
	// extraction. A matching entry is returned verbatim.
	overrides := s.loadOverrides()
	for _, key := range []string{s.normalizer.NormalizeCompanyKey(record.Company), record.StockCode} {
		if key == "" {
			continue
		}
		if override, found := overrides[key]; found {
			logger.WithField("override_key", key).Info("Returning manual override details")
			return override
		}
	}

	filings := s.assembleCandidates(ctx, record)
	termSheet := selectTermSheet(filings)

	terms := s.extractTermsFromCandidates(ctx, filings)
	if terms.RaiseAmountUSD == nil && record.FundsRaisedHKD != nil {
		converted := s.normalizer.ToUSD(*record.FundsRaisedHKD, "HKD")
		terms.RaiseAmountUSD = &converted
	}

	details := models.IPODetails{
		Filings:           limitFilings(filings, maxFilingsReturned),
		OfferPrice:        terms.OfferPrice,
		GrossProceeds:     terms.GrossProceeds,
		MarketCap:         terms.MarketCap,
		IPOValueUSD:       terms.IPOValueUSD,
		RaiseAmountUSD:    terms.RaiseAmountUSD,
		ValuationMultiple: terms.ValuationMultiple,
		BusinessModel:     terms.BusinessModel,
		FinancialTrend:    terms.FinancialTrend,
	}
	if termSheet != nil {
		details.TermSheetURL = termSheet.URL
	}

	resolved := details.TermSheetURL != "" || len(details.Filings) > 0
	s.metrics.RecordOperation("resolve details", resolved, time.Since(started))
	logger.WithFields(logrus.Fields{
		"filing_count":   len(details.Filings),
		"has_term_sheet": details.TermSheetURL != "",
	}).Info("Details resolved")
	return details
}

// assembleCandidates collects filings in order: attached application-proof
// documents, direct cross-referenced links, full-text search results. The
// combined list is URL-deduplicated (first wins) and sorted newest-first.
func (s *DetailsService) assembleCandidates(ctx context.Context, record models.IPORecord) []models.Filing {
	var filings []models.Filing
	filings = append(filings, record.ApplicationDocuments...)

	if record.AnnouncementURL != "" {
		filings = append(filings, models.Filing{
			Title:         "New listing announcement",
			URL:           record.AnnouncementURL,
			PublishedDate: record.ProspectusDate,
			Source:        models.FilingSourceCrossReference,
		})
	}
	if record.ProspectusURL != "" {
		filings = append(filings, models.Filing{
			Title:         "Prospectus",
			URL:           record.ProspectusURL,
			PublishedDate: record.ProspectusDate,
			Source:        models.FilingSourceCrossReference,
		})
	}
	if record.AllotmentURL != "" {
		filings = append(filings, models.Filing{
			Title:         "Allotment results",
			URL:           record.AllotmentURL,
			PublishedDate: record.ListingDate,
			Source:        models.FilingSourceCrossReference,
		})
	}

	if record.Company != "" {
		filings = append(filings, s.search.SearchFilings(ctx, record.Company)...)
	}
	return dedupeFilings(filings)
}

// filingRank is the 3-key ranking tuple for term-sheet selection
type filingRank struct {
	keywordRank int
	sourceRank  int
	published   time.Time
}

func rankFiling(filing models.Filing) filingRank {
	rank := filingRank{keywordRank: len(termSheetKeywords), sourceRank: 1, published: filingSortTime(filing)}

	title := strings.ToLower(filing.Title)
	for index, keyword := range termSheetKeywords {
		if strings.Contains(title, keyword) {
			rank.keywordRank = index
			break
		}
	}
	if filing.Source == models.FilingSourceApplicationProof {
		rank.sourceRank = 0
	}
	return rank
}

func (r filingRank) betterThan(other filingRank) bool {
	if r.keywordRank != other.keywordRank {
		return r.keywordRank < other.keywordRank
	}
	if r.sourceRank != other.sourceRank {
		return r.sourceRank < other.sourceRank
	}
	return r.published.After(other.published)
}

// selectTermSheet picks the best term-sheet candidate: keyword priority
// dominates, application-proof provenance breaks ties, recency breaks the
// rest. No candidates means no term sheet.
func selectTermSheet(filings []models.Filing) *models.Filing {
	if len(filings) == 0 {
		return nil
	}
	best := 0
	bestRank := rankFiling(filings[0])
	for i := 1; i < len(filings); i++ {
		if rank := rankFiling(filings[i]); rank.betterThan(bestRank) {
			best = i
			bestRank = rank
		}
	}
	selected := filings[best]
	return &selected
}

// rankCandidates returns the filings sorted best-first by the same tuple
func rankCandidates(filings []models.Filing) []models.Filing {
	ranked := make([]models.Filing, len(filings))
	copy(ranked, filings)
	sort.SliceStable(ranked, func(i, j int) bool {
		return rankFiling(ranked[i]).betterThan(rankFiling(ranked[j]))
	})
	return ranked
}

// extractTermsFromCandidates iterates candidates in rank order, downloading
// and analyzing at most maxPDFDownloads eligible PDF documents. Extracted
// fields merge across candidates without overwriting; extraction stops early
// once enough key fields are populated.
func (s *DetailsService) extractTermsFromCandidates(ctx context.Context, filings []models.Filing) models.ExtractedTerms {
	logger := logrus.WithFields(logrus.Fields{
		"component": "DetailsService",
		"method":    "extractTermsFromCandidates",
	})

	terms := models.ExtractedTerms{}
	checked := make(map[string]bool)
	downloads := 0

	for _, candidate := range rankCandidates(filings) {
		if downloads >= maxPDFDownloads {
			break
		}
		if terms.PopulatedKeyFields() >= 3 {
			break
		}
		lowered := strings.ToLower(candidate.URL)
		if !strings.HasSuffix(lowered, ".pdf") || checked[candidate.URL] {
			continue
		}
		checked[candidate.URL] = true
		downloads++

		s.rateLimiter.EnforceRateLimit()
		content, err := s.httpFactory.DownloadWithLimit(ctx, candidate.URL, maxPDFBytes)
		if err != nil {
			logger.WithError(err).WithField("url", candidate.URL).Debug("Candidate download failed")
			continue
		}
		text, err := s.pdfExtractor.ExtractText(content, maxPDFPages)
		if err != nil || text == "" {
			logger.WithError(err).WithField("url", candidate.URL).Debug("Candidate text extraction failed")
			continue
		}
		s.mergeExtractedTerms(&terms, whitespacePattern.ReplaceAllString(text, " "))
	}
	return terms
}

// mergeExtractedTerms applies every pattern to the document text and fills
// in fields that have not been found yet.
func (s *DetailsService) mergeExtractedTerms(terms *models.ExtractedTerms, text string) {
	if terms.OfferPrice == nil {
		if match := offerPricePattern.FindStringSubmatch(text); match != nil {
			terms.OfferPrice = s.parseMoney(match[2], match[1], "")
		}
	}
	if terms.GrossProceeds == nil {
		if match := grossProceedsPattern.FindStringSubmatch(text); match != nil {
			terms.GrossProceeds = s.parseMoney(match[2], match[1], match[3])
			if terms.GrossProceeds != nil && terms.RaiseAmountUSD == nil {
				converted := s.normalizer.ToUSD(terms.GrossProceeds.Amount, terms.GrossProceeds.Currency)
				terms.RaiseAmountUSD = &converted
			}
		}
	}
	if terms.MarketCap == nil {
		if match := marketCapPattern.FindStringSubmatch(text); match != nil {
			terms.MarketCap = s.parseMoney(match[2], match[1], match[3])
			if terms.MarketCap != nil && terms.IPOValueUSD == nil {
				converted := s.normalizer.ToUSD(terms.MarketCap.Amount, terms.MarketCap.Currency)
				terms.IPOValueUSD = &converted
			}
		}
	}
	if terms.ValuationMultiple == "" {
		if match := valuationPattern.FindStringSubmatch(text); match != nil {
			terms.ValuationMultiple = match[1] + "x"
		}
	}
	if terms.BusinessModel == "" {
		terms.BusinessModel = extractSummary(text, businessModelKeywords, 2)
	}
	if terms.FinancialTrend == "" {
		terms.FinancialTrend = extractSummary(text, financialTrendKeywords, 2)
	}
}

// parseMoney converts a matched numeric string with optional currency token
// and magnitude word into a money amount. Returns nil when the number does
// not parse.
func (s *DetailsService) parseMoney(value, currency, unit string) *models.MoneyAmount {
	cleaned := strings.Trim(strings.ReplaceAll(value, ",", ""), ".")
	parsed := s.normalizer.ParseFloat(cleaned)
	if parsed == nil {
		return nil
	}
	return &models.MoneyAmount{
		Amount:   s.normalizer.ApplyMagnitudeSuffix(*parsed, unit),
		Currency: s.normalizer.NormalizeCurrencyToken(currency),
	}
}

// extractSummary returns the first maxSentences sentences containing any of
// the keywords. When no sentence matches but a keyword appears anywhere, the
// first ~400 characters serve as the summary.
func extractSummary(text string, keywords []string, maxSentences int) string {
	lowered := strings.ToLower(text)

	var selected []string
	for _, sentence := range splitSentences(text) {
		if len(selected) >= maxSentences {
			break
		}
		sentenceLower := strings.ToLower(sentence)
		for _, keyword := range keywords {
			if strings.Contains(sentenceLower, keyword) {
				selected = append(selected, strings.TrimSpace(sentence))
				break
			}
		}
	}
	if len(selected) > 0 {
		return strings.Join(selected, " ")
	}

	for _, keyword := range keywords {
		if strings.Contains(lowered, keyword) {
			if len(text) > 400 {
				// Back up to a rune boundary so the cut never splits a
				// multi-byte character.
				cut := 400
				for cut > 0 && !utf8.RuneStart(text[cut]) {
					cut--
				}
				return strings.TrimSpace(text[:cut])
			}
			return strings.TrimSpace(text)
		}
	}
	return ""
}

// splitSentences splits on sentence-ending punctuation followed by space.
// regexp cannot express the lookbehind, so the split is manual.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' || text[i+1] == '\t' || text[i+1] == '\n' {
				sentences = append(sentences, text[start:i+1])
				start = i + 2
				i++
			}
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

func limitFilings(filings []models.Filing, limit int) []models.Filing {
	if len(filings) <= limit {
		return filings
	}
	return filings[:limit]
}

// loadOverrides reads the optional manual-override file fresh on every call.
// A missing file means no overrides, not an error.
func (s *DetailsService) loadOverrides() map[string]models.IPODetails {
	path := filepath.Join(s.dataDir, overridesFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var overrides map[string]models.IPODetails
	if err := json.Unmarshal(raw, &overrides); err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "DetailsService",
			"path":      path,
		}).WithError(err).Warn("Overrides file not parseable, ignoring")
		return nil
	}
	return overrides
}

// MetricsSnapshot exposes details-resolution counters for diagnostics
func (s *DetailsService) MetricsSnapshot() map[string]shared.OperationStats {
	return s.metrics.Snapshot()
}
