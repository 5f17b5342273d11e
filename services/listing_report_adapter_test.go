package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkipo/ipo-calendar-backend/shared"
)

func newTestListingReportAdapter(indexURL string) *ListingReportAdapter {
	return &ListingReportAdapter{
		httpFactory: shared.NewHTTPClientFactory(2 * time.Second),
		rateLimiter: shared.NewHTTPRequestRateLimiter(0),
		normalizer:  NewNormalizerService(),
		indexURL:    indexURL,
	}
}

func TestExtractReportLinks(t *testing.T) {
	adapter := newTestListingReportAdapter(newListingMainURL)

	html := []byte(`<html><body>
		<a href="/reports/new-listing-report/main/report_2023.xlsx">2023</a>
		<a href="/reports/new-listing-report/main/report_2024.xlsx">2024</a>
		<a href="/reports/new-listing-report/main/report_2024.xlsx">2024 duplicate</a>
		<a href="/reports/other/report_2024.xlsx">wrong path</a>
		<a href="/reports/new-listing-report/main/report_2022.pdf">wrong extension</a>
	</body></html>`)

	links, err := adapter.extractReportLinks(html)
	require.NoError(t, err)
	require.Len(t, links, 2)

	// Deduplicated and sorted most-recent-first.
	assert.Equal(t, hkexNewsBase+"/reports/new-listing-report/main/report_2024.xlsx", links[0])
	assert.Equal(t, hkexNewsBase+"/reports/new-listing-report/main/report_2023.xlsx", links[1])
}

func TestFetchDocumentMap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><body>
			<table>
				<tr><th>Stock Code</th><th>Stock Name</th><th>Announcement</th><th>Prospectus</th><th>Allotment</th></tr>
				<tr>
					<td>2688</td>
					<td>Golden Harbour   Robotics</td>
					<td><a href="/announce/2688.pdf">PDF</a></td>
					<td><a href="/prospectus/2688.pdf">PDF</a></td>
					<td><a href="/allotment/2688.pdf">PDF</a></td>
				</tr>
				<tr>
					<td>-</td>
					<td>placeholder row</td>
					<td></td><td></td><td></td>
				</tr>
			</table>
		</body></html>`))
	}))
	defer server.Close()

	adapter := newTestListingReportAdapter(server.URL)
	documents, err := adapter.FetchDocumentMap(context.Background())
	require.NoError(t, err)
	require.Len(t, documents, 1)

	doc, found := documents["02688"]
	require.True(t, found)
	assert.Equal(t, "Golden Harbour Robotics", doc.Company)
	assert.Equal(t, hkexNewsBase+"/announce/2688.pdf", doc.AnnouncementURL)
	assert.Equal(t, hkexNewsBase+"/prospectus/2688.pdf", doc.ProspectusURL)
	assert.Equal(t, hkexNewsBase+"/allotment/2688.pdf", doc.AllotmentURL)
}

func TestFetchRecordsIndexUnreachable(t *testing.T) {
	dead := httptest.NewServer(nil)
	deadURL := dead.URL
	dead.Close()

	adapter := newTestListingReportAdapter(deadURL)
	_, err := adapter.FetchRecords(context.Background())
	require.Error(t, err)

	var serviceErr *shared.ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, shared.ErrorCategoryNetwork, serviceErr.Category)
}

func TestFetchRecordsNoReportLinks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><body><p>nothing here</p></body></html>`))
	}))
	defer server.Close()

	adapter := newTestListingReportAdapter(server.URL)
	_, err := adapter.FetchRecords(context.Background())
	require.Error(t, err)

	var serviceErr *shared.ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, shared.ErrorCategoryParsing, serviceErr.Category)
}

func TestParseReportDateAcceptsBothForms(t *testing.T) {
	adapter := newTestListingReportAdapter(newListingMainURL)

	parsed := adapter.parseReportDate("13 Jun 2024")
	require.NotNil(t, parsed)
	assert.Equal(t, "2024-06-13", parsed.Format("2006-01-02"))

	parsed = adapter.parseReportDate("2024/6/13")
	require.NotNil(t, parsed)
	assert.Equal(t, "2024-06-13", parsed.Format("2006-01-02"))

	assert.Nil(t, adapter.parseReportDate("TBC"))
}
