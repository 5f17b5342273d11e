package services

// Upstream endpoints for the Hong Kong listing data sources. The legacy
// calendar URL can be overridden through HKEX_IPO_CALENDAR_URL.
const (
	hkexNewsHost = "https://www1.hkexnews.hk"
	hkexNewsBase = "https://www2.hkexnews.hk"

	newListingMainURL        = hkexNewsBase + "/New-Listings/New-Listing-Information/Main-Board?sc_lang=en"
	newListingReportSegment  = "/new-listing-report/main/"
	applicationProofIndexURL = hkexNewsHost + "/app/appindex.html"

	legacyCalendarURL = "https://www.hkex.com.hk/Market-Data/IPO-Activity/IPO-Calendar?sc_lang=en"

	secondarySiteListURL = "http://www.aastocks.com/en/stocks/market/ipo/upcomingipo/company-summary"

	searchServletURL = hkexNewsHost + "/search/titleSearchServlet.do"
	searchXHTMLURL   = hkexNewsHost + "/search/titlesearch.xhtml"
)

// applicationProofFeed names one per-board JSON feed of application proofs.
type applicationProofFeed struct {
	Board string
	URL   string
}

var applicationProofFeeds = []applicationProofFeed{
	{Board: "Main Board", URL: hkexNewsHost + "/ncms/json/eds/app_mainindex_e.json"},
	{Board: "GEM", URL: hkexNewsHost + "/ncms/json/eds/app_gemindex_e.json"},
}
