package parser

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

// Broker card selectors. Directory themes have shipped all three.
const (
	BrokerCardSelector    = ".broker-result, .broker-card, .result-item"
	brokerFirmSelector    = ".firm-name"
	brokerCompanySelector = ".company-name"
)

// ExtractBrokers reads business-broker cards. Cards without a firm name are
// skipped; a missing contact or email becomes a nil field.
func ExtractBrokers(doc *goquery.Document, _ *url.URL) []types.Record {
	var records []types.Record

	doc.Find(BrokerCardSelector).Each(func(_ int, card *goquery.Selection) {
		firm := firstText(card, brokerFirmSelector, brokerCompanySelector)
		if firm == "" {
			return
		}

		rec := types.NewRecord()
		rec.SetString("firm", firm)
		rec.SetString("contact_person", firstText(card, ".contact-name", ".broker-name"))
		rec.SetString("email", mailto(card))
		records = append(records, rec)
	})

	return records
}

// mailto returns the address of the first mailto link in sel.
func mailto(sel *goquery.Selection) string {
	href, ok := sel.Find(`a[href^="mailto:"]`).First().Attr("href")
	if !ok {
		return ""
	}
	return mailtoAddr(href)
}

// mailtoAddr strips the scheme and any query from a mailto href.
func mailtoAddr(href string) string {
	addr := strings.TrimPrefix(strings.TrimSpace(href), "mailto:")
	if i := strings.Index(addr, "?"); i >= 0 {
		addr = addr[:i]
	}
	return strings.TrimSpace(addr)
}

// brokerEntry is one element of the broker directory API response.
type brokerEntry struct {
	Company   string `json:"company"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// DecodeBrokerAPI decodes the broker directory JSON array. Name parts are
// kept separate; the normalizer joins them. The API returns HTML-escaped
// text (e.g. "Smith &amp; Co").
func DecodeBrokerAPI(body []byte) ([]types.Record, error) {
	var entries []brokerEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode broker list: %w", err)
	}

	records := make([]types.Record, 0, len(entries))
	for _, e := range entries {
		rec := types.NewRecord()
		rec.SetString("company", html.UnescapeString(e.Company))
		rec.SetString("first_name", html.UnescapeString(e.FirstName))
		rec.SetString("last_name", html.UnescapeString(e.LastName))
		rec.SetString("email", html.UnescapeString(e.Email))
		records = append(records, rec)
	}
	return records, nil
}
