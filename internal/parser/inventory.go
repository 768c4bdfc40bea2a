package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mcnijman/go-emailaddress"
	"golang.org/x/net/html"

	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

// Inventory record kinds.
const (
	KindLink  = "link"
	KindImage = "image"
	KindEmail = "email"
)

const emailishSelector = `.email, .contact-email, .e-mail, [class*="email"], [id*="email"]`

// ExtractInventory lists every unique link, image and email address on the
// page as {kind, value} records. Links come first, then images, then
// emails, each in document order.
func ExtractInventory(doc *goquery.Document, base *url.URL) []types.Record {
	var records []types.Record
	add := func(kind string, values []string) {
		for _, v := range values {
			rec := types.NewRecord()
			rec.SetString("kind", kind)
			rec.SetString("value", v)
			records = append(records, rec)
		}
	}

	add(KindLink, uniqueAttr(doc, "a", "href", base))
	add(KindImage, uniqueAttr(doc, "img", "src", base))
	add(KindEmail, ExtractEmails(doc))
	return records
}

func uniqueAttr(doc *goquery.Document, selector, attr string, base *url.URL) []string {
	seen := make(map[string]bool)
	var out []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		raw, ok := s.Attr(attr)
		if !ok {
			return
		}
		v := absURL(base, raw)
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	})
	return out
}

// ExtractEmails finds email addresses in visible text, mailto links,
// data-email/data-mail attributes and email-ish elements. Addresses are
// deduplicated case-insensitively; the first spelling seen is kept.
func ExtractEmails(doc *goquery.Document) []string {
	var emails []string
	seen := make(map[string]bool)
	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return
		}
		if _, err := emailaddress.Parse(addr); err != nil {
			return
		}
		key := strings.ToLower(addr)
		if seen[key] {
			return
		}
		seen[key] = true
		emails = append(emails, addr)
	}
	addFound := func(text string) {
		for _, e := range emailaddress.Find([]byte(text), false) {
			add(e.String())
		}
	}

	body := doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	addFound(visibleText(body))

	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		add(mailtoAddr(href))
	})

	doc.Find("[data-email], [data-mail]").Each(func(_ int, s *goquery.Selection) {
		v, ok := s.Attr("data-email")
		if !ok || v == "" {
			v, _ = s.Attr("data-mail")
		}
		add(v)
	})

	doc.Find(emailishSelector).Each(func(_ int, s *goquery.Selection) {
		addFound(visibleText(s))
	})

	return emails
}

// visibleText joins the page's text nodes with spaces so that adjacent
// block elements do not run together.
func visibleText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteByte(' ')
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}
