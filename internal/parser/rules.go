package parser

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/mubureterrance/webscraper-scaffolding/internal/config"
	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

// RuleExtractor evaluates configured CSS and XPath rules relative to each
// element matched by ItemSelector. With no ItemSelector the whole document
// is a single item.
type RuleExtractor struct {
	ItemSelector string
	Rules        []config.ParseRule
	logger       *slog.Logger
}

// NewRuleExtractor creates a rule-driven extractor.
func NewRuleExtractor(itemSelector string, rules []config.ParseRule, logger *slog.Logger) *RuleExtractor {
	return &RuleExtractor{
		ItemSelector: itemSelector,
		Rules:        rules,
		logger:       logger.With("component", "rule_extractor"),
	}
}

// FromDocument implements DocumentFunc. Items for which no rule matched
// are dropped.
func (e *RuleExtractor) FromDocument(doc *goquery.Document, base *url.URL) []types.Record {
	items := doc.Selection
	if e.ItemSelector != "" {
		items = doc.Find(e.ItemSelector)
	}

	var records []types.Record
	items.Each(func(_ int, item *goquery.Selection) {
		rec := types.NewRecord()
		matched := false

		for _, rule := range e.Rules {
			var values []string
			switch rule.Type {
			case "", "css":
				values = e.extractCSS(item, rule, base)
			case "xpath":
				values = e.extractXPath(item, rule, base)
			default:
				continue
			}

			switch len(values) {
			case 0:
				rec[rule.Name] = nil
			case 1:
				rec[rule.Name] = values[0]
				matched = true
			default:
				rec[rule.Name] = values
				matched = true
			}
		}

		if matched {
			records = append(records, rec)
		}
	})

	return records
}

// extractCSS applies a single CSS rule and returns matched values.
func (e *RuleExtractor) extractCSS(item *goquery.Selection, rule config.ParseRule, base *url.URL) []string {
	var values []string

	item.Find(rule.Selector).Each(func(i int, sel *goquery.Selection) {
		var val string

		switch rule.Attribute {
		case "", "text":
			val = strings.TrimSpace(sel.Text())
		case "html", "innerHTML":
			val, _ = sel.Html()
		case "outerHTML":
			val, _ = goquery.OuterHtml(sel)
		default:
			val, _ = sel.Attr(rule.Attribute)
			val = resolveAttr(rule.Attribute, val, base)
		}

		if val != "" {
			values = append(values, val)
		}
	})

	return values
}

// extractXPath applies an XPath expression relative to the item's nodes.
func (e *RuleExtractor) extractXPath(item *goquery.Selection, rule config.ParseRule, base *url.URL) []string {
	var values []string

	for _, root := range item.Nodes {
		nodes, err := htmlquery.QueryAll(root, rule.Selector)
		if err != nil {
			e.logger.Warn("invalid xpath", "rule", rule.Name, "selector", rule.Selector, "error", err)
			return nil
		}

		for _, node := range nodes {
			var val string

			switch rule.Attribute {
			case "", "text":
				val = strings.TrimSpace(htmlquery.InnerText(node))
			case "html", "innerHTML":
				val = htmlquery.OutputHTML(node, false)
			case "outerHTML":
				val = htmlquery.OutputHTML(node, true)
			default:
				val = resolveAttr(rule.Attribute, attrOf(node, rule.Attribute), base)
			}

			if val != "" {
				values = append(values, val)
			}
		}
	}

	return values
}

// attrOf reads an attribute, or the value of an attribute node selected
// directly by the expression (e.g. .//a/@href).
func attrOf(node *html.Node, name string) string {
	if v := htmlquery.SelectAttr(node, name); v != "" {
		return v
	}
	if node.Data == name && len(node.Attr) == 0 {
		return strings.TrimSpace(htmlquery.InnerText(node))
	}
	return ""
}

func resolveAttr(name, val string, base *url.URL) string {
	switch name {
	case "href", "src":
		if strings.HasPrefix(strings.TrimSpace(val), "//") {
			return upgradeProtocolRelative(val)
		}
		return absURL(base, val)
	default:
		return val
	}
}
