package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

const (
	GameCardSelector      = ".media"
	GameGridCardSelector  = ".gameGridContainer .gameGridItem"
	GameDetailContainer   = ".game-page"
	gameTrailerSelector   = `a[href*="youtube"], a[href*="trailer"], .trailer-link`
	gameReleaseSelector   = ".game-release-date, .release-date"
	gamePlatformSelector  = ".game-platforms a, .platforms a"
	gamePublisherSelector = `.game-companies a[href*="companies"]`
)

// GameDetailFields are the fields a game detail page contributes.
var GameDetailFields = []string{"genres", "platforms", "publishers", "trailer"}

// ExtractGames reads upcoming-game cards in document order. Both listing
// layouts are recognized: `.media` rows and `.gameGridItem` tiles. Grid
// tiles without a title are skipped. Relative links are resolved against
// base; protocol-relative images are upgraded to https.
func ExtractGames(doc *goquery.Document, base *url.URL) []types.Record {
	var records []types.Record

	doc.Find(GameCardSelector+", "+GameGridCardSelector).Each(func(_ int, card *goquery.Selection) {
		var rec types.Record
		if card.HasClass("gameGridItem") {
			rec = gridCard(card, base)
		} else {
			rec = mediaCard(card, base)
		}
		if rec != nil {
			records = append(records, rec)
		}
	})

	return records
}

func mediaCard(card *goquery.Selection, base *url.URL) types.Record {
	rec := types.NewRecord()

	anchor := card.Find(".media-body a").First()
	rec.SetString("title", anchor.Text())
	href, _ := anchor.Attr("href")
	rec.SetString("link", absURL(base, href))

	released, _ := card.Find("time").First().Attr("datetime")
	rec.SetString("release_date", released)

	src, _ := card.Find("img").First().Attr("src")
	rec.SetString("image", upgradeProtocolRelative(src))
	return rec
}

func gridCard(card *goquery.Selection, base *url.URL) types.Record {
	anchor := card.Find(".gameGridTitle a").First()
	title := strings.TrimSpace(anchor.Text())
	if title == "" {
		return nil
	}

	rec := types.NewRecord()
	rec.SetString("title", title)
	href, _ := anchor.Attr("href")
	rec.SetString("link", absURL(base, href))
	rec.SetString("release_date", card.Find(".gameGridReleaseDate").First().Text())

	img := card.Find(".gameGridImage img").First()
	src := strings.TrimSpace(img.AttrOr("src", ""))
	if src == "" {
		src = img.AttrOr("data-src", "")
	}
	rec.SetString("image", upgradeProtocolRelative(src))
	return rec
}

// ExtractGameDetail reads a game's detail page. It fails with
// ErrDetailMissing when the page container is absent. Empty groups are
// left nil so normalization fills the sentinel.
func ExtractGameDetail(doc *goquery.Document, base *url.URL) (types.Record, error) {
	page := doc.Find(GameDetailContainer)
	if page.Length() == 0 {
		return nil, types.ErrDetailMissing
	}

	rec := types.NewRecord()
	setList(rec, "genres", texts(doc.Selection, ".game-genres a"))
	setList(rec, "platforms", texts(doc.Selection, gamePlatformSelector))
	setList(rec, "publishers", texts(doc.Selection, gamePublisherSelector))

	// Only a more specific date replaces the listing date.
	if date := firstText(doc.Selection, gameReleaseSelector); date != "" {
		rec.SetString("release_date", date)
	}

	trailer := doc.Find(gameTrailerSelector).First()
	href, _ := trailer.Attr("href")
	rec.SetString("trailer", absURL(base, href))

	return rec, nil
}

// GamePlaceholder is the detail group substituted when a detail page cannot
// be read.
func GamePlaceholder() types.Record {
	return types.Record{
		"genres":     []string{types.Unknown},
		"platforms":  []string{types.Unknown},
		"publishers": []string{types.Unknown},
		"trailer":    types.Unknown,
	}
}

func setList(rec types.Record, key string, values []string) {
	if len(values) == 0 {
		rec[key] = nil
		return
	}
	rec[key] = values
}

func upgradeProtocolRelative(src string) string {
	src = strings.TrimSpace(src)
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	return src
}
