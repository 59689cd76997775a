package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"arenda-utils/pkg/models"
	"arenda-utils/pkg/utils"
)

// Selector groups for the catalog markup. The site rotates hashed class
// names, so every group carries both the current hashes and the stable
// data-marker attributes.
const (
	cardSelectorPrimary  = `div.iva-item-content-fRmzq, div.iva-item-body-oMJBI`
	cardSelectorFallback = `div[data-marker="item"], div.iva-item-root, div.index-root, .js-catalog-item, [data-marker*="item"]`

	paramsSelector    = `p[data-marker="item-specific-params"]`
	cardImageSelector = `img.photo-slider-image-cD891[src], img[data-marker="image"], .iva-item-image img, [data-marker*="image"] img`

	pageTitleLinkSelector = `a[data-marker="item-title"][href], .iva-item-title a[href], a[href*="/item/"]`
)

var (
	titleLinkSelectors = []string{
		`a[data-marker="item-title"][href]`,
		`.iva-item-title a[href]`,
		`a[href*="/item/"]`,
		`a[title][href]`,
	}
	priceSelectors = []string{
		`p[data-marker="item-price"]`,
		`span[data-marker="item-price"]`,
		`.iva-item-price`,
		`[data-marker*="price"]`,
		`.price-price`,
		`[itemprop="offers"]`,
	}
	addressSelectors = []string{
		`[data-marker="item-address"]`,
		`.iva-item-address`,
		`[class*="address"]`,
		`[data-marker*="address"]`,
	}
	descriptionSelectors = []string{
		`div.iva-item-bottomBlock-VewGa p`,
		`[data-marker="item-description"]`,
		`[data-marker*="description"]`,
		`[class*="description"]`,
	}
)

// ExtractCards is extraction tier 1: listing cards located by structure. The
// markup is parsed as-is first; when that pass finds no candidates the markup
// is sanitized and parsed again, because raw dumps of hostile pages often
// carry byte noise that breaks tokenization.
func ExtractCards(markup, baseURL string) []models.ExtractionCandidate {
	if strings.TrimSpace(markup) == "" {
		return nil
	}

	cards := cardsFromMarkup(markup, baseURL)
	if len(cards) > 0 {
		return cards
	}

	if cleaned := sanitizeMarkup(markup); cleaned != markup {
		return cardsFromMarkup(cleaned, baseURL)
	}
	return cards
}

func cardsFromMarkup(markup, baseURL string) []models.ExtractionCandidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}

	nodes := doc.Find(cardSelectorPrimary)
	if nodes.Length() == 0 {
		nodes = doc.Find(cardSelectorFallback)
	}

	var cards []models.ExtractionCandidate
	nodes.Each(func(_ int, card *goquery.Selection) {
		c := extractCard(card, baseURL)
		if c.HasIdentity() {
			cards = append(cards, c)
		}
	})

	// Last resort inside this tier: no card container matched, but bare
	// title anchors may still be present at page level
	if len(cards) == 0 {
		cards = collectFromTitleLinks(doc, baseURL)
	}
	return cards
}

// extractCard reads every field independently; a missing sub-element leaves
// that field empty and never discards the card.
func extractCard(card *goquery.Selection, baseURL string) models.ExtractionCandidate {
	var c models.ExtractionCandidate

	if a := firstMatch(card, titleLinkSelectors); a != nil {
		title := strings.TrimSpace(a.AttrOr("title", ""))
		if title == "" {
			title = a.Text()
		}
		c.Title = normalizeText(title)
		c.URL = utils.ResolveURL(baseURL, a.AttrOr("href", ""))
	}

	if price := firstMatch(card, priceSelectors); price != nil {
		c.PriceRaw = normalizeText(price.Text())
		c.PriceValue = digitsValue(c.PriceRaw)
	}

	if params := card.Find(paramsSelector).First(); params.Length() > 0 {
		applyParamsLine(&c, normalizeText(params.Text()))
	}

	if addr := firstMatch(card, addressSelectors); addr != nil {
		c.Address = normalizeText(addr.Text())
		// District or metro often rides in the next sibling line
		if extra := addr.NextAllFiltered("p").First(); extra.Length() > 0 {
			if extraText := normalizeText(extra.Text()); extraText != "" {
				c.Address += ", " + extraText
			}
		}
	}

	if desc := firstMatch(card, descriptionSelectors); desc != nil {
		c.Description = normalizeText(desc.Text())
	}

	c.Images = collectImages(card, baseURL)
	return c
}

// collectFromTitleLinks builds minimal candidates from bare title anchors,
// enriching each with a price and address found in the nearest card-like
// ancestor.
func collectFromTitleLinks(doc *goquery.Document, baseURL string) []models.ExtractionCandidate {
	var cards []models.ExtractionCandidate

	doc.Find(pageTitleLinkSelector).Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		if href == "" {
			return
		}

		title := strings.TrimSpace(a.AttrOr("title", ""))
		if title == "" {
			title = a.Text()
		}

		c := models.ExtractionCandidate{
			Title: normalizeText(title),
			URL:   utils.ResolveURL(baseURL, href),
		}

		if container := nearestContainer(a, 6); container != nil {
			if price := container.Find(`p[data-marker="item-price"]`).First(); price.Length() > 0 {
				c.PriceRaw = normalizeText(price.Text())
				c.PriceValue = digitsValue(c.PriceRaw)
			}
			if addr := container.Find(`[data-marker="item-address"]`).First(); addr.Length() > 0 {
				c.Address = normalizeText(addr.Text())
			}
		}

		cards = append(cards, c)
	})

	return cards
}

// nearestContainer ascends from the node looking for a div ancestor, giving
// up after maxHops levels.
func nearestContainer(s *goquery.Selection, maxHops int) *goquery.Selection {
	node := s
	for i := 0; i < maxHops; i++ {
		if node.Is("div") {
			return node
		}
		node = node.Parent()
		if node.Length() == 0 {
			return nil
		}
	}
	if node.Is("div") {
		return node
	}
	return nil
}

// collectImages gathers the card's carousel image URLs, resolved to absolute
// form and deduplicated in document order.
func collectImages(card *goquery.Selection, baseURL string) []string {
	var images []string
	seen := make(map[string]struct{})

	card.Find(cardImageSelector).Each(func(_ int, img *goquery.Selection) {
		src := strings.TrimSpace(img.AttrOr("src", ""))
		if src == "" {
			return
		}
		resolved := utils.ResolveURL(baseURL, src)
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		images = append(images, resolved)
	})

	return images
}

// firstMatch returns the first selection matching any of the selectors, in
// the order given, or nil when none match.
func firstMatch(s *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if found := s.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return nil
}
