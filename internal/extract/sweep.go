package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"arenda-utils/pkg/models"
	"arenda-utils/pkg/utils"
)

const (
	// How far past an anchor the sweep looks for a price token
	priceWindow = 300

	// Anchor text that is site chrome, not a listing title
	genericLinkLabel = "подробнее"
)

var (
	itemAnchorRe = regexp.MustCompile(`(?is)<a[^>]+href="([^"]*?/item/[^"#?]+)[^"]*"[^>]*>(.*?)</a>`)
	innerTagRe   = regexp.MustCompile(`<[^>]+>`)
	priceTokenRe = regexp.MustCompile(`[\d\s\x{00A0}]+\s*₽`)
)

// SweepRegex is extraction tier 3, the last resort for markup too broken to
// parse structurally: anchors pointing at item pages recovered by pattern
// matching, each paired with the first ruble-marked token trailing it.
func SweepRegex(markup, baseURL string) []models.ExtractionCandidate {
	matches := itemAnchorRe.FindAllStringSubmatchIndex(markup, -1)
	if matches == nil {
		return nil
	}

	var items []models.ExtractionCandidate
	seen := make(map[string]struct{})

	for _, m := range matches {
		href := markup[m[2]:m[3]]
		inner := markup[m[4]:m[5]]

		title := normalizeText(innerTagRe.ReplaceAllString(inner, " "))
		if utf8.RuneCountInString(title) < 3 || strings.ToLower(title) == genericLinkLabel {
			continue
		}

		resolved := utils.ResolveURL(baseURL, href)
		if _, dup := seen[resolved]; dup {
			continue
		}
		seen[resolved] = struct{}{}

		c := models.ExtractionCandidate{
			Title: title,
			URL:   resolved,
		}

		tail := markup[m[1]:min(m[1]+priceWindow, len(markup))]
		if price := priceTokenRe.FindString(tail); price != "" {
			c.PriceRaw = normalizeText(price)
			c.PriceValue = digitsValue(c.PriceRaw)
		}

		items = append(items, c)
	}

	return items
}
