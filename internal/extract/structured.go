package extract

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"arenda-utils/pkg/models"
	"arenda-utils/pkg/utils"
)

// Global-state markers the site embeds its client-side catalog under.
var stateMarkers = []string{"__INITIAL_STATE__", "__AVITO_STATE__"}

// Keys whose list values the state walk treats as listing collections.
var listingListKeys = map[string]struct{}{
	"items": {},
	"list":  {},
	"docs":  {},
}

// ExtractStructured is extraction tier 2: structured-data script blocks,
// falling back to the inline client-state blob when no such block yields a
// candidate. It always runs and its output is appended to tier 1's; the two
// tiers are additive so listings present only in embedded data still surface.
func ExtractStructured(markup, baseURL string) []models.ExtractionCandidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}

	var items []models.ExtractionCandidate

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data interface{}
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			// One bad block never aborts the scan
			return
		}
		items = append(items, candidatesFromGraph(data, baseURL)...)
		items = append(items, candidatesFromFlat(data, baseURL)...)
	})

	if len(items) == 0 {
		items = candidatesFromInlineState(doc, baseURL)
	}

	return items
}

// candidatesFromGraph walks the graph-style document shape: @graph entries
// holding an offer collection nested one level down.
func candidatesFromGraph(data interface{}, baseURL string) []models.ExtractionCandidate {
	root, ok := data.(map[string]interface{})
	if !ok {
		return nil
	}
	graph, ok := root["@graph"].([]interface{})
	if !ok {
		return nil
	}

	var items []models.ExtractionCandidate
	for _, entry := range graph {
		node, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		collection, ok := node["offers"].(map[string]interface{})
		if !ok {
			continue
		}
		offers, ok := collection["offers"].([]interface{})
		if !ok {
			continue
		}
		for _, raw := range offers {
			offer, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			c := models.ExtractionCandidate{
				Title:  asString(offer["name"]),
				URL:    resolveJSONURL(offer["url"], baseURL),
				Images: imageList(offer["image"], baseURL),
			}
			c.PriceRaw = joinPrice(asString(offer["price"]), asString(offer["priceCurrency"]))
			c.PriceValue = digitsValue(c.PriceRaw)
			if c.HasIdentity() {
				items = append(items, c)
			}
		}
	}
	return items
}

// candidatesFromFlat maps flat listing/product-style objects: a single object
// or a list of them at top level.
func candidatesFromFlat(data interface{}, baseURL string) []models.ExtractionCandidate {
	payloads, ok := data.([]interface{})
	if !ok {
		payloads = []interface{}{data}
	}

	var items []models.ExtractionCandidate
	for _, raw := range payloads {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}

		title := asString(obj["name"])
		if title == "" {
			title = asString(obj["headline"])
		}

		c := models.ExtractionCandidate{
			Title:       title,
			URL:         resolveJSONURL(obj["url"], baseURL),
			Images:      imageList(obj["image"], baseURL),
			Description: asString(obj["description"]),
		}

		if offers, ok := obj["offers"].(map[string]interface{}); ok {
			c.PriceRaw = joinPrice(asString(offers["price"]), asString(offers["priceCurrency"]))
			c.PriceValue = digitsValue(c.PriceRaw)
		}

		if addr, ok := obj["address"].(map[string]interface{}); ok {
			var parts []string
			for _, key := range []string{"streetAddress", "addressLocality"} {
				if v := asString(addr[key]); v != "" {
					parts = append(parts, v)
				}
			}
			c.Address = strings.Join(parts, ", ")
		}

		if c.HasIdentity() {
			items = append(items, c)
		}
	}
	return items
}

// candidatesFromInlineState scans plain script bodies for the client-state
// blob, isolates the outermost brace-delimited region, and walks the parsed
// value for listing collections.
func candidatesFromInlineState(doc *goquery.Document, baseURL string) []models.ExtractionCandidate {
	var items []models.ExtractionCandidate

	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !containsStateMarker(text) {
			return true
		}

		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start == -1 || end <= start {
			return true
		}

		var state interface{}
		if err := json.Unmarshal([]byte(text[start:end+1]), &state); err != nil {
			return true
		}

		walkStateLists(state, func(entry map[string]interface{}) {
			c := stateCandidate(entry, baseURL)
			if c.HasIdentity() {
				items = append(items, c)
			}
		})

		// First script that yields candidates settles the fallback
		return len(items) == 0
	})

	return items
}

func containsStateMarker(text string) bool {
	for _, marker := range stateMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// walkStateLists recursively visits the parsed state and yields every element
// of a list stored under a collection key ("items", "list", "docs").
func walkStateLists(node interface{}, yield func(map[string]interface{})) {
	switch t := node.(type) {
	case map[string]interface{}:
		for key, value := range t {
			if list, ok := value.([]interface{}); ok {
				if _, isListing := listingListKeys[strings.ToLower(key)]; isListing {
					for _, entry := range list {
						if obj, ok := entry.(map[string]interface{}); ok {
							yield(obj)
						}
					}
					continue
				}
			}
			walkStateLists(value, yield)
		}
	case []interface{}:
		for _, entry := range t {
			walkStateLists(entry, yield)
		}
	}
}

// stateCandidate maps one client-state entry into a candidate using the
// loose field names the blob uses across payload versions.
func stateCandidate(entry map[string]interface{}, baseURL string) models.ExtractionCandidate {
	title := asString(entry["title"])
	if title == "" {
		title = asString(entry["name"])
	}

	rawURL := entry["url"]
	if rawURL == nil {
		rawURL = entry["uri"]
	}

	c := models.ExtractionCandidate{
		Title: title,
		URL:   resolveJSONURL(rawURL, baseURL),
	}

	if price, ok := entry["price"].(map[string]interface{}); ok {
		value := asString(price["value"])
		if value == "" {
			value = asString(price["price"])
		}
		c.PriceRaw = joinPrice(value, asString(price["currency"]))
		c.PriceValue = digitsValue(c.PriceRaw)
	}

	pics := entry["images"]
	if pics == nil {
		pics = entry["thumbnails"]
	}
	if list, ok := pics.([]interface{}); ok {
		seen := make(map[string]struct{})
		for _, pic := range list {
			var src string
			switch p := pic.(type) {
			case string:
				src = p
			case map[string]interface{}:
				src = asString(p["url"])
			}
			if src == "" {
				continue
			}
			resolved := utils.ResolveURL(baseURL, src)
			if _, dup := seen[resolved]; dup {
				continue
			}
			seen[resolved] = struct{}{}
			c.Images = append(c.Images, resolved)
		}
	}

	return c
}

// imageList maps an image field that may be a single URL or a list of them
// into resolved absolute URLs, deduplicated in document order.
func imageList(v interface{}, baseURL string) []string {
	var raw []interface{}
	switch t := v.(type) {
	case string:
		raw = []interface{}{t}
	case []interface{}:
		raw = t
	default:
		return nil
	}

	var images []string
	seen := make(map[string]struct{})
	for _, entry := range raw {
		src := asString(entry)
		if src == "" {
			continue
		}
		resolved := utils.ResolveURL(baseURL, src)
		if _, dup := seen[resolved]; dup {
			continue
		}
		seen[resolved] = struct{}{}
		images = append(images, resolved)
	}
	return images
}

// asString renders a JSON scalar as text. Numbers print without an exponent
// so price digits survive.
func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// resolveJSONURL resolves a URL field that may be absent or non-string.
func resolveJSONURL(v interface{}, baseURL string) string {
	s := asString(v)
	if s == "" {
		return ""
	}
	return utils.ResolveURL(baseURL, s)
}

// joinPrice renders "price currency", dropping whichever part is missing.
func joinPrice(price, currency string) string {
	if price == "" {
		return ""
	}
	if currency == "" {
		return price
	}
	return price + " " + currency
}
