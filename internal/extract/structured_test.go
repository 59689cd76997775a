package extract

import "testing"

func TestExtractStructured_GraphOffers(t *testing.T) {
	markup := `<html><head>
<script type="application/ld+json">
{"@graph":[{"@type":"Product","offers":{"@type":"AggregateOffer","offers":[
  {"name":"Квартира у метро","url":"/item/metro_1","price":52000,"priceCurrency":"RUB","image":["/img/m1.jpg","//cdn.x.test/m2.jpg"]},
  {"name":"Комната в центре","url":"https://x.test/item/center_2","price":"18000","priceCurrency":"RUB","image":"/img/c.jpg"}
]}}]}
</script>
</head><body></body></html>`

	items := ExtractStructured(markup, "https://x.test")
	if len(items) != 2 {
		t.Fatalf("ExtractStructured returned %d items, want 2", len(items))
	}

	first := items[0]
	if first.Title != "Квартира у метро" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.URL != "https://x.test/item/metro_1" {
		t.Errorf("URL = %q", first.URL)
	}
	if first.PriceRaw != "52000 RUB" {
		t.Errorf("PriceRaw = %q", first.PriceRaw)
	}
	if first.PriceValue == nil || *first.PriceValue != 52000 {
		t.Errorf("PriceValue = %v, want 52000", first.PriceValue)
	}
	if len(first.Images) != 2 || first.Images[1] != "https://cdn.x.test/m2.jpg" {
		t.Errorf("Images = %v", first.Images)
	}

	second := items[1]
	if second.URL != "https://x.test/item/center_2" {
		t.Errorf("URL = %q", second.URL)
	}
	if len(second.Images) != 1 || second.Images[0] != "https://x.test/img/c.jpg" {
		t.Errorf("Images = %v, want single string image resolved", second.Images)
	}
}

func TestExtractStructured_FlatProduct(t *testing.T) {
	markup := `<script type="application/ld+json">
{"@type":"Product","name":"Студия 24 м²","url":"/item/studio_3",
 "offers":{"price":"30 000","priceCurrency":"RUB"},
 "image":"/img/s.jpg",
 "address":{"streetAddress":"Ленина, 5","addressLocality":"Москва"},
 "description":"Уютная студия"}
</script>`

	items := ExtractStructured(markup, "https://x.test")
	if len(items) != 1 {
		t.Fatalf("ExtractStructured returned %d items, want 1", len(items))
	}
	c := items[0]
	if c.Title != "Студия 24 м²" {
		t.Errorf("Title = %q", c.Title)
	}
	if c.PriceRaw != "30 000 RUB" {
		t.Errorf("PriceRaw = %q", c.PriceRaw)
	}
	if c.PriceValue == nil || *c.PriceValue != 30000 {
		t.Errorf("PriceValue = %v, want 30000", c.PriceValue)
	}
	if c.Address != "Ленина, 5, Москва" {
		t.Errorf("Address = %q", c.Address)
	}
	if c.Description != "Уютная студия" {
		t.Errorf("Description = %q", c.Description)
	}
}

func TestExtractStructured_BadBlockDoesNotAbortScan(t *testing.T) {
	markup := `<script type="application/ld+json">{not json at all</script>
<script type="application/ld+json">{"name":"Живой блок","url":"/item/ok_4"}</script>`

	items := ExtractStructured(markup, "https://x.test")
	if len(items) != 1 {
		t.Fatalf("ExtractStructured returned %d items, want 1", len(items))
	}
	if items[0].URL != "https://x.test/item/ok_4" {
		t.Errorf("URL = %q", items[0].URL)
	}
}

func TestExtractStructured_InlineStateFallback(t *testing.T) {
	markup := `<script>window.__INITIAL_STATE__ = {"catalog":{"items":[
{"title":"Студия у парка","url":"/item/park_9","price":{"value":30000,"currency":"RUB"},"images":[{"url":"//cdn.x.test/p.jpg"},"/img/p2.jpg"]}
]}};</script>`

	items := ExtractStructured(markup, "https://x.test")
	if len(items) != 1 {
		t.Fatalf("ExtractStructured returned %d items, want 1", len(items))
	}
	c := items[0]
	if c.Title != "Студия у парка" {
		t.Errorf("Title = %q", c.Title)
	}
	if c.URL != "https://x.test/item/park_9" {
		t.Errorf("URL = %q", c.URL)
	}
	if c.PriceRaw != "30000 RUB" {
		t.Errorf("PriceRaw = %q", c.PriceRaw)
	}
	if len(c.Images) != 2 || c.Images[0] != "https://cdn.x.test/p.jpg" || c.Images[1] != "https://x.test/img/p2.jpg" {
		t.Errorf("Images = %v", c.Images)
	}
}

func TestExtractStructured_InlineStateIgnoredWhenScriptsYield(t *testing.T) {
	markup := `<script type="application/ld+json">{"name":"Из разметки","url":"/item/ld_1"}</script>
<script>window.__INITIAL_STATE__ = {"items":[{"title":"Из состояния","url":"/item/state_2"}]};</script>`

	items := ExtractStructured(markup, "https://x.test")
	if len(items) != 1 {
		t.Fatalf("ExtractStructured returned %d items, want 1", len(items))
	}
	if items[0].URL != "https://x.test/item/ld_1" {
		t.Errorf("URL = %q, inline state should stay untouched when ld+json yields", items[0].URL)
	}
}

func TestExtractStructured_NoScripts(t *testing.T) {
	if items := ExtractStructured("<html><body><p>пусто</p></body></html>", "https://x.test"); len(items) != 0 {
		t.Errorf("ExtractStructured returned %d items, want 0", len(items))
	}
}
