package extract

import "testing"

func TestSweepRegex_RecoversAnchorsWithPrices(t *testing.T) {
	markup := `<garbage><<<
<a class="x" href="/item/kvartira_11?slocation=1">Сдам <b>2-к. квартиру</b></a>
<span>45 000 ₽ в месяц</span>
<a href="https://x.test/item/komnata_12">Комната 12 м²</a> дешево: 9 000 ₽
`

	items := SweepRegex(markup, "https://x.test")
	if len(items) != 2 {
		t.Fatalf("SweepRegex returned %d items, want 2", len(items))
	}

	first := items[0]
	if first.Title != "Сдам 2-к. квартиру" {
		t.Errorf("Title = %q, want inner tags stripped", first.Title)
	}
	if first.URL != "https://x.test/item/kvartira_11" {
		t.Errorf("URL = %q, want query tail cut at the href boundary", first.URL)
	}
	if first.PriceValue == nil || *first.PriceValue != 45000 {
		t.Errorf("PriceValue = %v, want 45000 from the trailing window", first.PriceValue)
	}

	second := items[1]
	if second.URL != "https://x.test/item/komnata_12" {
		t.Errorf("URL = %q", second.URL)
	}
	if second.PriceValue == nil || *second.PriceValue != 9000 {
		t.Errorf("PriceValue = %v, want 9000", second.PriceValue)
	}
}

func TestSweepRegex_DropsGenericAndShortTitles(t *testing.T) {
	markup := `<a href="/item/aaa_1">Подробнее</a>
<a href="/item/bbb_2">ок</a>
<a href="/item/ccc_3">Настоящее объявление</a>`

	items := SweepRegex(markup, "https://x.test")
	if len(items) != 1 {
		t.Fatalf("SweepRegex returned %d items, want 1", len(items))
	}
	if items[0].URL != "https://x.test/item/ccc_3" {
		t.Errorf("URL = %q", items[0].URL)
	}
}

func TestSweepRegex_DeduplicatesByURLFirstSeen(t *testing.T) {
	markup := `<a href="/item/dup_5">Первое вхождение</a>
<a href="/item/dup_5">Второе вхождение</a>`

	items := SweepRegex(markup, "https://x.test")
	if len(items) != 1 {
		t.Fatalf("SweepRegex returned %d items, want 1", len(items))
	}
	if items[0].Title != "Первое вхождение" {
		t.Errorf("Title = %q, want the first occurrence kept", items[0].Title)
	}
}

func TestSweepRegex_NoMatches(t *testing.T) {
	if items := SweepRegex("<a href=\"/other/1\">не то</a>", "https://x.test"); len(items) != 0 {
		t.Errorf("SweepRegex returned %d items, want 0", len(items))
	}
}
