package utils

import "testing"

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		href string
		want string
	}{
		{
			name: "root relative joins onto base origin",
			base: "https://www.avito.ru/moskva/kvartiry",
			href: "/item/kvartira_123",
			want: "https://www.avito.ru/item/kvartira_123",
		},
		{
			name: "protocol relative gets https",
			base: "https://www.avito.ru",
			href: "//img.avito.st/photo/1.jpg",
			want: "https://img.avito.st/photo/1.jpg",
		},
		{
			name: "absolute passes through",
			base: "https://www.avito.ru",
			href: "https://other.example.com/item/9",
			want: "https://other.example.com/item/9",
		},
		{
			name: "empty href stays empty",
			base: "https://www.avito.ru",
			href: "",
			want: "",
		},
		{
			name: "whitespace only href stays empty",
			base: "https://www.avito.ru",
			href: "   ",
			want: "",
		},
		{
			name: "schemeless base leaves href alone",
			base: "not a url",
			href: "/item/5",
			want: "/item/5",
		},
		{
			name: "empty base leaves href alone",
			base: "",
			href: "/item/5",
			want: "/item/5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveURL(tt.base, tt.href); got != tt.want {
				t.Errorf("ResolveURL(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.want)
			}
		})
	}
}

func TestExtractDomain(t *testing.T) {
	got, err := ExtractDomain("https://www.avito.ru/moskva/kvartiry?p=2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "avito.ru" {
		t.Errorf("expected avito.ru, got %q", got)
	}
}

func TestExtractDomain_KeepsNonWWWSubdomains(t *testing.T) {
	got, err := ExtractDomain("https://m.avito.ru/moskva")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "m.avito.ru" {
		t.Errorf("expected m.avito.ru, got %q", got)
	}
}

func TestExtractDomain_NoHostname(t *testing.T) {
	if _, err := ExtractDomain("/just/a/path"); err == nil {
		t.Error("expected an error for a URL without a hostname")
	}
}
