package models

import "time"

// ListingRecord represents one classified ad persisted by the listing store.
// The absolute listing URL is the unique identity key; a record without a URL
// is never persisted.
type ListingRecord struct {
	URL             string    `json:"url" validate:"required,url"`
	Title           string    `json:"title,omitempty"`
	PriceRaw        string    `json:"price_raw,omitempty"`
	PriceValue      *int      `json:"price_value,omitempty"`
	BailRaw         string    `json:"bail_raw,omitempty"`
	BailValue       *int      `json:"bail_value,omitempty"`
	CommissionRaw   string    `json:"commission_raw,omitempty"`
	CommissionValue *int      `json:"commission_value,omitempty"`
	ServicesRaw     string    `json:"services_raw,omitempty"`
	Address         string    `json:"address,omitempty"`
	Description     string    `json:"description,omitempty"`
	Images          []string  `json:"images,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// FirstImage returns the first image URL or an empty string
func (r *ListingRecord) FirstImage() string {
	if len(r.Images) == 0 {
		return ""
	}
	return r.Images[0]
}

// ExtractionCandidate is the provisional listing shape produced by the
// extraction tiers before reconciliation. Every field is optional; a candidate
// carrying neither URL nor title is discarded by the pipeline and never
// reaches the reconciler.
type ExtractionCandidate struct {
	URL             string   `json:"url,omitempty"`
	Title           string   `json:"title,omitempty"`
	PriceRaw        string   `json:"price_raw,omitempty"`
	PriceValue      *int     `json:"price_value,omitempty"`
	BailRaw         string   `json:"bail_raw,omitempty"`
	BailValue       *int     `json:"bail_value,omitempty"`
	CommissionRaw   string   `json:"commission_raw,omitempty"`
	CommissionValue *int     `json:"commission_value,omitempty"`
	ServicesRaw     string   `json:"services_raw,omitempty"`
	Address         string   `json:"address,omitempty"`
	Description     string   `json:"description,omitempty"`
	Images          []string `json:"images,omitempty"`
}

// HasIdentity reports whether the candidate carries at least one of the two
// identifying fields (URL or title)
func (c *ExtractionCandidate) HasIdentity() bool {
	return c.URL != "" || c.Title != ""
}

// Record converts the candidate into a ListingRecord. Timestamps are left
// zero; the store owns created_at/updated_at on upsert.
func (c *ExtractionCandidate) Record() ListingRecord {
	return ListingRecord{
		URL:             c.URL,
		Title:           c.Title,
		PriceRaw:        c.PriceRaw,
		PriceValue:      c.PriceValue,
		BailRaw:         c.BailRaw,
		BailValue:       c.BailValue,
		CommissionRaw:   c.CommissionRaw,
		CommissionValue: c.CommissionValue,
		ServicesRaw:     c.ServicesRaw,
		Address:         c.Address,
		Description:     c.Description,
		Images:          c.Images,
	}
}
