package models

import "time"

// RunResponse represents the outcome of a fetch-and-extract run
type RunResponse struct {
	Success        bool          `json:"success"`
	RunID          string        `json:"run_id"`
	CountSaved     int           `json:"count_saved"`
	Engine         string        `json:"engine_used,omitempty"`
	Error          string        `json:"error,omitempty"`
	ProcessingTime time.Duration `json:"processing_time"`
	RequestID      string        `json:"request_id"`
}

// ListingView is the trimmed listing shape consumed by control surfaces
type ListingView struct {
	URL           string `json:"url"`
	Title         string `json:"title,omitempty"`
	PriceRaw      string `json:"price,omitempty"`
	BailRaw       string `json:"bail,omitempty"`
	CommissionRaw string `json:"commission,omitempty"`
	ServicesRaw   string `json:"services,omitempty"`
	Address       string `json:"address,omitempty"`
	FirstImage    string `json:"first_image,omitempty"`
}

// ListingsResponse represents a page of persisted listings. Count is the
// total number of records in the store, not the page size.
type ListingsResponse struct {
	Count    int           `json:"count"`
	Listings []ListingView `json:"listings"`
}

// ViewOf converts a stored record into its control-surface view
func ViewOf(r ListingRecord) ListingView {
	return ListingView{
		URL:           r.URL,
		Title:         r.Title,
		PriceRaw:      r.PriceRaw,
		BailRaw:       r.BailRaw,
		CommissionRaw: r.CommissionRaw,
		ServicesRaw:   r.ServicesRaw,
		Address:       r.Address,
		FirstImage:    r.FirstImage(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    time.Duration     `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}
