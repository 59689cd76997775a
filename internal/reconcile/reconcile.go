package reconcile

import "arenda-utils/pkg/models"

// Reconcile collapses a batch of extraction candidates to one record per URL,
// ready for upsert. Candidates without a URL are dropped before grouping. When
// several candidates describe the same URL, one carrying images beats one
// without; otherwise the earliest-seen candidate wins. Grouping is by URL
// equality alone; no title similarity is consulted. Output preserves
// first-seen URL order.
func Reconcile(candidates []models.ExtractionCandidate) []models.ListingRecord {
	byURL := make(map[string]models.ExtractionCandidate)
	order := make([]string, 0, len(candidates))

	for _, c := range candidates {
		if c.URL == "" {
			continue
		}

		existing, seen := byURL[c.URL]
		if !seen {
			byURL[c.URL] = c
			order = append(order, c.URL)
			continue
		}

		if len(c.Images) > 0 && len(existing.Images) == 0 {
			byURL[c.URL] = c
		}
	}

	records := make([]models.ListingRecord, 0, len(order))
	for _, url := range order {
		winner := byURL[url]
		records = append(records, winner.Record())
	}
	return records
}
