package extract

import (
	"arenda-utils/internal/logging"
	"arenda-utils/pkg/models"
)

// Pipeline runs the extraction tiers in order. Tiers 1 and 2 are additive;
// the regex sweep only fires when both came back empty. Each tier is a pure
// function of the markup, so the pipeline owns no state beyond the base URL
// candidates resolve against.
type Pipeline struct {
	baseURL string
	logger  logging.Logger
}

// NewPipeline creates an extraction pipeline resolving relative URLs against
// baseURL.
func NewPipeline(baseURL string) *Pipeline {
	return &Pipeline{
		baseURL: baseURL,
		logger:  logging.GetGlobalLogger().WithField("component", "extract"),
	}
}

// ExtractAll converts raw markup into the full ordered candidate set.
// Malformed input yields an empty set, never an error.
func (p *Pipeline) ExtractAll(markup string) []models.ExtractionCandidate {
	cards := ExtractCards(markup, p.baseURL)
	structured := ExtractStructured(markup, p.baseURL)

	candidates := make([]models.ExtractionCandidate, 0, len(cards)+len(structured))
	candidates = append(candidates, cards...)
	candidates = append(candidates, structured...)

	sweepUsed := false
	if len(candidates) == 0 {
		candidates = SweepRegex(markup, p.baseURL)
		sweepUsed = true
	}

	p.logger.Debug("Extraction pass finished", map[string]interface{}{
		"cards":      len(cards),
		"structured": len(structured),
		"sweep_used": sweepUsed,
		"total":      len(candidates),
	})

	return candidates
}
