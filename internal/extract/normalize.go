package extract

import (
	"regexp"
	"strconv"
	"strings"

	"arenda-utils/pkg/models"
)

var (
	collapseSpaceRe = regexp.MustCompile(`[\s\x{00A0}]+`)
	nonDigitRe      = regexp.MustCompile(`\D`)
	percentRe       = regexp.MustCompile(`(\d+)%`)
	commissionRe    = regexp.MustCompile(`комиссия\s*(\d+)`)
)

// normalizeText collapses runs of whitespace, including non-breaking spaces,
// into single spaces and trims the result.
func normalizeText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(collapseSpaceRe.ReplaceAllString(s, " "))
}

// digitsValue parses the integer hidden in price-like text ("45 000 ₽" is
// 45000). Returns nil when the text carries no digits.
func digitsValue(s string) *int {
	if s == "" {
		return nil
	}
	digits := nonDigitRe.ReplaceAllString(s, "")
	if digits == "" {
		return nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return &n
}

// percentValue parses a commission percentage: an explicit "NN%" first, then
// a looser "комиссия NN" form. Returns nil when neither matches.
func percentValue(s string) *int {
	if s == "" {
		return nil
	}
	if m := percentRe.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return &n
		}
	}
	if m := commissionRe.FindStringSubmatch(strings.ToLower(s)); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return &n
		}
	}
	return nil
}

// applyParamsLine splits the card's composite params line on the middle-dot
// separator and routes each part to bail, commission or utilities by its
// leading keyword. Unrecognized parts are ignored.
func applyParamsLine(c *models.ExtractionCandidate, line string) {
	for _, part := range strings.Split(line, "·") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "Залог"):
			c.BailRaw = part
			c.BailValue = digitsValue(part)
		case strings.HasPrefix(part, "Комиссия"), strings.HasPrefix(part, "Без комиссии"):
			c.CommissionRaw = part
			c.CommissionValue = percentValue(part)
		case strings.HasPrefix(part, "ЖКУ"), strings.Contains(part, "счетчики"):
			c.ServicesRaw = part
		}
	}
}

// sanitizeMarkup strips the byte noise that defeats the HTML tokenizer in
// messy real-world dumps: invalid UTF-8 sequences and control characters
// other than tab and line breaks.
func sanitizeMarkup(markup string) string {
	cleaned := strings.ToValidUTF8(markup, "")
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, cleaned)
}
