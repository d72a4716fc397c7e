// Package split divides a creator markup between the creator and the
// platform on top of the platform's existing profit.
package split

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/Simplici0/invoicecalc/internal/pricing"
)

const (
	// DefaultPercentage is the creator's share when nothing has been chosen yet.
	DefaultPercentage = 80

	minPercentage = 0
	maxPercentage = 100
)

// Split is the derived profit split for one set of inputs.
type Split struct {
	BasePrice         float64 `json:"basePrice"`
	CreatorMarkup     float64 `json:"creatorMarkup"`
	SplitPercentage   float64 `json:"splitPercentage"`
	FinalPrice        float64 `json:"finalPrice"`
	CreatorShare      float64 `json:"creatorShare"`
	CounterpartyShare float64 `json:"counterpartyShare"`
	InitialProfit     float64 `json:"initialProfit"`
	CounterpartyTotal float64 `json:"counterpartyTotal"`
	HasPositiveMarkup bool    `json:"hasPositiveMarkup"`
}

// Derive computes the split. Creator markup text that does not parse counts
// as zero; the percentage is clamped to [0, 100] before use.
func Derive(basePrice float64, creatorMarkupRaw string, splitPercentage, initialProfit float64) Split {
	markup, ok := pricing.ParseAmount(creatorMarkupRaw)
	if !ok {
		markup = 0
	}
	p := ClampPercentage(splitPercentage)

	counterpartyShare := markup * (maxPercentage - p) / 100
	return Split{
		BasePrice:         basePrice,
		CreatorMarkup:     markup,
		SplitPercentage:   p,
		FinalPrice:        basePrice + markup,
		CreatorShare:      markup * p / 100,
		CounterpartyShare: counterpartyShare,
		InitialProfit:     initialProfit,
		CounterpartyTotal: initialProfit + counterpartyShare,
		HasPositiveMarkup: markup > 0,
	}
}

// ClampPercentage pulls p into [0, 100]. NaN becomes 0.
func ClampPercentage(p float64) float64 {
	if math.IsNaN(p) {
		return minPercentage
	}
	return math.Min(maxPercentage, math.Max(minPercentage, p))
}

// ParsePercentage reads the percentage text box: the leading integer is
// used, anything unparseable is 0, and the result is clamped.
func ParsePercentage(raw string) float64 {
	s := strings.TrimSpace(raw)
	end := 0
	for end < len(s) {
		c := s[end]
		if c >= '0' && c <= '9' || end == 0 && (c == '-' || c == '+') {
			end++
			continue
		}
		break
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			if strings.HasPrefix(s, "-") {
				return minPercentage
			}
			return maxPercentage
		}
		return minPercentage
	}
	return ClampPercentage(float64(n))
}

// MarkupRequired reports whether the creator markup must be flagged: the
// split was adjusted while no positive markup was entered.
func MarkupRequired(splitTouched, hasPositiveMarkup bool) bool {
	return splitTouched && !hasPositiveMarkup
}
