package usecase

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// priceNoiseRegex matches everything a price token may carry besides digits and separators:
// currency signs, regular and non-breaking spaces, "руб.", "от" and the like.
var priceNoiseRegex = regexp.MustCompile(`[^0-9.,]`)

// priceScale is the number of fractional digits kept for money amounts
const priceScale = 2

// ParsePrice extracts a decimal amount from a scraped price token.
// Both "," and "." are treated as the decimal separator. The second return
// value is false for empty tokens and for tokens that do not form a single
// number after cleanup (e.g. "--" or "12.34.56"); it never defaults to zero.
func ParsePrice(raw string) (decimal.Decimal, bool) {
	cleaned := priceNoiseRegex.ReplaceAllString(raw, "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return decimal.Zero, false
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return amount.Round(priceScale), true
}

// parseNullablePrice is ParsePrice in the shape stored on catalog entries
func parseNullablePrice(raw string) decimal.NullDecimal {
	amount, ok := ParsePrice(raw)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(amount)
}
