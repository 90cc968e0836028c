package catalog

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/xenking/coffeeshop/internal/domain/apperr"
)

// Field limits for coffee attributes.
const (
	MinDescriptionLen = 10
	MaxDescriptionLen = 200
	PriceDecimals     = 2
)

// MaxPrice is the largest price a NUMERIC(10,2) column holds.
var MaxPrice = decimal.RequireFromString("99999999.99")

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Invalid("name", "must not be empty")
	}
	return name, nil
}

func validateDescription(desc string) error {
	n := utf8.RuneCountInString(desc)
	if n < MinDescriptionLen || n > MaxDescriptionLen {
		return apperr.Invalid("description", "must be between 10 and 200 characters")
	}
	return nil
}

func validatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return apperr.Invalid("price", "must be positive")
	}
	if price.GreaterThan(MaxPrice) {
		return apperr.Invalid("price", "must not exceed 99999999.99")
	}
	if !price.Equal(price.Truncate(PriceDecimals)) {
		return apperr.Invalid("price", "must have at most 2 decimal places")
	}
	return nil
}

func validateImageURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return apperr.Invalid("imageUrl", "must be a valid http(s) URL")
	}
	return nil
}

// normalizeTags trims names and drops duplicates, keeping first-seen order.
func normalizeTags(tags []string) ([]string, error) {
	if len(tags) == 0 {
		return nil, apperr.Invalid("tags", "must not be empty")
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, apperr.Invalid("tags", "must not contain empty names")
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}
