// Package shipping turns a free-text locality into a shipping cost using the
// store's configured zones.
package shipping

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fjod/storefront/internal/domain"
)

const unknownLocalityMessage = "locality not recognized, default shipping price applied"

// Resolve quotes shipping for locality. Zones are scanned by ascending price,
// keeping configured order among equal prices, and the first one with a
// locality contained in the input, or containing it, wins. An unmatched
// locality soft-fails to defaultPrice.
func Resolve(locality string, zones []domain.ShippingZone, defaultPrice decimal.Decimal) (domain.ShippingQuote, error) {
	needle := normalize(locality)
	if needle == "" {
		return domain.ShippingQuote{Cost: decimal.Zero}, domain.InputError("missing locality")
	}

	for _, zone := range byPrice(zones) {
		if matches(needle, zone.Localities) {
			return domain.ShippingQuote{Cost: zone.Price, Zone: &zone}, nil
		}
	}

	return domain.ShippingQuote{
		Cost:      defaultPrice,
		Message:   unknownLocalityMessage,
		IsDefault: true,
	}, nil
}

// LiveResolve is used while the address is being typed. Empty input is not
// an error and yields a zero quote.
func LiveResolve(locality string, zones []domain.ShippingZone, defaultPrice decimal.Decimal) domain.ShippingQuote {
	q, err := Resolve(locality, zones, defaultPrice)
	if err != nil {
		return domain.ShippingQuote{Cost: decimal.Zero}
	}
	return q
}

// For binds settings so the checkout can call the resolvers as QuoteFuncs.
func For(settings domain.StoreSettings) (explicit, live domain.QuoteFunc) {
	explicit = func(address string) (domain.ShippingQuote, error) {
		return Resolve(address, settings.ShippingZones, settings.DefaultShippingPrice)
	}
	live = func(address string) (domain.ShippingQuote, error) {
		return LiveResolve(address, settings.ShippingZones, settings.DefaultShippingPrice), nil
	}
	return explicit, live
}

// byPrice returns a copy of zones sorted by ascending price.
func byPrice(zones []domain.ShippingZone) []domain.ShippingZone {
	sorted := make([]domain.ShippingZone, len(zones))
	copy(sorted, zones)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price.LessThan(sorted[j].Price)
	})
	return sorted
}

func matches(needle string, localities []string) bool {
	for _, l := range localities {
		l = normalize(l)
		if l == "" {
			continue
		}
		if strings.Contains(needle, l) || strings.Contains(l, needle) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
