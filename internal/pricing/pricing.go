package pricing

import (
	"fmt"
	"math"
	"strconv"

	"github.com/xdmy1/colete/internal/models"
)

// DefaultRatePerKg is the flat tariff applied to every route.
const DefaultRatePerKg = 1.5

// TransferLabel is appended to a parcel when an admin moves it to another
// driver. It must never be duplicated on repeated transfers.
const TransferLabel = "L"

// Destination describes a serviced country endpoint.
type Destination struct {
	Code       models.DestinationCode
	Label      string
	ShortLabel string
}

// Destinations enumerates every serviced endpoint.
var Destinations = []Destination{
	{Code: models.DestUK, Label: "Anglia", ShortLabel: "A"},
	{Code: models.DestBE, Label: "Belgia", ShortLabel: "B"},
	{Code: models.DestNL, Label: "Olanda", ShortLabel: "OL"},
	{Code: models.DestMD, Label: "Moldova", ShortLabel: "MD"},
}

// Route is a directed (origin, destination) pair.
type Route struct {
	Origin      models.DestinationCode
	Destination models.DestinationCode
}

// Routes is the closed set of serviced directed routes: Moldova paired with
// each of the three western endpoints, both directions. Not user-editable.
var Routes = []Route{
	{Origin: models.DestMD, Destination: models.DestUK},
	{Origin: models.DestMD, Destination: models.DestBE},
	{Origin: models.DestMD, Destination: models.DestNL},
	{Origin: models.DestUK, Destination: models.DestMD},
	{Origin: models.DestBE, Destination: models.DestMD},
	{Origin: models.DestNL, Destination: models.DestMD},
}

// IsValidRoute reports whether the directed pair is serviced.
func IsValidRoute(origin, destination models.DestinationCode) bool {
	for _, r := range Routes {
		if r.Origin == origin && r.Destination == destination {
			return true
		}
	}
	return false
}

// DestLabel returns the display label for a destination code, or the raw code
// when unknown.
func DestLabel(code models.DestinationCode) string {
	for _, d := range Destinations {
		if d.Code == code {
			return d.Label
		}
	}
	return string(code)
}

// RouteLabel renders a route for display, e.g. "Moldova → Anglia".
func RouteLabel(origin, destination models.DestinationCode) string {
	return fmt.Sprintf("%s → %s", DestLabel(origin), DestLabel(destination))
}

// CurrencyFor derives the settlement currency: GBP whenever the UK is either
// endpoint, EUR otherwise.
func CurrencyFor(origin, destination models.DestinationCode) models.Currency {
	if origin == models.DestUK || destination == models.DestUK {
		return models.CurrencyGBP
	}
	return models.CurrencyEUR
}

// Tariff computes parcel prices from weight.
type Tariff struct {
	ratePerKg float64
}

// NewTariff builds a tariff; a non-positive rate falls back to the default.
func NewTariff(ratePerKg float64) Tariff {
	if ratePerKg <= 0 {
		ratePerKg = DefaultRatePerKg
	}
	return Tariff{ratePerKg: ratePerKg}
}

// Price returns weight × rate rounded to 2 decimal places.
func (t Tariff) Price(weightKg float64) float64 {
	return math.Round(weightKg*t.ratePerKg*100) / 100
}

// BuildHumanID formats the rider-facing parcel label. The prefix depends on
// the final delivery destination: BE → "B<n>", NL → "OL<n>", UK and MD use
// the bare number. The caller must have validated the route already.
func BuildHumanID(deliveryDestination models.DestinationCode, numericID int) string {
	switch deliveryDestination {
	case models.DestBE:
		return "B" + strconv.Itoa(numericID)
	case models.DestNL:
		return "OL" + strconv.Itoa(numericID)
	default:
		return strconv.Itoa(numericID)
	}
}

// FormatPrice renders a price with its currency symbol.
func FormatPrice(price float64, currency models.Currency) string {
	if currency == models.CurrencyGBP {
		return fmt.Sprintf("£%.2f", price)
	}
	return fmt.Sprintf("€%.2f", price)
}
