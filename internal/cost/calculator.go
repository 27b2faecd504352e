// Package cost meters geocoding usage and estimates provider spend.
package cost

// Rates holds provider pricing configuration.
type Rates struct {
	GeocodePer1000 float64 `yaml:"geocode_per_1000" mapstructure:"geocode_per_1000"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Geocode computes the cost of n billable provider requests. Unmatched
// lookups are billed the same as matches.
func (c *Calculator) Geocode(n int64) float64 {
	if n <= 0 {
		return 0
	}
	return (float64(n) / 1000) * c.rates.GeocodePer1000
}

// Saved estimates what cache hits avoided spending.
func (c *Calculator) Saved(hits int64) float64 {
	return c.Geocode(hits)
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{GeocodePer1000: 0.75}
}
