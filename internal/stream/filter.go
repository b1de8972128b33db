// Package stream consumes a filtered event stream, drops reshares and
// duplicate link-bearing posts, and persists accepted events to a
// destination collection until it reaches a target size.
package stream

import (
	"tweetcastr/internal/database"
)

// DefaultStopWords are carried in every FilterConfig. They are reported in
// logs only; no filtering consults them.
var DefaultStopWords = []string{"rt", "via"}

// ContinentalAmerica is the bounding box used for geo-enabled delivery:
// south-west longitude, south-west latitude, north-east longitude,
// north-east latitude.
var ContinentalAmerica = []float64{-125.0011, 24.9493, -66.9326, 49.5904}

// FilterConfig holds the per-session filter parameters.
type FilterConfig struct {
	stopWords   []string
	destination database.Collection
	targetCount int
	geoRegion   []float64
}

// NewFilterConfig creates a filter in keyword (dedup) mode. A targetCount of
// zero or less is accepted and stops the session on the first payload.
func NewFilterConfig(stopWords []string, destination database.Collection, targetCount int) *FilterConfig {
	return &FilterConfig{
		stopWords:   stopWords,
		destination: destination,
		targetCount: targetCount,
	}
}

// SetGeoRegion switches the filter to geo-acceptance mode.
func (f *FilterConfig) SetGeoRegion(region []float64) {
	f.geoRegion = region
}

// StopWords returns the configured stop words.
func (f *FilterConfig) StopWords() []string {
	return f.stopWords
}

// Destination returns the collection accepted events are written to.
func (f *FilterConfig) Destination() database.Collection {
	return f.destination
}

// TargetCount returns the collection size at which the session stops.
func (f *FilterConfig) TargetCount() int {
	return f.targetCount
}

// GeoRegion returns the bounding region, or nil in keyword mode.
func (f *FilterConfig) GeoRegion() []float64 {
	return f.geoRegion
}

// GeoMode reports whether events are routed to the geo path.
func (f *FilterConfig) GeoMode() bool {
	return f.geoRegion != nil
}
