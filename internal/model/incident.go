// Package model defines the incident records served to the map client.
package model

// Incident is one row of the fire department's realtime 911 table. Field
// values are kept as the source formats them; only Latitude and Longitude
// are added, and only after a successful geocode.
type Incident struct {
	DateTime       string   `json:"dateTime"`
	IncidentNumber string   `json:"incidentNumber"`
	Level          string   `json:"level"`
	Units          string   `json:"units"`
	Location       string   `json:"location"`
	Type           string   `json:"type"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
}

// WithCoordinates returns a copy of the incident with both coordinates set.
func (i Incident) WithCoordinates(lat, lon float64) Incident {
	i.Latitude = &lat
	i.Longitude = &lon
	return i
}

// HasCoordinates reports whether the incident was geocoded.
func (i Incident) HasCoordinates() bool {
	return i.Latitude != nil && i.Longitude != nil
}

// FetchResult is the response body of a successful incident fetch.
type FetchResult struct {
	Incidents []Incident `json:"incidents"`
	Date      string     `json:"date"`
}
