package api

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/fire-incidents/internal/model"
)

// GeoJSON converts geocoded incidents to a FeatureCollection of points.
// Incidents without coordinates have no geometry and are left out.
func GeoJSON(incidents []model.Incident) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(incidents))}
	for _, inc := range incidents {
		if !inc.HasCoordinates() {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       inc.IncidentNumber,
			Geometry: geom.NewPointFlat(geom.XY, []float64{*inc.Longitude, *inc.Latitude}),
			Properties: map[string]interface{}{
				"dateTime":       inc.DateTime,
				"incidentNumber": inc.IncidentNumber,
				"level":          inc.Level,
				"units":          inc.Units,
				"location":       inc.Location,
				"type":           inc.Type,
			},
		})
	}
	return fc
}
