// Package extract turns the upstream incident HTML table into records.
package extract

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fire-incidents/internal/model"
)

// Extractor parses incident rows according to a Layout.
type Extractor struct {
	layout Layout
}

// NewExtractor creates an Extractor. A zero Layout selects DefaultLayout.
func NewExtractor(layout Layout) *Extractor {
	if layout.MinCells == 0 {
		layout = DefaultLayout()
	}
	return &Extractor{layout: layout}
}

// Extract reads an HTML document and returns its incidents in document
// order. Malformed rows are dropped. A document with no matching rows yields
// an empty, non-nil slice.
func (e *Extractor) Extract(r io.Reader) ([]model.Incident, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse html")
	}
	return e.FromDocument(doc), nil
}

// FromDocument extracts incidents from an already parsed document.
func (e *Extractor) FromDocument(doc *goquery.Document) []model.Incident {
	incidents := make([]model.Incident, 0)
	dropped := 0
	cols := e.layout.Columns

	doc.Find(e.layout.RowSelector).Each(func(i int, row *goquery.Selection) {
		if i < e.layout.HeaderRows {
			return
		}
		cells := row.Find(e.layout.CellSelector)
		if cells.Length() < e.layout.MinCells {
			dropped++
			return
		}
		cell := func(idx int) string {
			return strings.TrimSpace(cells.Eq(idx).Text())
		}

		inc := model.Incident{
			DateTime:       cell(cols.DateTime),
			IncidentNumber: cell(cols.IncidentNumber),
			Level:          cell(cols.Level),
			Units:          cell(cols.Units),
			Location:       cell(cols.Location),
			Type:           cell(cols.Type),
		}
		if inc.DateTime == "" || inc.Location == "" {
			dropped++
			return
		}
		incidents = append(incidents, inc)
	})

	if dropped > 0 {
		zap.L().Debug("extract: dropped malformed rows", zap.Int("dropped", dropped))
	}
	return incidents
}
