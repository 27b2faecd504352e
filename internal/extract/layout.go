package extract

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed columns.yaml
var defaultLayoutYAML []byte

// Layout describes where each incident field sits in the upstream table.
type Layout struct {
	RowSelector  string  `yaml:"row_selector"`
	CellSelector string  `yaml:"cell_selector"`
	HeaderRows   int     `yaml:"header_rows"`
	MinCells     int     `yaml:"min_cells"`
	Columns      Columns `yaml:"columns"`
}

// Columns maps incident fields to zero-based cell positions.
type Columns struct {
	DateTime       int `yaml:"date_time"`
	IncidentNumber int `yaml:"incident_number"`
	Level          int `yaml:"level"`
	Units          int `yaml:"units"`
	Location       int `yaml:"location"`
	Type           int `yaml:"type"`
}

func (c Columns) max() int {
	m := c.DateTime
	for _, v := range []int{c.IncidentNumber, c.Level, c.Units, c.Location, c.Type} {
		if v > m {
			m = v
		}
	}
	return m
}

// DefaultLayout returns the built-in layout.
func DefaultLayout() Layout {
	l, err := ParseLayout(defaultLayoutYAML)
	if err != nil {
		panic(err) // embedded file is part of the build
	}
	return l
}

// LoadLayout reads a layout override from a YAML file.
func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, eris.Wrapf(err, "extract: read layout %s", path)
	}
	return ParseLayout(data)
}

// ParseLayout decodes and validates a layout document. The YAML has a
// top-level "layout" key.
func ParseLayout(data []byte) (Layout, error) {
	var wrapper struct {
		Layout Layout `yaml:"layout"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Layout{}, eris.Wrap(err, "extract: parse layout")
	}
	l := wrapper.Layout
	if l.RowSelector == "" {
		l.RowSelector = "table tr"
	}
	if l.CellSelector == "" {
		l.CellSelector = "td"
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// Validate checks that every column fits within MinCells.
func (l Layout) Validate() error {
	if l.HeaderRows < 0 {
		return eris.Errorf("extract: header_rows must be >= 0, got %d", l.HeaderRows)
	}
	if l.MinCells <= 0 {
		return eris.Errorf("extract: min_cells must be > 0, got %d", l.MinCells)
	}
	c := l.Columns
	for _, v := range []int{c.DateTime, c.IncidentNumber, c.Level, c.Units, c.Location, c.Type} {
		if v < 0 {
			return eris.Errorf("extract: negative column index %d", v)
		}
	}
	if c.max() >= l.MinCells {
		return eris.Errorf("extract: column index %d outside min_cells %d", c.max(), l.MinCells)
	}
	return nil
}
