package main

import (
	"fmt"
	"sort"
)

//SourceConfig one remote WMS dataset, loaded once from config and never
//mutated afterwards.
type SourceConfig struct {
	ID          string    `mapstructure:"id"`
	Name        string    `mapstructure:"name"`
	BaseURL     string    `mapstructure:"base_url"`
	Layers      string    `mapstructure:"layers"`
	CRS         string    `mapstructure:"crs"`
	Version     string    `mapstructure:"wms_version"`
	Years       []int     `mapstructure:"years"`
	DefaultYear int       `mapstructure:"default_year"`
	MaxZoom     int       `mapstructure:"max_zoom"`
	Bounds      []float64 `mapstructure:"bounds"`
	ExtraParams string    `mapstructure:"extra_params"`
	Composite   bool      `mapstructure:"composite"`
	Geojson     string    `mapstructure:"geojson"`
}

// Bbox returns the configured bounds, or the whole world when none are set.
func (s *SourceConfig) Bbox() LngLatBbox {
	if len(s.Bounds) != 4 {
		return LngLatBbox{West: -180, South: -85, East: 180, North: 85}
	}
	return LngLatBbox{West: s.Bounds[0], South: s.Bounds[1], East: s.Bounds[2], North: s.Bounds[3]}
}

// ResolveYear picks the year for a run: the override when given, the
// configured default otherwise. Zero means the source is not year-keyed.
func (s *SourceConfig) ResolveYear(override int) int {
	if override != 0 {
		return override
	}
	return s.DefaultYear
}

// YearSpan is a short range string for -list output.
func (s *SourceConfig) YearSpan() string {
	if len(s.Years) == 0 {
		return ""
	}
	return fmt.Sprintf(" (%d-%d)", s.Years[0], s.Years[len(s.Years)-1])
}

//SourceRegistry all configured sources keyed by id
type SourceRegistry struct {
	byID map[string]*SourceConfig
}

func newSourceRegistry(sources []SourceConfig) *SourceRegistry {
	reg := &SourceRegistry{byID: make(map[string]*SourceConfig, len(sources))}
	for i := range sources {
		reg.byID[sources[i].ID] = &sources[i]
	}
	return reg
}

// Get looks a source up by id.
func (r *SourceRegistry) Get(id string) (*SourceConfig, bool) {
	src, ok := r.byID[id]
	return src, ok
}

// IDs returns all source ids in sorted order.
func (r *SourceRegistry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *SourceRegistry) Len() int {
	return len(r.byID)
}
