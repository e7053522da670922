package main

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/maptile/tilecover"
	log "github.com/sirupsen/logrus"
)

//RegionMask optional per-source GeoJSON region; tiles outside it are
//skipped without fetching.
type RegionMask struct {
	collection orb.Collection
}

func loadRegion(path string) (*RegionMask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region file: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal region geojson: %w", err)
	}
	var collection orb.Collection
	for _, f := range fc.Features {
		collection = append(collection, f.Geometry)
	}
	if len(collection) == 0 {
		return nil, fmt.Errorf("region %s has no geometries", path)
	}
	return &RegionMask{collection: collection}, nil
}

// CoverAt returns the set of tiles the region touches at a zoom, or nil
// when the mask is absent or the cover cannot be computed (then everything
// passes).
func (m *RegionMask) CoverAt(zoom int) maptile.Set {
	if m == nil {
		return nil
	}
	set, err := tilecover.Collection(m.collection, maptile.Zoom(zoom))
	if err != nil {
		log.Warnf("region cover at zoom %d failed, mask disabled: %s", zoom, err)
		return nil
	}
	return set
}

// covers reports whether a tile is inside the cover set. A nil set admits
// every tile.
func covers(set maptile.Set, t TileXyz) bool {
	if set == nil {
		return true
	}
	return set[maptile.New(uint32(t.X), uint32(t.Y), maptile.Zoom(t.Z))]
}
