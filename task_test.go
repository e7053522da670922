package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func worldSource(id, baseURL string, maxZoom int) *SourceConfig {
	return &SourceConfig{
		ID:      id,
		Name:    "Test " + id,
		BaseURL: baseURL,
		Layers:  "test_layer",
		CRS:     "EPSG:3857",
		Version: "1.1.1",
		MaxZoom: maxZoom,
		Bounds:  []float64{-180, -85, 180, 85},
	}
}

func newScenarioTask(t *testing.T, src *SourceConfig, layers []CropLayer) *Task {
	t.Helper()
	store, err := NewTileStore(filepath.Join(t.TempDir(), src.ID+".mbtiles"), "mbtiles", "")
	require.NoError(t, err)
	fetcher := NewFetcher(NewGate(8, 4), 5*time.Second, 2, time.Second)
	fetcher.sleep = func(time.Duration) {}
	return &Task{
		ID:        "test-run",
		Source:    src,
		MaxZoom:   src.MaxZoom,
		store:     store,
		fetcher:   fetcher,
		layers:    layers,
		failLog:   &FailLog{},
		batchSize: 32,
	}
}

// Whole world at zoom 0 with a well-behaved server: exactly one tile lands
// in the store, at native row 0.
func TestRunSingleLayerWholeWorldZoom0(t *testing.T) {
	body := pngBytes(t, fillTile(255))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	task := newScenarioTask(t, worldSource("one", srv.URL, 0), nil)
	require.NoError(t, task.Run())
	assert.Equal(t, int64(1), task.saved)
	assert.Equal(t, int64(0), task.skipped)

	db := openRaw(t, task.store.file)
	var z, c, row int
	require.NoError(t, db.QueryRow("select zoom_level, tile_column, tile_row from tiles").Scan(&z, &c, &row))
	assert.Equal(t, 0, z)
	assert.Equal(t, 0, c)
	assert.Equal(t, 0, row)
}

// A fetch that fails all retries is skipped, counted, and leaves no row.
func TestRunFetchFailureSkipsTile(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	task := newScenarioTask(t, worldSource("two", srv.URL, 0), nil)
	require.NoError(t, task.Run())
	assert.Equal(t, int64(0), task.saved)
	assert.Equal(t, int64(1), task.skipped)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	db := openRaw(t, task.store.file)
	var count int
	require.NoError(t, db.QueryRow("select count(*) from tiles").Scan(&count))
	assert.Equal(t, 0, count)
}

// Only the lowest-priority crop layer has presence: the composite carries
// that layer's color where it is present and stays transparent elsewhere,
// and the tile is accepted.
func TestRunCompositeLowestPriorityOnly(t *testing.T) {
	half := fillTile(0)
	for y := 0; y < TileSize; y++ {
		for x := 0; x < TileSize/2; x++ {
			px := half.NRGBAAt(x, y)
			px.A = 255
			half.SetNRGBA(x, y, px)
		}
	}
	halfBody := pngBytes(t, half)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("LAYERS") == "WORLDCEREAL_TEMPORARYCROPS_V1" {
			w.Write(halfBody)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	src := worldSource("crop", srv.URL, 0)
	src.Composite = true
	layers := testLayers(t)
	task := newScenarioTask(t, src, layers)
	require.NoError(t, task.Run())
	assert.Equal(t, int64(1), task.saved)
	assert.Equal(t, int64(0), task.skipped)

	db := openRaw(t, task.store.file)
	var data []byte
	require.NoError(t, db.QueryRow("select tile_data from tiles").Scan(&data))
	out := decodeImage(data)
	require.NotNil(t, out)
	assert.Equal(t, layerColor(t, layers, "other_crops"), out.NRGBAAt(10, 10))
	assert.Equal(t, uint8(0), out.NRGBAAt(TileSize-1, 10).A)
}

// Every layer decodes but carries zero alpha: the compositor reports no
// data, the tile is skipped, nothing is written.
func TestRunCompositeAllTransparent(t *testing.T) {
	body := pngBytes(t, fillTile(0))
	require.Greater(t, len(body), 100, "test image must clear the fetch size floor")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	src := worldSource("blank", srv.URL, 0)
	src.Composite = true
	task := newScenarioTask(t, src, testLayers(t))
	require.NoError(t, task.Run())
	assert.Equal(t, int64(0), task.saved)
	assert.Equal(t, int64(1), task.skipped)
	// the transparency filter agrees with the compositor here
	assert.True(t, isBlank(body))

	db := openRaw(t, task.store.file)
	var count int
	require.NoError(t, db.QueryRow("select count(*) from tiles").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestRunRegionMaskSkipsUncoveredTiles(t *testing.T) {
	regionPath := filepath.Join(t.TempDir(), "east.geojson")
	require.NoError(t, os.WriteFile(regionPath, []byte(`{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[10,-60],[170,-60],[170,60],[10,60],[10,-60]]]}}]}`), 0666))

	var calls int32
	body := pngBytes(t, fillTile(255))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write(body)
	}))
	defer srv.Close()

	src := worldSource("masked", srv.URL, 1)
	task := newScenarioTask(t, src, nil)
	region, err := loadRegion(regionPath)
	require.NoError(t, err)
	task.region = region

	require.NoError(t, task.Run())
	// z0 has one covered tile, z1 covers only the eastern column
	assert.Equal(t, int64(3), task.saved)
	assert.Equal(t, int64(2), task.skipped)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRunFinalizeWritesZoomRange(t *testing.T) {
	body := pngBytes(t, fillTile(255))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	task := newScenarioTask(t, worldSource("meta", srv.URL, 1), nil)
	require.NoError(t, task.Run())

	db := openRaw(t, task.store.file)
	var value string
	require.NoError(t, db.QueryRow("select value from metadata where name = 'maxzoom'").Scan(&value))
	assert.Equal(t, "1", value)
	var count int
	require.NoError(t, db.QueryRow("select count(*) from tiles").Scan(&count))
	assert.Equal(t, 5, count) // 1 at z0 + 4 at z1
}

// One broken source must not stop a bulk run over all sources.
func TestRunAllSourcesIsolatesFailures(t *testing.T) {
	initConf(filepath.Join(t.TempDir(), "absent.toml"))

	body := pngBytes(t, fillTile(255))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	broken := worldSource("broken", srv.URL, 0)
	broken.Geojson = filepath.Join(t.TempDir(), "missing.geojson")
	good := worldSource("good", srv.URL, 0)
	reg := newSourceRegistry([]SourceConfig{*broken, *good})

	outDir := t.TempDir()
	opts := RunOptions{
		Year:      0,
		MaxZoom:   -1,
		OutputDir: outDir,
		Format:    "mbtiles",
	}
	runAllSources(reg, opts, NewGate(8, 4), &FailLog{})

	_, err := os.Stat(filepath.Join(outDir, "good.mbtiles"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(outDir, "broken.mbtiles"))
	assert.True(t, os.IsNotExist(err))
}
