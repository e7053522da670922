package main

import (
	"fmt"
	"image"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

//RunOptions per-invocation overrides from the command line
type RunOptions struct {
	Year        int
	MaxZoom     int // -1 keeps the source's own max zoom
	OutputDir   string
	Concurrency int
	Format      string
	Conn        string
}

//Task generates all tiles of one source for one year. A task owns its
//store handle exclusively; only the fetch fan-out runs concurrently.
type Task struct {
	ID        string
	Source    *SourceConfig
	Year      int
	MaxZoom   int
	store     *TileStore
	fetcher   *Fetcher
	layers    []CropLayer // non-nil switches on crop-type compositing
	region    *RegionMask
	failLog   *FailLog
	batchSize int
	progress  bool
	saved     int64
	skipped   int64
	start     time.Time
}

//NewTask wires a task from the source config and run options.
func NewTask(src *SourceConfig, opts RunOptions, gate *Gate, failLog *FailLog) (*Task, error) {
	task := &Task{
		ID:        uuid.New().String(),
		Source:    src,
		Year:      src.ResolveYear(opts.Year),
		MaxZoom:   src.MaxZoom,
		fetcher: NewFetcher(gate,
			time.Duration(viper.GetInt("task.timeout"))*time.Second,
			viper.GetInt("task.retries"),
			time.Duration(viper.GetInt("task.retrydelay"))*time.Second),
		failLog:   failLog,
		batchSize: viper.GetInt("task.batchsize"),
		progress:  true,
	}
	if task.batchSize < 1 {
		task.batchSize = 32
	}
	if opts.MaxZoom >= 0 {
		task.MaxZoom = opts.MaxZoom
	}
	if src.Composite {
		layers, err := prepareCropLayers(loadCropLayers())
		if err != nil {
			return nil, err
		}
		task.layers = layers
	}
	if src.Geojson != "" {
		region, err := loadRegion(src.Geojson)
		if err != nil {
			return nil, err
		}
		task.region = region
	}
	suffix := ""
	if task.Year != 0 {
		suffix = fmt.Sprintf("_%d", task.Year)
	}
	file := filepath.Join(opts.OutputDir, fmt.Sprintf("%s%s.mbtiles", src.ID, suffix))
	store, err := NewTileStore(file, opts.Format, opts.Conn)
	if err != nil {
		return nil, err
	}
	task.store = store
	return task, nil
}

func (t *Task) describe() string {
	name := t.Source.Name
	if t.Year != 0 {
		name = fmt.Sprintf("%s (%d)", name, t.Year)
	}
	return fmt.Sprintf("%s z0-%d", name, t.MaxZoom)
}

func (t *Task) metaItems() map[string]string {
	b := t.Source.Bbox()
	name := t.Source.Name
	if t.Year != 0 {
		name = fmt.Sprintf("%s %d", name, t.Year)
	}
	desc := fmt.Sprintf("%s overview tiles z0-%d", name, t.MaxZoom)
	if t.layers != nil {
		ids := make([]string, len(t.layers))
		for i := range t.layers {
			ids[i] = t.layers[i].ID
		}
		desc = fmt.Sprintf("%s combined crop type map (%s)", name, strings.Join(ids, ", "))
	}
	return map[string]string{
		"id":          t.ID,
		"name":        name,
		"format":      "png",
		"type":        "overlay",
		"version":     MBTileVersion,
		"description": desc,
		"attribution": t.Source.Name,
		"pixel_scale": strconv.Itoa(TileSize),
		"bounds":      fmt.Sprintf("%g,%g,%g,%g", b.West, b.South, b.East, b.North),
		"center":      fmt.Sprintf("%g,%g,%d", (b.West+b.East)/2, (b.South+b.North)/2, t.MaxZoom/2),
	}
}

//Run drives the zoom levels in order and finalizes the store.
func (t *Task) Run() error {
	log.Infof("generating %s -> %s", t.describe(), t.store.file)
	if err := t.store.Init(t.metaItems()); err != nil {
		return err
	}
	defer t.store.Close()
	t.start = time.Now()
	for z := 0; z <= t.MaxZoom; z++ {
		if err := t.runZoom(z); err != nil {
			return err
		}
	}
	if err := t.store.Finalize(0, t.MaxZoom, t.Source.Bbox()); err != nil {
		return err
	}
	if t.skipped == 0 {
		t.failLog.Clear(t.Source.ID)
	}
	elapsed := time.Since(t.start)
	sizeMB := float64(t.store.Size()) / (1024 * 1024)
	log.Infof("task %s done: %d tiles saved, %d skipped, %.1fMB in %s ~", t.ID, t.saved, t.skipped, sizeMB, elapsed.Round(time.Second))
	return nil
}

func (t *Task) runZoom(z int) error {
	r := tileRange(t.Source.Bbox(), z)
	cover := t.region.CoverAt(z)
	log.Infof("zoom %d: %d tiles (x=%d-%d, y=%d-%d)", z, r.Count(), r.MinX, r.MaxX, r.MinY, r.MaxY)
	bar := pb.New64(r.Count())
	if !t.progress {
		bar.SetWriter(io.Discard)
	}
	bar.Start()
	defer bar.Finish()

	batch := make([]TileXyz, 0, t.batchSize)
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			tile := TileXyz{X: x, Y: y, Z: z}
			if !covers(cover, tile) {
				t.skipped++
				bar.Increment()
				continue
			}
			batch = append(batch, tile)
			if len(batch) >= t.batchSize {
				if err := t.flushBatch(batch, bar); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
	}
	if len(batch) > 0 {
		if err := t.flushBatch(batch, bar); err != nil {
			return err
		}
	}
	return nil
}

// flushBatch fans the batch out to the fetcher, filters the results and
// commits the survivors in one transaction. Results land in positional
// slices, so store order follows enumeration order regardless of fetch
// completion order.
func (t *Task) flushBatch(batch []TileXyz, bar *pb.ProgressBar) error {
	var results [][]byte
	if t.layers != nil {
		results = t.fetchComposite(batch)
	} else {
		results = t.fetchSingle(batch)
	}

	accepted := make([]Tile, 0, len(batch))
	for i, tile := range batch {
		data := results[i]
		accept := data != nil
		if accept && t.layers == nil {
			accept = !isBlank(data)
		}
		if accept {
			accepted = append(accepted, Tile{X: tile.X, Y: tile.Y, Z: tile.Z, C: data})
			t.saved++
		} else {
			t.skipped++
			t.failLog.Record(t.Source.ID, tile, "no data")
		}
		bar.Increment()
	}
	if err := t.store.WriteBatch(accepted); err != nil {
		return fmt.Errorf("save batch error: %w", err)
	}
	elapsed := time.Since(t.start).Seconds()
	rate := float64(t.saved+t.skipped) / math.Max(elapsed, 0.1)
	log.Debugf("z%d saved=%d skipped=%d (%.1f/s)", batch[0].Z, t.saved, t.skipped, rate)
	return nil
}

func (t *Task) fetchSingle(batch []TileXyz) [][]byte {
	results := make([][]byte, len(batch))
	var wg sync.WaitGroup
	for i, tile := range batch {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			results[i] = t.fetcher.Fetch(url)
		}(i, t.Source.TileURL(tile, t.Year))
	}
	wg.Wait()
	return results
}

// fetchComposite fetches every crop layer of every tile concurrently, then
// fuses each tile's layers synchronously once all fetches settled.
func (t *Task) fetchComposite(batch []TileXyz) [][]byte {
	raw := make([][][]byte, len(batch))
	var wg sync.WaitGroup
	for i, tile := range batch {
		raw[i] = make([][]byte, len(t.layers))
		for j := range t.layers {
			wg.Add(1)
			go func(i, j int, url string) {
				defer wg.Done()
				raw[i][j] = t.fetcher.Fetch(url)
			}(i, j, t.Source.LayerTileURL(t.layers[j].WMSLayer, tile, t.Year))
		}
	}
	wg.Wait()

	results := make([][]byte, len(batch))
	for i := range batch {
		images := make(map[string]*image.NRGBA, len(t.layers))
		for j := range t.layers {
			if raw[i][j] == nil {
				continue
			}
			if img := decodeImage(raw[i][j]); img != nil {
				images[t.layers[j].ID] = img
			}
		}
		results[i] = combineLayers(t.layers, images)
	}
	return results
}

// runSource isolates one source's run; a failure is reported to the caller
// but must never take down a bulk run over all sources.
func runSource(src *SourceConfig, opts RunOptions, gate *Gate, failLog *FailLog) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("source %s panicked: %v", src.ID, r)
		}
	}()
	task, err := NewTask(src, opts, gate, failLog)
	if err != nil {
		return err
	}
	return task.Run()
}

func runAllSources(reg *SourceRegistry, opts RunOptions, gate *Gate, failLog *FailLog) {
	for _, id := range reg.IDs() {
		src, _ := reg.Get(id)
		if err := runSource(src, opts, gate, failLog); err != nil {
			log.Errorf("generate %s error, details: %s ~", id, err)
		}
	}
}
