package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

//initConf loads the TOML config and sets defaults for every knob
func initConf(cfgFile string) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		log.Warnf("config file(%s) not exist", cfgFile)
	}
	viper.SetConfigType("toml")
	viper.SetConfigFile(cfgFile)
	viper.AutomaticEnv() // read in environment variables that match
	err := viper.ReadInConfig()
	if err != nil {
		log.Warnf("read config file(%s) error, details: %s", viper.ConfigFileUsed(), err)
	}
	viper.SetDefault("app.version", "v 0.1.0")
	viper.SetDefault("app.title", "ARCcrop Tiler")
	viper.SetDefault("output.format", "mbtiles")
	viper.SetDefault("output.directory", "pmtiles")
	viper.SetDefault("task.concurrency", 6)
	viper.SetDefault("task.batchsize", 32)
	viper.SetDefault("task.timeout", 30)
	viper.SetDefault("task.retries", 2)
	viper.SetDefault("task.retrydelay", 1)
	viper.SetDefault("redis.enable", false)
	viper.SetDefault("redis.addr", "127.0.0.1:6379")
}

// loadSources unmarshals the [[sources]] registry and fills per-source
// defaults. The registry is read once per run and never mutated.
func loadSources() (*SourceRegistry, error) {
	var sources []SourceConfig
	if err := viper.UnmarshalKey("sources", &sources); err != nil {
		return nil, fmt.Errorf("sources config error: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources configured in %s", viper.ConfigFileUsed())
	}
	for i := range sources {
		src := &sources[i]
		if src.ID == "" || src.BaseURL == "" {
			return nil, fmt.Errorf("source %d: id and base_url are required", i)
		}
		if !src.Composite && src.Layers == "" {
			return nil, fmt.Errorf("source %s: layers is required", src.ID)
		}
		if src.CRS == "" {
			src.CRS = "EPSG:3857"
		}
		if src.Version == "" {
			src.Version = "1.1.1"
		}
		if src.MaxZoom == 0 {
			src.MaxZoom = 6
		}
		if len(src.Bounds) != 0 && len(src.Bounds) != 4 {
			return nil, fmt.Errorf("source %s: bounds must be [west, south, east, north]", src.ID)
		}
	}
	return newSourceRegistry(sources), nil
}

// loadCropLayers returns the configured crop-type layer table, falling back
// to the built-in WorldCereal set.
func loadCropLayers() []CropLayer {
	var layers []CropLayer
	if err := viper.UnmarshalKey("croptype.layers", &layers); err != nil || len(layers) == 0 {
		return defaultCropLayers
	}
	return layers
}
