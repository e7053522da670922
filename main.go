package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

//flag
var (
	hf       bool
	cf       string
	sourceID string
	allFlag  bool
	listFlag bool
	yearFlag int
	zoomFlag int
	outFlag  string
	concFlag int
)

func init() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&cf, "c", "conf.toml", "set config `file`")
	flag.StringVar(&sourceID, "source", "", "generate a single source `id`")
	flag.BoolVar(&allFlag, "all", false, "generate every configured source")
	flag.BoolVar(&listFlag, "list", false, "list available sources")
	flag.IntVar(&yearFlag, "year", 0, "override the source year")
	flag.IntVar(&zoomFlag, "max-zoom", -1, "override the max zoom level")
	flag.StringVar(&outFlag, "o", "", "override the output directory")
	flag.IntVar(&concFlag, "j", 0, "override the fetch concurrency")
	flag.Usage = usage
	//InitLog log to file and terminal together
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	// then wrap the log output with it
	file, err := os.OpenFile("generate.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	writers := []io.Writer{file, os.Stdout}
	fileWriter := io.MultiWriter(writers...)
	if err == nil {
		log.SetOutput(fileWriter)
	} else {
		log.Info("failed to log to file.")
	}
	log.SetLevel(log.InfoLevel)
}

func usage() {
	fmt.Fprintf(os.Stderr, `ARCcrop tiler: WMS crop map overview tiles -> MBTiles
Usage: arccrop [-h] [-c filename] [-list] [-all] [-source id] [-year y] [-max-zoom z] [-o dir] [-j n]
`)
	flag.PrintDefaults()
}

func main() {
	flag.Parse()
	if hf {
		flag.Usage()
		return
	}
	if cf == "" {
		cf = "conf.toml"
	}
	initConf(cf)

	reg, err := loadSources()
	if err != nil {
		log.Fatalf("load sources error, details: %s ~", err)
	}
	if listFlag {
		printSources(reg)
		return
	}

	opts := RunOptions{
		Year:        yearFlag,
		MaxZoom:     zoomFlag,
		OutputDir:   viper.GetString("output.directory"),
		Concurrency: viper.GetInt("task.concurrency"),
		Format:      viper.GetString("output.format"),
		Conn:        viper.GetString("output.conn"),
	}
	if outFlag != "" {
		opts.OutputDir = outFlag
	}
	if concFlag > 0 {
		opts.Concurrency = concFlag
	}

	gate := NewGate(opts.Concurrency*2, opts.Concurrency)
	failLog := NewFailLog(uuid.New().String())
	defer failLog.Close()

	start := time.Now()
	switch {
	case allFlag:
		runAllSources(reg, opts, gate, failLog)
	case sourceID != "":
		src, ok := reg.Get(sourceID)
		if !ok {
			log.Fatalf("unknown source: %s (available: %s)", sourceID, strings.Join(reg.IDs(), ", "))
		}
		if err := runSource(src, opts, gate, failLog); err != nil {
			log.Fatalf("generate %s error, details: %s ~", sourceID, err)
		}
	default:
		flag.Usage()
		return
	}
	fmt.Printf("\n%.3fs finished...\n", time.Since(start).Seconds())
}

func printSources(reg *SourceRegistry) {
	fmt.Println("Available sources:")
	for _, id := range reg.IDs() {
		src, _ := reg.Get(id)
		fmt.Printf("  %-25s %s%s  z0-%d\n", id, src.Name, src.YearSpan(), src.MaxZoom)
	}
}
