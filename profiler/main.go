package main

import (
	"context"
	"encoding/json"
	"flag"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/earthscan/tsprofile"
	"github.com/earthscan/tsprofile/processor"
	"github.com/earthscan/tsprofile/utils"
)

// profiler is the batch front end of the engine: it ingests a time series
// list file, optionally restricts it to an overlap focus, extracts temporal
// profiles at the probe points of a GeoJSON document and writes them out as
// JSON or CSV.

func ensure(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	configFile := flag.String("config", "", "engine configuration file")
	listFile := flag.String("list", "", "time series list file")
	probeFile := flag.String("probe", "", "GeoJSON Point or MultiPoint document with the probe locations")
	probeCRS := flag.String("crs", "EPSG:4326", "CRS of the probe coordinates")
	format := flag.String("format", "json", "output format: json or csv")
	saveSources := flag.Bool("sources", false, "record the contributing raster per observation")
	nMax := flag.Int("n", 0, "maximum number of list entries to load, 0 for all")
	flag.Parse()

	if len(*listFile) == 0 || len(*probeFile) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := utils.DefaultConfig()
	if len(*configFile) > 0 {
		var err error
		cfg, err = utils.LoadConfigFile(*configFile)
		ensure(err)
	}

	engine, err := tsprofile.New(cfg)
	ensure(err)
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-signals
		cancel()
	}()

	doc, err := ioutil.ReadFile(*probeFile)
	ensure(err)
	points, wkt, err := processor.ProbePointsFromGeoJSON(doc)
	ensure(err)
	if cfg.ServiceConfig.Verbose {
		log.Printf("probing %s", wkt)
	}

	_, done, err := engine.IngestListFile(ctx, *listFile, *nMax)
	ensure(err)
	c := <-done
	if c.Err != nil {
		log.Fatalf("ingestion failed: %v", c.Err)
	}
	for _, inv := range c.Invalid {
		log.Printf("skipped %s: %s", inv.URI, inv.Reason)
	}

	profiles, c, err := engine.ExtractProfiles(ctx, processor.ProfileRequest{
		Points:      points,
		CRS:         *probeCRS,
		SaveSources: *saveSources,
	})
	ensure(err)
	for _, inv := range c.Invalid {
		log.Printf("%s: %s", inv.URI, inv.Reason)
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetEscapeHTML(false)
		ensure(enc.Encode(profiles))
	case "csv":
		ensure(utils.WriteProfilesCSV(os.Stdout, profiles))
	default:
		log.Fatalf("unknown output format: %s", *format)
	}
}
