package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/earthscan/tsprofile/rasterio"
	ts "github.com/earthscan/tsprofile/timeseries"
	"github.com/earthscan/tsprofile/utils"
)

// crawl opens rasters, derives their source descriptors and prints one JSON
// document per line. The output feeds the catalog loader or any downstream
// ingestion tooling.

type sourceRecord struct {
	URI      string     `json:"uri"`
	Provider string     `json:"provider"`
	Name     string     `json:"name"`
	CRS      string     `json:"crs"`
	Extent   [4]float64 `json:"extent"`
	Bands    int        `json:"nb"`
	Lines    int        `json:"nl"`
	Samples  int        `json:"ns"`
	SensorID string     `json:"sensor_id"`
	DTG      string     `json:"dtg"`
}

func toRecord(s *ts.RasterSource) *sourceRecord {
	return &sourceRecord{
		URI:      s.URI,
		Provider: s.Provider,
		Name:     s.Name,
		CRS:      s.CRS,
		Extent:   [4]float64{s.Extent.Min[0], s.Extent.Min[1], s.Extent.Max[0], s.Extent.Max[1]},
		Bands:    s.Bands,
		Lines:    s.Lines,
		Samples:  s.Samples,
		SensorID: s.SensorID,
		DTG:      s.DTG.UTC().Format(ts.ISOFormat),
	}
}

func ensure(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	listFile := flag.String("list", "", "time series list file; '-' reads URIs from stdin")
	nMax := flag.Int("n", 0, "maximum number of entries to crawl, 0 for all")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	rasterio.Init()

	var uris []string
	switch {
	case *listFile == "-":
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if len(line) > 0 {
				uris = append(uris, line)
			}
			if *nMax > 0 && len(uris) >= *nMax {
				break
			}
		}
		ensure(scanner.Err())
	case len(*listFile) > 0:
		var err error
		uris, err = utils.ReadListFile(*listFile, *nMax)
		ensure(err)
	default:
		uris = flag.Args()
	}
	if len(uris) == 0 {
		log.Fatal("Please provide raster URIs, a -list file, or '-list -' for stdin")
	}

	enc := json.NewEncoder(os.Stdout)
	nInvalid := 0
	startTime := time.Now()
	for _, uri := range uris {
		s, err := ts.NewRasterSource(uri)
		if err != nil {
			nInvalid++
			log.Printf("%s: %v", uri, err)
			continue
		}
		ensure(enc.Encode(toRecord(s)))
	}

	if *verbose {
		log.Printf("crawled %d sources, %d invalid, %v elapsed",
			len(uris)-nInvalid, nInvalid, time.Since(startTime))
	}
	if nInvalid == len(uris) {
		os.Exit(2)
	}
}
