// Package tsprofile assembles the time series engine: a raster source index
// keyed by acquisition date and sensor, plus the background tasks that feed
// it and extract temporal profiles from it.
//
// All index access happens on the engine's coordinating goroutine. Tasks run
// on their own goroutines and communicate through batch channels; the engine
// drains those channels and applies the batches in order.
package tsprofile

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/earthscan/tsprofile/cache"
	"github.com/earthscan/tsprofile/catalog"
	"github.com/earthscan/tsprofile/metrics"
	"github.com/earthscan/tsprofile/processor"
	"github.com/earthscan/tsprofile/rasterio"
	"github.com/earthscan/tsprofile/timeseries"
	"github.com/earthscan/tsprofile/utils"
)

// Engine owns the index and wires tasks, catalog, cache and metrics
// together.
type Engine struct {
	Config *utils.Config
	Index  *timeseries.TimeSeriesIndex

	Catalog *catalog.Catalog
	Cache   *cache.ProfileCache

	metricsLogger metrics.Logger

	ops  chan func()
	done chan struct{}
}

// New builds an engine from cfg, connecting the optional collaborators named
// in its service section. A nil cfg uses DefaultConfig.
func New(cfg *utils.Config) (*Engine, error) {
	if cfg == nil {
		cfg = utils.DefaultConfig()
	}
	rasterio.Init()

	if err := timeseries.AddDatePatterns(cfg.DatePatterns); err != nil {
		return nil, err
	}

	precision, err := timeseries.ParsePrecision(cfg.Defaults.Precision)
	if err != nil {
		return nil, err
	}
	policy := timeseries.MatchPxDims
	if cfg.Defaults.MatchWavelengths {
		policy |= timeseries.MatchWavelengths
	}
	if cfg.Defaults.MatchNames {
		policy |= timeseries.MatchName
	}

	e := &Engine{
		Config: cfg,
		Index:  timeseries.NewTimeSeriesIndex(precision, policy),
		ops:    make(chan func(), 100),
		done:   make(chan struct{}),
	}
	e.Index.Verbose = cfg.ServiceConfig.Verbose

	if len(cfg.ServiceConfig.CatalogDB) > 0 {
		cat, err := catalog.Open(cfg.ServiceConfig.CatalogDB, cfg.Defaults.Workers, cfg.ServiceConfig.Verbose)
		if err != nil {
			return nil, fmt.Errorf("catalog: %v", err)
		}
		e.Catalog = cat
	}
	if len(cfg.ServiceConfig.MemcacheAddress) > 0 {
		e.Cache = cache.New(cfg.ServiceConfig.MemcacheAddress, cfg.ServiceConfig.CacheExpirySecs, cfg.ServiceConfig.Verbose)
	}
	if len(cfg.ServiceConfig.MetricsLogDir) > 0 {
		e.metricsLogger = metrics.NewFileLogger(cfg.ServiceConfig.MetricsLogDir, 0, 0, cfg.ServiceConfig.Verbose)
	} else if cfg.ServiceConfig.Verbose {
		e.metricsLogger = metrics.NewStdoutLogger()
	}

	go e.run()
	return e, nil
}

func (e *Engine) run() {
	for fn := range e.ops {
		fn()
	}
	close(e.done)
}

// Do runs fn on the coordinating goroutine and waits for it. All reads and
// writes of e.Index outside the engine go through here.
func (e *Engine) Do(fn func()) {
	ack := make(chan struct{})
	e.ops <- func() {
		fn()
		close(ack)
	}
	<-ack
}

// Close drains pending operations and shuts the engine down. Running tasks
// keep their context; cancel them before closing if their output should not
// be lost.
func (e *Engine) Close() error {
	close(e.ops)
	<-e.done
	if e.Catalog != nil {
		return e.Catalog.Close()
	}
	return nil
}

func (e *Engine) interval() time.Duration {
	return time.Duration(e.Config.Defaults.ProgressIntervalSecs) * time.Second
}

// forwardProgress turns a task's progress fractions into index events.
func (e *Engine) forwardProgress(taskID string, progress chan float64) {
	for fraction := range progress {
		f := fraction
		e.Do(func() {
			e.Index.Emit(timeseries.TaskProgress{TaskID: taskID, Fraction: f})
		})
	}
}

func (e *Engine) finishTask(c *processor.Completion, collector *metrics.Collector) {
	e.Do(func() {
		e.Index.Emit(timeseries.TaskCompleted{TaskID: c.TaskID, Outcome: c.Outcome})
	})
	if collector != nil {
		collector.Info.NumInvalid = len(c.Invalid)
		collector.Info.Outcome = string(c.Outcome)
		collector.Log()
	}
}

func (e *Engine) newCollector(taskID, kind string) *metrics.Collector {
	if e.metricsLogger == nil {
		return nil
	}
	c := metrics.NewCollector(e.metricsLogger)
	c.Info.TaskID = taskID
	c.Info.Kind = kind
	return c
}

// Ingest starts loading uris into the index. Batches are applied as they
// arrive; the returned channel delivers the task completion after the last
// batch has landed in the index.
func (e *Engine) Ingest(ctx context.Context, uris []string, visibility map[string]bool) (*processor.IngestionTask, <-chan *processor.Completion) {
	task := processor.NewIngestionTask(ctx, uris, visibility, e.interval())
	task.Verbose = e.Config.ServiceConfig.Verbose
	collector := e.newCollector(task.ID, "ingest")
	if collector != nil {
		collector.Info.NumSources = len(uris)
	}

	done := make(chan *processor.Completion, 1)
	go task.Run()
	go e.forwardProgress(task.ID, task.Progress)
	go func() {
		for batch := range task.Batches {
			sources := batch.Sources
			e.Do(func() { e.Index.AddSources(sources) })
			if e.Catalog != nil {
				if err := e.Catalog.SaveSources(ctx, sources); err != nil {
					log.Printf("task %s: catalog save: %v", task.ID, err)
				}
			}
		}
		c := <-task.Done
		e.finishTask(c, collector)
		done <- c
	}()
	return task, done
}

// IngestListFile reads a source list file and ingests its entries. nMax
// caps the number of entries; zero or negative means no cap.
func (e *Engine) IngestListFile(ctx context.Context, path string, nMax int) (*processor.IngestionTask, <-chan *processor.Completion, error) {
	uris, err := utils.ReadListFile(path, nMax)
	if err != nil {
		return nil, nil, err
	}
	task, done := e.Ingest(ctx, uris, nil)
	return task, done, nil
}

// LoadFromCatalog restores previously saved source descriptors into the
// index without reopening the rasters.
func (e *Engine) LoadFromCatalog(ctx context.Context) (int, error) {
	if e.Catalog == nil {
		return 0, fmt.Errorf("no catalog configured")
	}
	sources, err := e.Catalog.LoadSources(ctx)
	if err != nil {
		return 0, err
	}
	e.Do(func() { e.Index.AddSources(sources) })
	return len(sources), nil
}

// FocusOverlap starts an overlap classification over the current sources and
// applies its visibility verdicts to the index as they arrive. Zero pivot
// caps take the configured defaults; pass a negative cap for unlimited.
func (e *Engine) FocusOverlap(ctx context.Context, params processor.OverlapParams) (*processor.OverlapTask, <-chan *processor.Completion) {
	if params.Interval <= 0 {
		params.Interval = e.interval()
	}
	if params.SampleSize < 1 {
		params.SampleSize = e.Config.Defaults.SampleSize
	}
	if params.MaxBackward == 0 {
		params.MaxBackward = e.Config.Defaults.MaxBackward
	}
	if params.MaxForward == 0 {
		params.MaxForward = e.Config.Defaults.MaxForward
	}

	// Clone on the coordinating goroutine; another task's verdicts may be
	// landing on the live descriptors at the same time.
	var snapshot []*timeseries.RasterSource
	e.Do(func() {
		for _, s := range e.Index.Sources() {
			snapshot = append(snapshot, s.Clone())
		}
	})

	task := processor.NewOverlapTask(ctx, snapshot, params)
	task.Verbose = e.Config.ServiceConfig.Verbose
	collector := e.newCollector(task.ID, "overlap")
	if collector != nil {
		collector.Info.NumSources = len(snapshot)
	}

	done := make(chan *processor.Completion, 1)
	go task.Run()
	go e.forwardProgress(task.ID, task.Progress)
	go func() {
		for partial := range task.Partials {
			verdicts := partial
			e.Do(func() { e.Index.ApplyVisibility(verdicts) })
		}
		c := <-task.Done
		e.finishTask(c, collector)
		done <- c
	}()
	return task, done
}

// StartProfileTask starts a profile extraction without consulting the cache.
// When the request names neither URIs nor sources, the currently visible
// sources of the index are used.
func (e *Engine) StartProfileTask(ctx context.Context, req processor.ProfileRequest) *processor.ProfileTask {
	if req.Workers < 1 {
		req.Workers = e.Config.Defaults.Workers
	}
	if req.Interval <= 0 {
		req.Interval = e.interval()
	}
	if len(req.URIs) == 0 && len(req.Sources) == 0 {
		e.Do(func() {
			for _, date := range e.Index.VisibleDates() {
				for _, s := range date.Sources() {
					req.Sources = append(req.Sources, s.Clone())
				}
			}
		})
	}

	task := processor.NewProfileTask(ctx, req)
	task.Verbose = e.Config.ServiceConfig.Verbose
	go task.Run()
	go e.forwardProgress(task.ID, task.Progress)
	return task
}

// ExtractProfiles runs a profile extraction to completion, serving repeated
// requests from the cache when one is configured. The returned completion
// carries the outcome and the per-source error list.
func (e *Engine) ExtractProfiles(ctx context.Context, req processor.ProfileRequest) ([]*timeseries.TemporalProfile, *processor.Completion, error) {
	var key string
	if e.Cache != nil && len(req.URIs) > 0 {
		key = cache.Key(req.Points, req.CRS, req.URIs, req.SaveSources)
		if profiles, ok := e.Cache.Get(key); ok {
			return profiles, &processor.Completion{Outcome: timeseries.OutcomeSuccess}, nil
		}
	}

	task := e.StartProfileTask(ctx, req)
	collector := e.newCollector(task.ID, "profile")
	if collector != nil {
		collector.Info.NumSources = task.NumSources()
		collector.Info.NumPoints = len(req.Points)
	}

	profiles := <-task.Out
	c := <-task.Done
	if collector != nil {
		collector.Info.NumProfiles = len(profiles)
	}
	e.finishTask(c, collector)

	if c.Err != nil {
		return nil, c, c.Err
	}
	if c.Outcome == timeseries.OutcomeCancelled {
		return nil, c, timeseries.ErrCancelled
	}
	if len(key) > 0 && e.Cache != nil {
		e.Cache.Put(key, profiles)
	}
	return profiles, c, nil
}
