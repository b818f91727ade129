package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"FlowSpectra/internal/classifier"
	"FlowSpectra/internal/config"
	"FlowSpectra/internal/extractor"
	"FlowSpectra/internal/factory"
	"FlowSpectra/internal/geo"
	"FlowSpectra/internal/graph"
	"FlowSpectra/internal/logquery"
	"FlowSpectra/internal/model"
	_ "FlowSpectra/internal/sink" // Registers clickhouse and nats sinks
	"FlowSpectra/internal/table"
	"FlowSpectra/internal/tagger"

	"github.com/charmbracelet/log"
)

// Stage names accepted by RunStage.
const (
	StagePrefixes = "prefixes"
	StageExtract  = "extract"
	StageTag      = "tag"
	StageGraph    = "graph"
	StageRun      = "run"
)

// PrefixSource produces the filtered prefix table.
type PrefixSource interface {
	Build(ctx context.Context, region, excludeService string) ([]model.PrefixEntry, error)
}

// Runner executes the analysis stages against the files under output.dir.
type Runner struct {
	cfg      *config.Config
	prefixes PrefixSource
	query    extractor.QueryRunner
	sinks    []model.Sink
	ownSinks bool
	locator  *geo.Locator
	renderer *graph.Renderer
	now      func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithPrefixSource sets the source used by the prefixes stage.
func WithPrefixSource(src PrefixSource) Option {
	return func(r *Runner) { r.prefixes = src }
}

// WithQueryRunner sets the log query backend used by the extract stage.
func WithQueryRunner(q extractor.QueryRunner) Option {
	return func(r *Runner) { r.query = q }
}

// WithSinks replaces the sinks built from the config.
func WithSinks(sinks ...model.Sink) Option {
	return func(r *Runner) {
		r.sinks = sinks
		r.ownSinks = true
	}
}

// WithLocator enables country captions on internet nodes.
func WithLocator(l *geo.Locator) Option {
	return func(r *Runner) { r.locator = l }
}

// WithRenderer overrides the graph renderer.
func WithRenderer(rd *graph.Renderer) Option {
	return func(r *Runner) { r.renderer = rd }
}

// WithClock sets the time source of the query window.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner. Sinks enabled in cfg are created unless
// WithSinks is given.
func NewRunner(cfg *config.Config, opts ...Option) (*Runner, error) {
	r := &Runner{
		cfg:      cfg,
		renderer: graph.NewRenderer(cfg.Output.GraphFormat),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if !r.ownSinks {
		sinks, err := factory.Create(cfg)
		if err != nil {
			return nil, err
		}
		r.sinks = sinks
	}
	return r, nil
}

// Close releases the sinks and the geo database.
func (r *Runner) Close() error {
	factory.CloseAll(r.sinks)
	return r.locator.Close()
}

// RunStage executes a stage by name.
func (r *Runner) RunStage(ctx context.Context, stage string) error {
	var err error
	switch stage {
	case StagePrefixes:
		_, err = r.Prefixes(ctx)
	case StageExtract:
		_, err = r.Extract(ctx)
	case StageTag:
		_, err = r.Tag(ctx)
	case StageGraph:
		_, err = r.Graph(ctx)
	case StageRun:
		err = r.Run(ctx)
	default:
		err = fmt.Errorf("unknown stage '%s'", stage)
	}
	return err
}

// Run executes prefixes, extract, tag and graph in order, stopping at the
// first failure.
func (r *Runner) Run(ctx context.Context) error {
	start := time.Now()
	if _, err := r.Prefixes(ctx); err != nil {
		return err
	}
	if _, err := r.Extract(ctx); err != nil {
		return err
	}
	if _, err := r.Tag(ctx); err != nil {
		return err
	}
	path, err := r.Graph(ctx)
	if err != nil {
		return err
	}
	log.Info("Pipeline completed", "graph", path, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// Prefixes fetches the published ranges and writes the prefix table.
func (r *Runner) Prefixes(ctx context.Context) ([]model.PrefixEntry, error) {
	if r.prefixes == nil {
		return nil, errors.New("no prefix source configured")
	}
	entries, err := r.prefixes.Build(ctx, r.cfg.Prefixes.Region, r.cfg.Prefixes.ExcludeService)
	if err != nil {
		return nil, fmt.Errorf("failed to build prefix table: %w", err)
	}

	path := r.cfg.Output.Path(r.cfg.Output.PrefixTable)
	if err := table.WriteFile(path, func(w io.Writer) error { return table.WritePrefixes(w, entries) }); err != nil {
		return nil, err
	}
	log.Info("Wrote prefix table", "path", path, "entries", len(entries))
	return entries, nil
}

// Extract queries the flow logs of the configured interface over the
// lookback window and writes the traffic table.
func (r *Runner) Extract(ctx context.Context) ([]model.FlowRecord, error) {
	if r.query == nil {
		return nil, errors.New("no log query client configured")
	}
	lookback, err := r.cfg.LookbackDuration()
	if err != nil {
		return nil, err
	}

	q := r.cfg.Query
	tr := logquery.LastWindow(r.now(), lookback)
	records, err := extractor.New(r.query).Extract(ctx, q.LogGroup, q.InterfaceID, tr, q.Limit)
	if err != nil {
		return nil, err
	}

	path := r.cfg.Output.Path(r.cfg.Output.TrafficTable)
	if err := table.WriteFile(path, func(w io.Writer) error { return table.WriteTraffic(w, records) }); err != nil {
		return nil, err
	}
	log.Info("Wrote traffic table", "path", path, "records", len(records), "interface_id", q.InterfaceID)
	return records, nil
}

// Tag labels both endpoints of every traffic record, writes the tagged
// table and hands the rows to the sinks.
func (r *Runner) Tag(ctx context.Context) ([]model.TaggedFlowRecord, error) {
	out := r.cfg.Output
	entries, err := table.ReadFile(out.Path(out.PrefixTable), table.ReadPrefixes)
	if err != nil {
		return nil, err
	}
	c, err := classifier.New(r.cfg.Classifier.InternalCIDR, entries)
	if err != nil {
		return nil, err
	}
	if skipped := c.Skipped(); len(skipped) > 0 {
		log.Warn("Skipped unparsable prefix entries", "count", len(skipped), "prefixes", skipped)
	}

	records, err := table.ReadFile(out.Path(out.TrafficTable), table.ReadTraffic)
	if err != nil {
		return nil, err
	}
	tagged := tagger.TagAll(records, c)

	path := out.Path(out.TaggedTable)
	if err := table.WriteFile(path, func(w io.Writer) error { return table.WriteTagged(w, tagged) }); err != nil {
		return nil, err
	}
	log.Info("Wrote tagged table", "path", path, "records", len(tagged), "ranges", c.Ranges())

	if err := r.writeSinks(ctx, tagged); err != nil {
		return nil, err
	}
	return tagged, nil
}

// writeSinks fans the tagged rows out to every sink concurrently.
func (r *Runner) writeSinks(ctx context.Context, tagged []model.TaggedFlowRecord) error {
	if len(r.sinks) == 0 {
		return nil
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	wg.Add(len(r.sinks))
	for _, s := range r.sinks {
		go func(s model.Sink) {
			defer wg.Done()
			if err := s.Write(ctx, tagged); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
				mu.Unlock()
				return
			}
			log.Debug("Wrote tagged records to sink", "sink", s.Name(), "records", len(tagged))
		}(s)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Graph builds the traffic graph from the tagged table, renders it and
// writes summary.json alongside. It returns the image path.
func (r *Runner) Graph(ctx context.Context) (string, error) {
	out := r.cfg.Output
	tagged, err := table.ReadFile(out.Path(out.TaggedTable), table.ReadTagged)
	if err != nil {
		return "", err
	}

	g := graph.Build(tagged)
	for addr, labels := range g.Conflicts {
		log.Warn("Address seen with several labels, keeping the last", "address", addr, "labels", labels, "kept", g.Nodes[addr])
	}

	if r.locator != nil {
		r.renderer.NodeLabel = r.countryCaption
	}
	base := out.Path(out.GraphName)
	path, err := r.renderer.Render(ctx, g, base)
	if err != nil {
		return "", fmt.Errorf("failed to render graph: %w", err)
	}
	summaryPath, err := graph.WriteSummary(g, filepath.Dir(base))
	if err != nil {
		return "", err
	}
	log.Info("Rendered traffic graph", "path", path, "summary", summaryPath, "nodes", len(g.Nodes), "edges", len(g.Edges))
	return path, nil
}

func (r *Runner) countryCaption(addr string, label model.Label) string {
	if label != model.LabelInternet {
		return addr
	}
	if cc := r.locator.Country(addr); cc != "" {
		return addr + "\n" + cc
	}
	return addr
}
