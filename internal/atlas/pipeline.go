package atlas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/hexatlas/internal/environment"
	"github.com/talgya/hexatlas/internal/faults"
	"github.com/talgya/hexatlas/internal/geodesy"
	"github.com/talgya/hexatlas/internal/hexgrid"
	"github.com/talgya/hexatlas/internal/region"
	"github.com/talgya/hexatlas/internal/terrain"
	"github.com/talgya/hexatlas/internal/world"
)

// Validate checks the request on its own.
func (r Request) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return faults.Config("size", "grid must be at least 1x1, got %dx%d", r.Width, r.Height)
	}
	cells, err := hexgrid.Cells(r.Width, r.Height)
	if err != nil {
		return err
	}
	if r.Regions <= 0 {
		return faults.Config("regions", "must be positive, got %d", r.Regions)
	}
	if r.Regions > cells {
		return faults.Config("regions", "%d regions requested for %d hexes", r.Regions, cells)
	}
	return nil
}

// Pipeline holds the validated stage components for repeated runs.
type Pipeline struct {
	opts       Options
	provider   environment.Provider
	classifier *terrain.Classifier
	segmenter  *region.Segmenter
}

// New validates opts and builds the classifier and segmenter.
func New(provider environment.Provider, opts Options) (*Pipeline, error) {
	if provider == nil {
		return nil, faults.Config("provider", "an environment provider is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = environment.DefaultBatchSize
	}
	classifier, err := terrain.New(opts.Terrain)
	if err != nil {
		return nil, err
	}
	seg := region.New()
	seg.Tolerance = opts.Tolerance
	seg.MaxIterations = opts.MaxIterations
	seg.MaxRebalancePasses = opts.MaxRebalancePasses
	if seg.Tolerance < 0 {
		return nil, faults.Config("tolerance", "must not be negative, got %v", seg.Tolerance)
	}
	if seg.MaxIterations <= 0 {
		return nil, faults.Config("max_iterations", "must be positive, got %d", seg.MaxIterations)
	}
	return &Pipeline{opts: opts, provider: provider, classifier: classifier, segmenter: seg}, nil
}

// Run builds one map. Configuration errors are returned before any hex is
// created. Hexes whose centers cannot be projected are reported in
// Result.Failures and skipped downstream; the run still completes.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	proj, err := geodesy.NewProjector(req.Center, req.EdgeMeters,
		geodesy.WithPoleLimit(p.opts.PoleLimit),
		geodesy.WithWrapLongitude(p.opts.WrapLongitude))
	if err != nil {
		return nil, err
	}

	grid, err := world.NewGrid(req.Width, req.Height)
	if err != nil {
		return nil, err
	}
	res := &Result{Request: req, Grid: grid}

	start := time.Now()
	live, err := p.project(ctx, proj, res)
	if err != nil {
		return nil, err
	}
	slog.Info("projected hex centers", "hexes", grid.Len(), "failed", len(res.Failures), "elapsed", time.Since(start))

	start = time.Now()
	if err := p.resolve(ctx, grid, live); err != nil {
		return nil, err
	}
	slog.Info("resolved attributes", "hexes", len(live), "batch_size", p.opts.BatchSize, "elapsed", time.Since(start))

	start = time.Now()
	if err := p.classify(ctx, grid, live); err != nil {
		return nil, err
	}
	slog.Info("classified terrain", "mode", p.classifier.Mode(), "smooth", p.opts.Terrain.Smooth, "elapsed", time.Since(start))

	start = time.Now()
	if err := p.segment(grid, live, req.Regions, res); err != nil {
		return nil, err
	}
	if res.Partition != nil {
		slog.Info("segmented regions", "regions", len(res.Partition.Regions), "sizes", res.Partition.Sizes(),
			"passes", res.Partition.Passes, "elapsed", time.Since(start))
		if warn := res.Partition.Warning(); warn != nil {
			slog.Warn("region balance outside tolerance", "error", warn)
		}
	}
	return res, nil
}

// Run is a one-shot convenience around New and Pipeline.Run.
func Run(ctx context.Context, req Request, provider environment.Provider, opts Options) (*Result, error) {
	p, err := New(provider, opts)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, req)
}

// project fills hex centers in parallel and returns the positions that
// succeeded, in grid order.
func (p *Pipeline) project(ctx context.Context, proj *geodesy.Projector, res *Result) ([]int, error) {
	grid := res.Grid
	errs := make([]error, grid.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i := 0; i < grid.Len(); i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h := grid.At(i)
			center, err := proj.Project(h.Coord)
			if err != nil {
				errs[i] = err
				return nil
			}
			return h.SetCenter(center)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("project centers: %w", err)
	}

	live := make([]int, 0, grid.Len())
	for i, err := range errs {
		if err == nil {
			live = append(live, i)
			continue
		}
		var rangeErr *geodesy.RangeError
		if !errors.As(err, &rangeErr) && !errors.Is(err, faults.ErrGeodesicRange) {
			return nil, fmt.Errorf("project hex %v: %w", grid.At(i).Coord, err)
		}
		slog.Warn("hex center out of range", "hex", grid.At(i).Coord, "error", err)
		res.Failures = append(res.Failures, Failure{Coord: grid.At(i).Coord, Err: err})
	}
	return live, nil
}

func (p *Pipeline) resolve(ctx context.Context, grid *world.Grid, live []int) error {
	points := make([]geodesy.GeoPoint, len(live))
	for k, i := range live {
		points[k] = grid.At(i).Center
	}
	attrs, err := environment.ResolveBatched(ctx, p.provider, points, p.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("resolve attributes: %w", err)
	}
	for k, i := range live {
		if err := grid.At(i).SetAttributes(attrs[k]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) classify(ctx context.Context, grid *world.Grid, live []int) error {
	results := make([]terrain.Result, len(live))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for k, i := range live {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[k] = p.classifier.Classify(grid.At(i).Attributes)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("classify terrain: %w", err)
	}

	if p.opts.Terrain.Smooth {
		pos := make(map[int]int, len(live))
		for k, i := range live {
			pos[i] = k
		}
		results = terrain.Smooth(results, func(k int) []int {
			var out []int
			for _, n := range grid.Neighbors(live[k]) {
				if j, ok := pos[n]; ok {
					out = append(out, j)
				}
			}
			return out
		})
	}

	for k, i := range live {
		if err := grid.At(i).SetTerrain(results[k]); err != nil {
			return err
		}
	}
	return nil
}

// segment partitions the live hexes on the calling goroutine. When
// projection failures leave an input the segmenter rejects, the error is
// recorded on the result instead of failing the run.
func (p *Pipeline) segment(grid *world.Grid, live []int, n int, res *Result) error {
	sites := make([]region.Site, len(live))
	for k, i := range live {
		h := grid.At(i)
		sites[k] = region.Site{Coord: h.Coord, Center: h.Center}
	}
	part, err := p.segmenter.Segment(sites, n)
	if err != nil {
		if len(res.Failures) > 0 && faults.IsConfiguration(err) {
			slog.Warn("segmentation skipped", "error", err)
			res.SegmentErr = err
			return nil
		}
		return fmt.Errorf("segment regions: %w", err)
	}
	for k, i := range live {
		if err := grid.At(i).SetRegion(part.Assign[sites[k].Coord]); err != nil {
			return err
		}
	}
	res.Partition = part
	return nil
}
