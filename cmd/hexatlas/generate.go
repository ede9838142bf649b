package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/hexatlas/internal/atlas"
	"github.com/talgya/hexatlas/internal/environment"
	"github.com/talgya/hexatlas/internal/export"
	"github.com/talgya/hexatlas/internal/faults"
	"github.com/talgya/hexatlas/internal/printer"
	"github.com/talgya/hexatlas/internal/terrain"
)

type generateFlags struct {
	lat, lon      float64
	edgeKm        float64
	width         int
	height        int
	regions       int
	seed          int64
	fuzzy         bool
	smooth        bool
	attributes    string
	attributesURL string
	maxSampleKm   float64
	format        string
	out           string
	db            string
	save          bool
	workers       int
	tolerance     float64
}

func newGenerateCmd(a *app) *cobra.Command {
	f := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build a hex map around a point",
		Long: `Build a hex map around a geographic center.

Attributes come from a JSON sample file (--attributes), an HTTP attribute
service (--attributes-url) or, by default, from deterministic noise seeded
with --seed. Flags override the map section of
the configuration file.

Examples:
  # 5x5 hexes spaced 16 km apart around Minneapolis, four regions
  hexatlas generate --lat 45 --lon -93 --edge-km 9.2376 --x 5 --y 5 --regions 4

  # fuzzy boundaries, exported as MessagePack
  hexatlas generate --lat 46.5 --lon 8 --x 40 --y 30 --regions 9 --fuzzy --format msgpack --out alps.msgpack`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGenerate(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.Float64Var(&f.lat, "lat", 0, "center latitude in degrees")
	fl.Float64Var(&f.lon, "lon", 0, "center longitude in degrees")
	fl.Float64Var(&f.edgeKm, "edge-km", 10, "hex edge length in kilometers")
	fl.IntVar(&f.width, "x", 10, "hexes per row")
	fl.IntVar(&f.height, "y", 10, "rows")
	fl.IntVar(&f.regions, "regions", 4, "number of regions")
	fl.Int64Var(&f.seed, "seed", 42, "noise seed when no attribute file is given")
	fl.BoolVar(&f.fuzzy, "fuzzy", false, "use fuzzy rule boundaries")
	fl.BoolVar(&f.smooth, "smooth", false, "smooth isolated terrain labels")
	fl.StringVar(&f.attributes, "attributes", "", "JSON file of attribute samples [{lat, lon, elevation, ...}]")
	fl.StringVar(&f.attributesURL, "attributes-url", "", "HTTP service answering POST {points} with {attributes}")
	fl.Float64Var(&f.maxSampleKm, "max-sample-km", 0, "ignore samples farther than this from a hex center (0 = no limit)")
	fl.StringVarP(&f.format, "format", "f", "table", "output format: table, json or msgpack")
	fl.StringVarP(&f.out, "out", "o", "", "write json/msgpack output to this file instead of stdout")
	fl.StringVar(&f.db, "db", "", "save the run to this database (default from config when --save)")
	fl.BoolVar(&f.save, "save", false, "save the run to the configured database")
	fl.IntVar(&f.workers, "workers", 0, "parallel workers (0 = from config)")
	fl.Float64Var(&f.tolerance, "tolerance", 0, "region size tolerance as a fraction of total/regions (default from config)")
	return cmd
}

// request merges the config map section with explicitly set flags.
func (f *generateFlags) request(cmd *cobra.Command, base *atlas.Request) atlas.Request {
	var req atlas.Request
	useFlag := func(name string) bool { return base == nil || cmd.Flags().Changed(name) }
	if base != nil {
		req = *base
	}
	if useFlag("lat") {
		req.Center.Lat = f.lat
	}
	if useFlag("lon") {
		req.Center.Lon = f.lon
	}
	if useFlag("edge-km") {
		req.EdgeMeters = f.edgeKm * 1000
	}
	if useFlag("x") {
		req.Width = f.width
	}
	if useFlag("y") {
		req.Height = f.height
	}
	if useFlag("regions") {
		req.Regions = f.regions
	}
	return req
}

func (a *app) runGenerate(cmd *cobra.Command, f *generateFlags) error {
	format := f.format
	if format != "table" {
		ef, err := export.ParseFormat(format)
		if err != nil {
			return printer.Error("Unknown output format", err.Error(), "use --format table, json or msgpack")
		}
		format = string(ef)
	}

	req := f.request(cmd, a.cfg.Map)
	opts := a.cfg.Pipeline
	if f.fuzzy {
		opts.Terrain.Mode = terrain.Fuzzy
	}
	if f.smooth {
		opts.Terrain.Smooth = true
	}
	if f.workers > 0 {
		opts.Workers = f.workers
	}
	if cmd.Flags().Changed("tolerance") {
		opts.Tolerance = f.tolerance
	}

	provider, source, err := f.provider()
	if err != nil {
		return printer.Error("Cannot set up attribute source", err.Error())
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	slog.Info("generating map", "center", req.Center, "size", fmt.Sprintf("%dx%d", req.Width, req.Height),
		"regions", req.Regions, "source", source, "mode", opts.Terrain.Mode)
	res, err := atlas.Run(ctx, req, provider, opts)
	if err != nil {
		if faults.IsConfiguration(err) {
			return printer.Error("Invalid map request", err.Error(), "check the flags and the map section of the config")
		}
		return printer.Error("Map generation failed", err.Error())
	}

	if f.save || f.db != "" {
		db, err := a.openDB(f.db)
		if err != nil {
			return printer.Error("Cannot open database", err.Error())
		}
		defer db.Close()
		info, err := db.SaveRun(res, string(opts.Terrain.Mode), source)
		if err != nil {
			return printer.Error("Cannot save run", err.Error())
		}
		slog.Info("run saved", "id", info.ID)
		if format == "table" {
			printer.Success("saved run %s\n", info.ID)
		}
	}

	if format == "table" {
		return printSummary(cmd.OutOrStdout(), res)
	}
	return writeExport(cmd.OutOrStdout(), f.out, export.Format(format), export.NewDocument(res))
}

func (f *generateFlags) provider() (environment.Provider, string, error) {
	if f.attributes != "" && f.attributesURL != "" {
		return nil, "", fmt.Errorf("--attributes and --attributes-url are exclusive")
	}
	if f.attributesURL != "" {
		return environment.NewRemoteProvider(f.attributesURL), "url:" + f.attributesURL, nil
	}
	if f.attributes == "" {
		return environment.NewNoiseProvider(f.seed), fmt.Sprintf("noise:%d", f.seed), nil
	}
	data, err := os.ReadFile(f.attributes)
	if err != nil {
		return nil, "", err
	}
	var samples []environment.Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", f.attributes, err)
	}
	for i, s := range samples {
		if !s.GeoPoint.Valid() {
			return nil, "", fmt.Errorf("sample %d: invalid coordinate %v", i, s.GeoPoint)
		}
	}
	slog.Info("loaded attribute samples", "file", f.attributes, "samples", len(samples))
	p := &environment.StaticProvider{Samples: samples, MaxDistance: f.maxSampleKm * 1000}
	return p, "file:" + f.attributes, nil
}

func printSummary(w io.Writer, res *atlas.Result) error {
	printer.Success("%d hexes around %v\n", res.Grid.Len(), res.Request.Center)
	for _, fl := range res.Failures {
		printer.Warning("hex %v skipped: %v\n", fl.Coord, fl.Err)
	}

	printer.Heading("\nTerrain")
	if err := printer.TerrainTable(w, res.TerrainCounts()); err != nil {
		return err
	}

	if res.Partition == nil {
		printer.Warning("no regions: %v\n", res.SegmentErr)
		return nil
	}
	printer.Heading("\nRegions")
	if err := printer.RegionTable(w, res.Summaries()); err != nil {
		return err
	}
	if warn := res.Partition.Warning(); warn != nil {
		printer.Warning("%v\n", warn)
	}
	return nil
}

// writeExport writes doc to path, or to w when path is empty.
func writeExport(w io.Writer, path string, format export.Format, doc any) error {
	if path == "" {
		return export.Write(w, format, doc)
	}
	file, err := os.Create(path)
	if err != nil {
		return printer.Error("Cannot create output file", err.Error())
	}
	if err := export.Write(file, format, doc); err != nil {
		file.Close()
		return printer.Error("Cannot write output", err.Error())
	}
	if err := file.Close(); err != nil {
		return err
	}
	printer.Success("wrote %s (%s)\n", path, format)
	return nil
}
