package printer

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/talgya/hexatlas/internal/atlas"
	"github.com/talgya/hexatlas/internal/persistence"
	"github.com/talgya/hexatlas/internal/terrain"
)

// RegionTable renders one row per region summary.
func RegionTable(w io.Writer, sums []atlas.RegionSummary) error {
	rows := make([][]string, 0, len(sums))
	for _, s := range sums {
		rows = append(rows, []string{
			strconv.Itoa(s.ID),
			strconv.Itoa(s.Size),
			fmt.Sprintf("%.4f", s.CentroidLat),
			fmt.Sprintf("%.4f", s.CentroidLon),
			s.Dominant,
			optional(s.MeanElevation, "%.0f"),
			optional(s.ElevationStdDev, "%.0f"),
		})
	}
	table := tablewriter.NewWriter(w)
	table.Header("Region", "Hexes", "Lat", "Lon", "Dominant", "Elev mean", "Elev sd")
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// TerrainTable renders the terrain distribution in label order.
func TerrainTable(w io.Writer, counts map[terrain.Label]int) error {
	total := 0
	for _, n := range counts {
		total += n
	}
	var rows [][]string
	for _, l := range terrain.Labels {
		n := counts[l]
		if n == 0 {
			continue
		}
		rows = append(rows, []string{l.String(), strconv.Itoa(n), fmt.Sprintf("%.1f%%", 100*float64(n)/float64(total))})
	}
	table := tablewriter.NewWriter(w)
	table.Header("Terrain", "Hexes", "Share")
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// RunsTable renders stored run headers.
func RunsTable(w io.Writer, runs []persistence.RunInfo) error {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		balanced := "yes"
		if !r.ToleranceMet {
			balanced = "no"
		}
		rows = append(rows, []string{
			r.ID,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.4f,%.4f", r.CenterLat, r.CenterLon),
			fmt.Sprintf("%dx%d", r.Width, r.Height),
			strconv.Itoa(r.Regions),
			r.Mode,
			r.Source,
			strconv.Itoa(r.FailureCount),
			balanced,
		})
	}
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Created", "Center", "Size", "Regions", "Mode", "Source", "Failed", "Balanced")
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func optional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}
