package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/hexatlas/internal/persistence"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

var scenarioArgs = []string{"--lat", "45", "--lon", "-93", "--edge-km", "9.2376", "--x", "5", "--y", "5", "--regions", "4"}

func TestRootShowsHelp(t *testing.T) {
	out, _, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "generate")
}

func TestGenerateJSONAndRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	args := append([]string{"generate", "--format", "json", "--db", dbPath, "--seed", "5"}, scenarioArgs...)
	out, _, err := execute(t, args...)
	require.NoError(t, err)

	var doc struct {
		Hexes   []map[string]any `json:"hexes"`
		Regions []map[string]any `json:"regions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Len(t, doc.Hexes, 25)
	assert.Len(t, doc.Regions, 4)

	store, err := persistence.Open(dbPath)
	require.NoError(t, err)
	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.Len(t, runs, 1)
	id := runs[0].ID
	assert.Equal(t, "noise:5", runs[0].Source)

	out, _, err = execute(t, "runs", "list", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, _, err = execute(t, "runs", "show", id, "--format", "json", "--db", dbPath)
	require.NoError(t, err)
	var run persistence.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Equal(t, id, run.ID)
	assert.Len(t, run.Hexes, 25)

	_, errOut, err := execute(t, "runs", "show", "missing", "--db", dbPath)
	require.Error(t, err)
	assert.Contains(t, errOut, "Run not found")
}

func TestGenerateFromAttributeFile(t *testing.T) {
	dir := t.TempDir()
	samples := filepath.Join(dir, "samples.json")
	require.NoError(t, os.WriteFile(samples, []byte(`[
		{"lat": 45.0, "lon": -93.0, "elevation": 2500, "precipitation": 10, "humidity": 0.1}
	]`), 0o644))

	outFile := filepath.Join(dir, "map.json")
	args := append([]string{"generate", "--attributes", samples, "--format", "json", "--out", outFile}, scenarioArgs...)
	out, _, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+outFile)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var doc struct {
		Hexes []struct {
			Terrain string `json:"terrain"`
		} `json:"hexes"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Hexes, 25)
	for _, h := range doc.Hexes {
		assert.Equal(t, "mountains", h.Terrain)
	}
}

func TestGenerateTable(t *testing.T) {
	args := append([]string{"generate", "--fuzzy", "--smooth"}, scenarioArgs...)
	out, _, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "25 hexes around")
	assert.Contains(t, out, "Terrain")
	assert.Contains(t, out, "Regions")
}

func TestGenerateUsesConfigMap(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "hexatlas.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
map:
  center: {lat: 45, lon: -93}
  edge_meters: 9237.6
  width: 4
  height: 3
  regions: 2
`), 0o644))

	out, _, err := execute(t, "--config", cfgPath, "generate", "--format", "json", "--x", "6")
	require.NoError(t, err)
	var doc struct {
		Request struct {
			Width   int `json:"width"`
			Height  int `json:"height"`
			Regions int `json:"regions"`
		} `json:"request"`
		Hexes []any `json:"hexes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 6, doc.Request.Width)
	assert.Equal(t, 3, doc.Request.Height)
	assert.Equal(t, 2, doc.Request.Regions)
	assert.Len(t, doc.Hexes, 18)
}

func TestGenerateStrictTolerance(t *testing.T) {
	args := []string{"generate", "--format", "json", "--tolerance", "0",
		"--lat", "45", "--lon", "-93", "--edge-km", "9.2376", "--x", "5", "--y", "5", "--regions", "5"}
	out, _, err := execute(t, args...)
	require.NoError(t, err)

	var doc struct {
		Regions []struct {
			Size int `json:"size"`
		} `json:"regions"`
		Warning string `json:"warning"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Regions, 5)
	if doc.Warning != "" {
		return
	}
	for _, r := range doc.Regions {
		assert.Equal(t, 5, r.Size)
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		title string
	}{
		{"zero regions", []string{"generate", "--regions", "0"}, "Invalid map request"},
		{"bad format", []string{"generate", "--format", "xml"}, "Unknown output format"},
		{"missing samples", []string{"generate", "--attributes", "/nonexistent/samples.json"}, "Cannot set up attribute source"},
		{"two attribute sources", []string{"generate", "--attributes", "a.json", "--attributes-url", "http://localhost:1"}, "Cannot set up attribute source"},
		{"bad config", []string{"--config", "/nonexistent/hexatlas.yml", "generate"}, "Invalid configuration"},
		{"negative tolerance", append([]string{"generate", "--tolerance", "-0.5"}, scenarioArgs...), "Invalid map request"},
		{"bad log level", []string{"--log-level", "loud", "generate"}, "Invalid logging options"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, errOut, err := execute(t, tc.args...)
			require.Error(t, err)
			assert.Contains(t, errOut, tc.title)
		})
	}
}
