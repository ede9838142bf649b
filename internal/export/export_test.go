package export_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/talgya/hexatlas/internal/atlas"
	"github.com/talgya/hexatlas/internal/environment"
	"github.com/talgya/hexatlas/internal/export"
	"github.com/talgya/hexatlas/internal/geodesy"
)

func result(t *testing.T) *atlas.Result {
	t.Helper()
	req := atlas.Request{
		Center:     geodesy.GeoPoint{Lat: 45, Lon: -93},
		EdgeMeters: 16000 / math.Sqrt(3),
		Width:      5,
		Height:     5,
		Regions:    4,
	}
	res, err := atlas.Run(context.Background(), req, environment.NewNoiseProvider(11), atlas.DefaultOptions())
	require.NoError(t, err)
	return res
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]export.Format{"json": export.JSON, " JSON ": export.JSON, "msgpack": export.Msgpack, "MessagePack": export.Msgpack} {
		got, err := export.ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := export.ParseFormat("xml")
	assert.Error(t, err)
	assert.Equal(t, "application/x-msgpack", export.Msgpack.ContentType())
}

func TestWriteJSON(t *testing.T) {
	doc := export.NewDocument(result(t))
	var buf bytes.Buffer
	require.NoError(t, export.Write(&buf, export.JSON, doc))

	var out struct {
		Request struct {
			Center  map[string]float64 `json:"center"`
			Regions int                `json:"regions"`
		} `json:"request"`
		Hexes    []map[string]any `json:"hexes"`
		Regions  []map[string]any `json:"regions"`
		Failures []any            `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, 45.0, out.Request.Center["lat"])
	assert.Equal(t, 4, out.Request.Regions)
	require.Len(t, out.Hexes, 25)
	assert.Len(t, out.Regions, 4)
	assert.NotNil(t, out.Failures)
	assert.Empty(t, out.Failures)

	for _, key := range []string{"q", "r", "s", "lat", "lon", "elevation", "precipitation", "humidity", "slope", "vegetation", "terrain", "confidence", "region"} {
		assert.Contains(t, out.Hexes[0], key)
	}
	assert.Contains(t, out.Regions[0], "dominant_terrain")
}

func TestWriteMsgpackUsesJSONNames(t *testing.T) {
	doc := export.NewDocument(result(t))
	var buf bytes.Buffer
	require.NoError(t, export.Write(&buf, export.Msgpack, doc))

	var out map[string]any
	require.NoError(t, msgpack.Unmarshal(buf.Bytes(), &out))
	hexes, ok := out["hexes"].([]any)
	require.True(t, ok)
	require.Len(t, hexes, 25)
	first, ok := hexes[0].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, first, "terrain")
	assert.Contains(t, first, "region")
	assert.NotContains(t, out, "warning")
}

func TestDocumentSegmentError(t *testing.T) {
	req := atlas.Request{
		Center:     geodesy.GeoPoint{Lat: 60, Lon: 10},
		EdgeMeters: 10000,
		Width:      3,
		Height:     5,
		Regions:    14,
	}
	opts := atlas.DefaultOptions()
	opts.PoleLimit = 60.2
	res, err := atlas.Run(context.Background(), req, environment.NewNoiseProvider(1), opts)
	require.NoError(t, err)

	doc := export.NewDocument(res)
	assert.Len(t, doc.Failures, 3)
	assert.NotEmpty(t, doc.SegmentError)
	assert.Empty(t, doc.Regions)
	assert.NotNil(t, doc.Regions)
	assert.Len(t, doc.Hexes, 12)
}

func TestWriteUnknownFormat(t *testing.T) {
	assert.Error(t, export.Write(&bytes.Buffer{}, export.Format("xml"), nil))
}
