// Package export writes finished maps as record-oriented JSON or MessagePack.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/talgya/hexatlas/internal/atlas"
)

// Format is an output encoding.
type Format string

const (
	JSON    Format = "json"
	Msgpack Format = "msgpack"
)

// ContentType is the HTTP media type for f.
func (f Format) ContentType() string {
	if f == Msgpack {
		return "application/x-msgpack"
	}
	return "application/json"
}

// ParseFormat accepts "json", "msgpack" or "messagepack".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "msgpack", "messagepack":
		return Msgpack, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Document is the serialized form of one map.
type Document struct {
	Request      atlas.Request         `json:"request"`
	Hexes        []atlas.HexRecord     `json:"hexes"`
	Regions      []atlas.RegionSummary `json:"regions"`
	Failures     []atlas.FailureRecord `json:"failures"`
	Warning      string                `json:"warning,omitempty"`
	SegmentError string                `json:"segment_error,omitempty"`
}

// NewDocument flattens a pipeline result.
func NewDocument(res *atlas.Result) Document {
	doc := Document{
		Request:  res.Request,
		Hexes:    res.Records(),
		Regions:  res.Summaries(),
		Failures: make([]atlas.FailureRecord, len(res.Failures)),
	}
	if doc.Regions == nil {
		doc.Regions = []atlas.RegionSummary{}
	}
	for i, f := range res.Failures {
		doc.Failures[i] = f.Record()
	}
	if res.Partition != nil {
		if warn := res.Partition.Warning(); warn != nil {
			doc.Warning = warn.Error()
		}
	}
	if res.SegmentErr != nil {
		doc.SegmentError = res.SegmentErr.Error()
	}
	return doc
}

// Write encodes v in format f.
func Write(w io.Writer, f Format, v any) error {
	switch f {
	case JSON:
		return WriteJSON(w, v)
	case Msgpack:
		return WriteMsgpack(w, v)
	}
	return fmt.Errorf("unknown export format %q", f)
}

// WriteJSON writes indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteMsgpack writes MessagePack using the same field names as the JSON form.
func WriteMsgpack(w io.Writer, v any) error {
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	return enc.Encode(v)
}
