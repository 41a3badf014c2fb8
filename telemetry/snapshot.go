package telemetry

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pthm-cable/sprout/components"
	"github.com/pthm-cable/sprout/systems"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

//go:embed snapshot.schema.json
var snapshotSchemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// Document holds the complete plant and environment state.
type Document struct {
	Version     int     `json:"version"`
	Tick        int64   `json:"tick"`
	Accumulator float64 `json:"accumulator"`

	Leafs []components.Organ `json:"leafs_biomass"`
	Stems []components.Organ `json:"stems_biomass"`
	Roots []components.Organ `json:"roots_biomass"`
	Seeds []components.Organ `json:"seeds_biomass"`

	Starch  systems.PoolState `json:"starch"`
	Water   systems.PoolState `json:"water"`
	Nitrate systems.PoolState `json:"nitrate"`

	Root          systems.RootState  `json:"root"`
	Environment   EnvironmentState   `json:"environment"`
	Transpiration TranspirationState `json:"transpiration"`
}

// EnvironmentState is the soil, weather and clock part of a Document.
type EnvironmentState struct {
	Water       [][]float64 `json:"water"`
	Nitrate     [][]float64 `json:"nitrate"`
	WaterRNG    []byte      `json:"water_rng"`
	NitrateRNG  []byte      `json:"nitrate_rng"`
	WeatherSeed int64       `json:"weather_seed"`
	Clock       float64     `json:"clock"`
}

// TranspirationState carries the CO2 flux the next step's water loss uses.
type TranspirationState struct {
	LastCO2Flux float64 `json:"last_co2_flux"`
}

// Organs returns the organ list stored for a kind.
func (d *Document) Organs(kind components.OrganKind) []components.Organ {
	switch kind {
	case components.KindLeaf:
		return d.Leafs
	case components.KindStem:
		return d.Stems
	case components.KindRoot:
		return d.Roots
	case components.KindSeed:
		return d.Seeds
	}
	return nil
}

// SetOrgans stores the organ list for a kind.
func (d *Document) SetOrgans(kind components.OrganKind, organs []components.Organ) {
	switch kind {
	case components.KindLeaf:
		d.Leafs = organs
	case components.KindStem:
		d.Stems = organs
	case components.KindRoot:
		d.Roots = organs
	case components.KindSeed:
		d.Seeds = organs
	}
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("snapshot.schema.json", snapshotSchemaJSON)
	})
	return schema, schemaErr
}

// ValidateDocument checks raw JSON against the snapshot schema.
func ValidateDocument(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile snapshot schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("validate snapshot: %w", err)
	}
	return nil
}

// EncodeDocument writes a zstd-compressed JSON document.
func EncodeDocument(w io.Writer, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return fmt.Errorf("compress snapshot: %w", err)
	}
	return enc.Close()
}

// DecodeDocument reads a zstd-compressed JSON document, validating it
// against the schema before decoding.
func DecodeDocument(r io.Reader) (*Document, error) {
	dec, err := zstd.NewReader(bufio.NewReader(r))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if doc.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", doc.Version, SnapshotVersion)
	}
	return &doc, nil
}

// MarshalDocument returns the compressed bytes of a document.
func MarshalDocument(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeDocument(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalDocument is DecodeDocument over a byte slice.
func UnmarshalDocument(data []byte) (*Document, error) {
	return DecodeDocument(bytes.NewReader(data))
}

// SaveSnapshot writes a document to dir and returns the path it was saved at.
func SaveSnapshot(doc *Document, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("snapshot_%d.json.zst", doc.Tick))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	if err := EncodeDocument(f, doc); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// LoadSnapshot reads a document from disk.
func LoadSnapshot(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	defer f.Close()
	return DecodeDocument(f)
}
