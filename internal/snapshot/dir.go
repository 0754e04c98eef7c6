package snapshot

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/aether/internal/engine"
	"github.com/roach88/aether/internal/grid"
	"github.com/roach88/aether/internal/lattice"
	"github.com/roach88/aether/internal/num"
	"github.com/roach88/aether/internal/record"
)

// Directory snapshot layout.
const (
	PropertiesFile = "properties.yaml"
	ComplianceFile = "compliance.data"
)

// Properties is the properties.yaml record of a directory snapshot.
type Properties struct {
	Model                  string `yaml:"model"`
	InitialConfiguration   string `yaml:"initial_configuration"`
	InitialType            string `yaml:"initial_configuration_type"`
	Dimension              int    `yaml:"grid_dimension"`
	GridImplementationType string `yaml:"grid_implementation_type"`
	CoordinateBounds       int    `yaml:"coordinate_bounds"`
	Step                   int64  `yaml:"step"`
	Changed                *bool  `yaml:"configuration_changed_from_previous_step,omitempty"`
	DataFile               string `yaml:"data_file"`
	DataDigest             string `yaml:"data_digest"`
	ComplianceFile         string `yaml:"compliance_file,omitempty"`
}

// SaveDir writes a file-backed automaton's committed generation and
// properties into dir. properties.yaml is written last, so a directory
// without it holds no complete snapshot.
func SaveDir(m *engine.Automaton[int64], dir string, tracker *engine.ComplianceTracker) (Properties, error) {
	s := m.State()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Properties{}, fmt.Errorf("snapshot: create %s: %w", dir, err)
	}
	previous, _ := ReadProperties(dir)

	props := Properties{
		Model:                  ModelAether,
		InitialConfiguration:   fmt.Sprint(m.Initial()),
		InitialType:            SingleSourceAtOrigin,
		Dimension:              s.Dimension,
		GridImplementationType: GridOffsetFile,
		CoordinateBounds:       s.Bound,
		Step:                   s.Step,
		Changed:                &s.Changed,
		DataFile:               grid.StepFileName(s.Step),
	}

	digest := record.NewDigester(record.DomainGrid)
	err := writeFile(filepath.Join(dir, props.DataFile), func(w io.Writer) error {
		return writeRecords(m, io.MultiWriter(w, digest))
	})
	if err != nil {
		return Properties{}, err
	}
	props.DataDigest = digest.Sum()

	if tracker != nil && s.Step > 0 && tracker.Step() == s.Step {
		props.ComplianceFile = ComplianceFile
		bits := appendBits(nil, tracker.Grid())
		err := writeFile(filepath.Join(dir, ComplianceFile), func(w io.Writer) error {
			_, err := w.Write(bits)
			return err
		})
		if err != nil {
			return Properties{}, err
		}
	}

	data, err := yaml.Marshal(&props)
	if err != nil {
		return Properties{}, fmt.Errorf("snapshot: encode properties: %w", err)
	}
	err = writeFile(filepath.Join(dir, PropertiesFile), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return Properties{}, err
	}
	// the replaced snapshot's data file is no longer referenced
	if old := previous.DataFile; old != "" && old != props.DataFile && old == filepath.Base(old) {
		if err := os.Remove(filepath.Join(dir, old)); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.Logger().Warn("failed to remove replaced data file", "path", filepath.Join(dir, old), "error", err)
		}
	}
	m.Logger().Info("saved snapshot directory", "dir", dir, "step", s.Step, "bound", s.Bound)
	return props, nil
}

// writeRecords streams the committed generation as big-endian int64
// records. A file generation is copied as is.
func writeRecords(m *engine.Automaton[int64], w io.Writer) error {
	if fb, ok := m.Backend().(*grid.FileBackend); ok && fb.CurrentFile() != nil {
		_, err := fb.CurrentFile().WriteTo(w)
		return err
	}
	s := m.State()
	cur := m.Current()
	var buf [grid.RecordSize]byte
	return lattice.Walk(s.Dimension, s.Extent(), func(p lattice.Position) error {
		v, err := cur.Value(p)
		if err != nil {
			return err
		}
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		_, err = w.Write(buf[:])
		return err
	})
}

// writeFile writes path through a temporary file renamed into place.
func writeFile(path string, fn func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("snapshot: create %s: %w", tmp, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("snapshot: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("snapshot: rename %s: %w", tmp, err)
	}
	return nil
}

// ReadProperties decodes dir's properties.yaml, rejecting unknown keys.
func ReadProperties(dir string) (Properties, error) {
	var props Properties
	data, err := os.ReadFile(filepath.Join(dir, PropertiesFile))
	if err != nil {
		return props, fmt.Errorf("snapshot: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&props); err != nil {
		return props, corrupt(PropertiesFile, err)
	}
	return props, nil
}

// LoadDir resumes a file-backed automaton from a directory written by
// SaveDir. The data file is verified against its digest and then read in
// place; it is never modified or deleted.
func LoadDir(ctx context.Context, dir string, tracker *engine.ComplianceTracker, opts ...engine.Option) (*engine.Automaton[int64], error) {
	props, err := ReadProperties(dir)
	if err != nil {
		return nil, err
	}
	h, err := props.header()
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, props.DataFile)
	if err := verifyFile(path, props.DataDigest); err != nil {
		return nil, err
	}

	var flags []bool
	if props.ComplianceFile != "" && tracker != nil {
		if strings.ContainsAny(props.ComplianceFile, `/\`) {
			return nil, corrupt(TagCompliance, fmt.Errorf("compliance file %q is not a plain name", props.ComplianceFile))
		}
		raw, err := os.ReadFile(filepath.Join(dir, props.ComplianceFile))
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		if flags, err = decodeBits(raw); err != nil {
			return nil, corrupt(TagCompliance, err)
		}
	}

	initial, err := num.Int64{}.Parse(h.initial)
	if err != nil {
		return nil, corrupt(TagInitialConfiguration, err)
	}
	if tracker != nil {
		opts = append(opts, engine.WithObserver(tracker))
	}
	m, err := engine.AdoptFile(path, initial, h.state, opts...)
	if err != nil {
		return nil, err
	}
	return settle(ctx, m, h, tracker, flags)
}

// ExpectDimension rejects a directory snapshot of a lattice other than dim.
func (p Properties) ExpectDimension(dim int) error { return expectDimension(p.Dimension, dim) }

func (p Properties) header() (header, error) {
	var h header
	checks := []struct{ tag, got, want string }{
		{TagModel, p.Model, ModelAether},
		{TagInitialConfigurationType, p.InitialType, SingleSourceAtOrigin},
		{TagGridImplementationType, p.GridImplementationType, GridOffsetFile},
	}
	for _, c := range checks {
		if c.got != c.want {
			return h, &Error{Code: ErrCodeIncompatible, Tag: c.tag, Expected: c.want, Actual: c.got}
		}
	}
	switch {
	case p.Dimension < 1:
		return h, corrupt(TagGridDimension, fmt.Errorf("dimension %d", p.Dimension))
	case p.Step < 0:
		return h, corrupt(TagStep, fmt.Errorf("negative step %d", p.Step))
	case p.CoordinateBounds < 0:
		return h, corrupt(TagCoordinateBounds, fmt.Errorf("negative bound %d", p.CoordinateBounds))
	case p.DataFile == "" || strings.ContainsAny(p.DataFile, `/\`):
		return h, corrupt(TagGrid, fmt.Errorf("data file %q is not a plain name", p.DataFile))
	}
	initial, ok := new(big.Int).SetString(p.InitialConfiguration, 10)
	if !ok {
		return h, corrupt(TagInitialConfiguration, fmt.Errorf("not an integer: %q", p.InitialConfiguration))
	}

	h.initial = initial.String()
	h.hasChanged = p.Changed != nil
	h.state = engine.State{
		Dimension: p.Dimension,
		Step:      p.Step,
		Bound:     p.CoordinateBounds,
		EvenTurn:  engine.EvenTurnAt(initial.Sign() >= 0, p.Step),
		Changed:   p.Changed == nil || *p.Changed,
	}
	return h, nil
}

// verifyFile streams path through a grid digester and compares the result.
func verifyFile(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer f.Close()
	d := record.NewDigester(record.DomainGrid)
	if _, err := io.Copy(d, f); err != nil {
		return fmt.Errorf("snapshot: read %s: %w", path, err)
	}
	if got := d.Sum(); got != want {
		return &Error{Code: ErrCodeCorrupt, Tag: TagGrid, Expected: want, Actual: got}
	}
	return nil
}
