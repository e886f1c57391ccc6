// Package fixture reads raw audit events from files.
//
// Two layouts are accepted:
//
//   - YAML or JSON documents (.yaml, .yml, .json), either a bare list of
//     events or a mapping with name, description and events keys
//   - JSON Lines (.jsonl, .ndjson), one event per line
//
// Unknown keys are rejected so typos surface at load time. Events are
// returned raw: normalization is the caller's job.
package fixture

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/chronicle/internal/event"
)

// Format is a fixture encoding.
type Format string

const (
	FormatYAML  Format = "yaml"
	FormatJSONL Format = "jsonl"
)

// maxLine bounds a single JSON Lines record.
const maxLine = 4 << 20

// File is a named collection of events.
type File struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Events      []event.Raw `yaml:"events"`
}

// FormatOf picks the format from a file extension. YAML is the default
// since it also reads JSON documents.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL
	default:
		return FormatYAML
	}
}

// Load reads the fixture at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	defer f.Close()

	file, err := Decode(f, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if file.Name == "" {
		file.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return file, nil
}

// LoadEvents reads every fixture in paths and concatenates their events.
func LoadEvents(paths ...string) ([]event.Raw, error) {
	out := []event.Raw{}
	for _, p := range paths {
		f, err := Load(p)
		if err != nil {
			return nil, err
		}
		out = append(out, f.Events...)
	}
	return out, nil
}

// Decode reads a fixture from r.
func Decode(r io.Reader, format Format) (*File, error) {
	switch format {
	case FormatJSONL:
		events, err := decodeLines(r)
		if err != nil {
			return nil, err
		}
		return &File{Events: events}, nil
	case FormatYAML, "":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read fixture: %w", err)
		}
		return decodeDocument(data)
	default:
		return nil, fmt.Errorf("unsupported fixture format %q", format)
	}
}

func decodeDocument(data []byte) (*File, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(root.Content) == 0 {
		return &File{Events: []event.Raw{}}, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var file File
	if root.Content[0].Kind == yaml.SequenceNode {
		err := decoder.Decode(&file.Events)
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	} else if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if file.Events == nil {
		file.Events = []event.Raw{}
	}
	return &file, nil
}

func decodeLines(r io.Reader) ([]event.Raw, error) {
	out := []event.Raw{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(text))
		dec.DisallowUnknownFields()
		var raw event.Raw
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, raw)
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("line %d: record exceeds %d bytes", line+1, maxLine)
		}
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return out, nil
}
