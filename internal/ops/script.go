package ops

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"boardedit/internal/apperr"
	"boardedit/internal/document"

	"gopkg.in/yaml.v3"
)

// Script is a replayable list of operations:
//
//	description: widen power traces
//	steps:
//	  - op: move_component
//	    args: {reference: R1, x: 10, y: 20}
//	  - op: create_net
//	    args: {name: VBUS}
type Script struct {
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// Step is one {kind, params} event.
type Step struct {
	Op   string         `yaml:"op"`
	Args map[string]any `yaml:"args,omitempty"`
}

// ParseScript decodes a yaml script. Unknown keys are rejected.
func ParseScript(data []byte) (*Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Script
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return &Script{}, nil
		}
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	for i, st := range s.Steps {
		if st.Op == "" {
			return nil, fmt.Errorf("step %d: %w", i+1, ErrOpNameEmpty)
		}
	}
	return &s, nil
}

// LoadScript reads and decodes a yaml script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.IO("load script", path, err)
	}
	s, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Marshal encodes the script as yaml.
func (s *Script) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode script: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Record appends an applied operation to the script.
func (s *Script) Record(op document.Operation) {
	s.Steps = append(s.Steps, Step{Op: op.Kind(), Args: op.Params()})
}

// BindScript decodes every step. Decoding stops at the first bad step; no
// document is touched.
func (r *Registry) BindScript(s *Script) ([]document.Binder, error) {
	binders := make([]document.Binder, 0, len(s.Steps))
	for i, st := range s.Steps {
		b, err := r.Bind(st.Op, st.Args)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
		}
		binders = append(binders, b)
	}
	return binders, nil
}
