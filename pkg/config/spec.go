package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

// StdinSource reads a YAML spec from standard input.
const StdinSource = "-"

// SpecLoader reads environment spec documents in YAML, JSON or CUE. The content is left for
// the package manager to judge.
type SpecLoader struct {
	ctx   *cue.Context
	stdin io.Reader
}

// NewSpecLoader creates a spec loader reading "-" from stdin.
func NewSpecLoader(stdin io.Reader) *SpecLoader {
	return &SpecLoader{
		ctx:   cuecontext.New(),
		stdin: stdin,
	}
}

// Load reads the spec at source. The format follows the extension: .cue, .json, or YAML
// for anything else.
func (l *SpecLoader) Load(source string) (map[string]interface{}, error) {
	var (
		data []byte
		err  error
	)
	if source == StdinSource {
		if l.stdin == nil {
			return nil, fmt.Errorf("no stdin available for spec")
		}
		data, err = io.ReadAll(l.stdin)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read spec %s: %w", source, err)
	}

	var spec map[string]interface{}
	switch strings.ToLower(filepath.Ext(source)) {
	case ".cue":
		spec, err = l.decodeCUE(source, data)
	case ".json":
		spec, err = decodeJSON(source, data)
	default:
		spec, err = decodeYAML(source, data)
	}
	if err != nil {
		return nil, err
	}
	if spec == nil {
		return map[string]interface{}{}, nil
	}
	return spec, nil
}

func (l *SpecLoader) decodeCUE(source string, data []byte) (map[string]interface{}, error) {
	val := l.ctx.CompileBytes(data, cue.Filename(source))
	if err := val.Err(); err != nil {
		return nil, &SpecError{Source: source, Errors: convertCUEErrors(err)}
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, &SpecError{Source: source, Errors: convertCUEErrors(err)}
	}

	var spec map[string]interface{}
	if err := val.Decode(&spec); err != nil {
		return nil, &SpecError{Source: source, Errors: convertCUEErrors(err)}
	}
	return spec, nil
}

func decodeJSON(source string, data []byte) (map[string]interface{}, error) {
	var spec map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&spec); err != nil {
		return nil, &SpecError{Source: source, Errors: []ValidationError{{File: source, Message: err.Error()}}}
	}
	return normalizeNumbers(spec).(map[string]interface{}), nil
}

func decodeYAML(source string, data []byte) (map[string]interface{}, error) {
	var spec map[string]interface{}
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, &SpecError{Source: source, Errors: []ValidationError{{File: source, Message: err.Error()}}}
	}
	return spec, nil
}

// normalizeNumbers turns json.Number into int64 or float64 so YAML serialization
// writes plain numbers.
func normalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []interface{}:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	default:
		return v
	}
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range errors.Errors(err) {
		ve := ValidationError{Message: errors.Details(e, nil)}
		if pos := errors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		validationErrors = append(validationErrors, ve)
	}

	if len(validationErrors) == 0 {
		validationErrors = append(validationErrors, ValidationError{Message: err.Error()})
	}
	return validationErrors
}
