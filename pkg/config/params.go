package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/condaenv/pkg/conda"
	"github.com/openfroyo/condaenv/pkg/engine"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadParams reads a YAML parameters file.
func LoadParams(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read params file: %w", err)
	}

	p := &Params{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse params file %s: %w", path, err)
	}
	return p, nil
}

// Validate checks the parameters. The only invalid combination is giving both a name
// and a prefix.
func (p *Params) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return engine.NewInputError("invalid parameters", err)
	}

	for _, fe := range verrs {
		if fe.Tag() == "excluded_with" {
			return engine.NewInputError("parameters are mutually exclusive: name|prefix", nil).
				WithCode(engine.ErrCodeNameAndPrefix)
		}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return engine.NewInputError("invalid parameters: "+strings.Join(msgs, ", "), nil)
}

// Override copies every field set in o over p. Spec replaces p's spec wholesale.
func (p *Params) Override(o Params) {
	if o.Spec != nil {
		p.Spec = o.Spec
		p.SpecFile = ""
	}
	if o.SpecFile != "" {
		p.SpecFile = o.SpecFile
		p.Spec = nil
	}
	if o.Name != "" {
		p.Name = o.Name
	}
	if o.Prefix != "" {
		p.Prefix = o.Prefix
	}
	if o.Executable != "" {
		p.Executable = o.Executable
	}
	if o.Host != "" {
		p.Host = o.Host
	}
	p.CheckOnly = p.CheckOnly || o.CheckOnly
	p.KeepSpecFile = p.KeepSpecFile || o.KeepSpecFile
}

// ApplySettings fills unset fields from the operator settings.
func (p *Params) ApplySettings(s *Settings) {
	if p.Executable == "" && s != nil {
		p.Executable = s.Executable
	}
	if p.Executable == "" {
		p.Executable = conda.DefaultExecutable
	}
}

// Resolve loads SpecFile into Spec when no inline spec was given.
func (p *Params) Resolve(loader *SpecLoader) error {
	if p.Spec != nil || p.SpecFile == "" {
		return nil
	}
	spec, err := loader.Load(p.SpecFile)
	if err != nil {
		return err
	}
	p.Spec = spec
	return nil
}
