package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Loader reads policies from files, directories and built-in references.
type Loader struct {
	logger zerolog.Logger
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
	}
}

// Load resolves each reference. A reference is a .rego file, a directory searched
// recursively for .rego files, or "builtin:<name>".
func (l *Loader) Load(refs []string) ([]Policy, error) {
	var policies []Policy

	for _, ref := range refs {
		if name, ok := strings.CutPrefix(ref, BuiltinPrefix); ok {
			p, err := Builtin(name)
			if err != nil {
				return nil, err
			}
			policies = append(policies, p)
			continue
		}

		loaded, err := l.loadPath(ref)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", ref, err)
		}
		policies = append(policies, loaded...)
	}

	l.logger.Debug().Int("total", len(policies)).Int("sources", len(refs)).Msg("policies loaded")
	return policies, nil
}

func (l *Loader) loadPath(path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		p, err := l.loadFile(path)
		if err != nil {
			return nil, err
		}
		return []Policy{*p}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".rego") && !strings.HasSuffix(p, "_test.rego") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	sort.Strings(files)

	policies := make([]Policy, 0, len(files))
	for _, f := range files {
		p, err := l.loadFile(f)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	return policies, nil
}

func (l *Loader) loadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	content := string(data)
	return &Policy{
		Name:        strings.TrimSuffix(filepath.Base(path), ".rego"),
		Description: extractDescription(content),
		Rego:        content,
		Severity:    extractSeverity(content),
		Source:      path,
	}, nil
}

// extractDescription returns the leading comment block of a Rego file.
func extractDescription(content string) string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			break
		}
		text := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
		if strings.HasPrefix(text, "severity:") {
			continue
		}
		lines = append(lines, text)
	}
	return strings.TrimSpace(strings.Join(lines, " "))
}

// extractSeverity reads a "# severity: warning" header comment. The default is error.
func extractSeverity(content string) Severity {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			break
		}
		text := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
		if value, ok := strings.CutPrefix(text, "severity:"); ok {
			if Severity(strings.TrimSpace(value)) == SeverityWarning {
				return SeverityWarning
			}
		}
	}
	return SeverityError
}
