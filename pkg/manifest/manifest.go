package manifest

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/evalcontext/ecp/pkg/llmjudge"
)

const (
	VersionV1 = "v1"
)

// Manifest declares one agent under test and the scenarios it must pass.
type Manifest struct {
	ManifestVersion string     `json:"manifest_version,omitempty"`
	Name            string     `json:"name"`
	Target          string     `json:"target"`
	Scenarios       []Scenario `json:"scenarios"`

	// Judge configures the llm_judge backend. Nil uses the default environment variables.
	Judge *llmjudge.LLMJudgeConfig `json:"judge,omitempty"`
}

type Scenario struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

type Step struct {
	Input string `json:"input"`

	// Reserved; accepted and carried but not interpreted.
	Constraints map[string]any `json:"constraints,omitempty"`

	Graders []GraderConfig `json:"graders,omitempty"`
}

// GetVersion returns the manifest version, defaulting to v1.
func (m *Manifest) GetVersion() string {
	if m.ManifestVersion == "" {
		return VersionV1
	}

	return m.ManifestVersion
}

// KnownVersion reports whether the manifest declares a version this harness was written
// for. Unknown versions still load and are read with v1 semantics.
func (m *Manifest) KnownVersion() bool {
	return m.GetVersion() == VersionV1
}

// Validate reports every structural problem in the manifest at once.
func (m *Manifest) Validate() error {
	var err error

	if strings.TrimSpace(m.Target) == "" {
		err = errors.Join(err, errors.New("target must not be empty"))
	}

	for i, sc := range m.Scenarios {
		if strings.TrimSpace(sc.Name) == "" {
			err = errors.Join(err, fmt.Errorf("scenario at index %d has no name", i))
		}
		for j, step := range sc.Steps {
			for k, g := range step.Graders {
				if strings.TrimSpace(g.Type) == "" {
					err = errors.Join(err, fmt.Errorf("scenario '%s' step %d grader %d has no type", sc.Name, j+1, k+1))
				}
			}
		}
	}

	return err
}

// Read parses a manifest from YAML (or JSON) and validates it.
func Read(data []byte) (*Manifest, error) {
	m := &Manifest{}

	err := yaml.Unmarshal(data, m)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if m.ManifestVersion == "" {
		m.ManifestVersion = VersionV1
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	return m, nil
}

func FromFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file '%s' for manifest: %w", path, err)
	}

	m, err := Read(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest '%s': %w", path, err)
	}

	return m, nil
}
