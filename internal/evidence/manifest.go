package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestFile is written next to the parser outputs of each evidence.
const ManifestFile = "manifest.yaml"

// Manifest records what one parse run found and produced.
type Manifest struct {
	EvidenceID   string            `yaml:"evidence_id"`
	CaseID       string            `yaml:"case_id"`
	OriginalName string            `yaml:"original_name"`
	SHA256       string            `yaml:"sha256"`
	ParserImage  string            `yaml:"parser_image"`
	StartedAt    time.Time         `yaml:"started_at"`
	FinishedAt   time.Time         `yaml:"finished_at"`
	Status       string            `yaml:"status"`
	Inputs       map[string]string `yaml:"inputs,omitempty"`
	Outputs      map[string]string `yaml:"outputs,omitempty"`
	Rows         map[string]int64  `yaml:"rows,omitempty"`
}

// WriteManifest stores m as dir/manifest.yaml.
func WriteManifest(dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("evidence: encode manifest: %w", err)
	}
	tmp := filepath.Join(dir, ManifestFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("evidence: write manifest: %w", err)
	}
	return os.Rename(tmp, filepath.Join(dir, ManifestFile))
}

// ReadManifest loads dir/manifest.yaml.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("evidence: decode manifest: %w", err)
	}
	return &m, nil
}
