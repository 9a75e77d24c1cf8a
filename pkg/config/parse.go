package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseBatchYAML parses a BatchFile from YAML bytes and validates it.
// This is used for APIs where the batch is provided as payload (not via
// filesystem).
func ParseBatchYAML(data []byte) (*BatchFile, error) {
	var batch BatchFile
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to parse batch yaml: %w", err)
	}

	if err := validateBatch(&batch); err != nil {
		return nil, fmt.Errorf("invalid batch: %w", err)
	}

	return &batch, nil
}

// ParseBatchYAMLString parses a BatchFile from a YAML string and validates it.
func ParseBatchYAMLString(yamlText string) (*BatchFile, error) {
	return ParseBatchYAML([]byte(yamlText))
}
