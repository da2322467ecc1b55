// Package ingestion holds the file-level configuration shared by the
// extraction and catalog-write stages.
package ingestion

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sangitam/krithi-backend/internal/ingestion/approval"
	"github.com/sangitam/krithi-backend/internal/ingestion/parser"
	"github.com/sangitam/krithi-backend/internal/ingestion/voting"
)

// PolicyFile is the operator-tunable ingestion policy. Every section is
// optional; omitted sections keep their defaults.
type PolicyFile struct {
	Parser   parser.Policy   `yaml:"parser"`
	Voting   voting.Weights  `yaml:"voting"`
	Approval approval.Config `yaml:"approval"`
}

func DefaultPolicyFile() PolicyFile {
	return PolicyFile{
		Parser:   parser.DefaultPolicy(),
		Voting:   voting.DefaultWeights(),
		Approval: approval.DefaultConfig(),
	}
}

// LoadPolicyFile reads the policy from path. An empty path returns defaults;
// a missing or malformed file is an error, not a silent fallback.
func LoadPolicyFile(path string) (PolicyFile, error) {
	policy := DefaultPolicyFile()
	if path == "" {
		return policy, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read ingestion policy: %w", err)
	}
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return policy, fmt.Errorf("parse ingestion policy: %w", err)
	}
	if err := policy.Voting.Validate(); err != nil {
		return policy, fmt.Errorf("ingestion policy voting weights: %w", err)
	}
	return policy, nil
}
