package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// senderIDsFile is the on-disk shape of an optional sender-allowlist file.
type senderIDsFile struct {
	SenderIDs []string `yaml:"senderIds"`
}

// LoadSenderIDsFile reads a YAML file listing accepted sender ids, for
// operators who prefer file-based configuration over SENDER_IDS.
func LoadSenderIDsFile(path string) ([]string, error) {
	// #nosec G304 -- path is operator-supplied configuration, not user input.
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=config.LoadSenderIDsFile: %w", err)
	}
	var parsed senderIDsFile
	if err := yaml.Unmarshal(content, &parsed); err != nil {
		return nil, fmt.Errorf("op=config.LoadSenderIDsFile: %w", err)
	}
	return parsed.SenderIDs, nil
}

// ResolveSenderIDs returns the effective multi-sender allowlist, preferring
// SenderIDsFile over SenderIDs when both are set.
func (c Config) ResolveSenderIDs() ([]string, error) {
	if c.SenderIDsFile != "" {
		return LoadSenderIDsFile(c.SenderIDsFile)
	}
	return c.SenderIDs, nil
}
