package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/stuxbench/stux/internal/logger"
)

const (
	// identityFileName stores the persisted controller identity.
	identityFileName = "server.conf"
)

// ServerIdentity identifies one controller instance.
//
// The name is attached as a label to every environment container this
// controller creates, so several controllers can share a Docker host
// without claiming each other's containers.
type ServerIdentity struct {
	// Name is the stable unique identifier of this controller.
	Name string `json:"name"`
}

// GetOrCreateServerIdentity loads the persisted identity from the config
// directory, generating and persisting a new one on first run.
func (c *Config) GetOrCreateServerIdentity() (*ServerIdentity, error) {
	path := filepath.Join(c.Storage.ConfigDir, identityFileName)

	data, err := os.ReadFile(path)
	if err == nil {
		var identity ServerIdentity
		if err := json.Unmarshal(data, &identity); err != nil {
			return nil, fmt.Errorf("failed to parse server identity %s: %w", path, err)
		}
		if identity.Name != "" {
			return &identity, nil
		}
		// Fall through and regenerate when the file is present but empty.
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read server identity: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "stux"
	}
	identity := &ServerIdentity{
		Name: fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8]),
	}

	if err := os.MkdirAll(c.Storage.ConfigDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	out, err := json.MarshalIndent(identity, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal server identity: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return nil, fmt.Errorf("failed to persist server identity: %w", err)
	}

	logger.Info("Generated new server identity: %s", identity.Name)
	return identity, nil
}
