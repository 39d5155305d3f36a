package backend

import (
	"fmt"

	"github.com/vecsum/vecsum/pkg/config"
)

// NewRegistryFromConfig creates and registers a backend for every entry.
// On error the backends created so far are closed.
func NewRegistryFromConfig(backends []config.BackendConfig) (*Registry, error) {
	reg := NewRegistry()
	for _, bc := range backends {
		params := bc.Config
		if params == nil {
			params = map[string]string{}
		}
		be, err := NewRcloneBackend(bc.Name, bc.Type, bc.Path, params)
		if err == nil {
			err = reg.Register(be)
		}
		if err != nil {
			_ = reg.Close()
			return nil, fmt.Errorf("backend.NewRegistryFromConfig: %w", err)
		}
	}
	return reg, nil
}
