package discover

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// RegistryFileName is the alias -> target id mapping file, written under
// the process-wide temp directory, exactly as spec.md §6 names it.
const RegistryFileName = "cdp-skill-tabs.json"

// Registry is the per-tab alias registry persisted at
// "<tmp>/cdp-skill-tabs.json". Cleanup of the file is the host
// environment's responsibility, not the engine's (spec.md §9, Open Question).
type Registry struct {
	path string
	mu   sync.Mutex
}

// OpenRegistry opens (without yet loading) the registry file under dir, or
// under os.TempDir() if dir is empty.
func OpenRegistry(dir string) *Registry {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Registry{path: filepath.Join(dir, RegistryFileName)}
}

func (r *Registry) load() (map[string]string, error) {
	aliases := make(map[string]string)
	b, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return aliases, nil
		}
		return nil, err
	}
	if len(b) == 0 {
		return aliases, nil
	}
	if err := json.Unmarshal(b, &aliases); err != nil {
		return nil, fmt.Errorf("discover: corrupt tab registry %s: %w", r.path, err)
	}
	return aliases, nil
}

func (r *Registry) save(aliases map[string]string) error {
	b, err := json.MarshalIndent(aliases, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.path, b, 0o644)
}

// Resolve returns the target id for an alias, or the alias itself if it is
// not a known alias (callers may pass a raw target id directly).
func (r *Registry) Resolve(alias string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	aliases, err := r.load()
	if err != nil {
		return "", err
	}
	if id, ok := aliases[alias]; ok {
		return id, nil
	}
	return alias, nil
}

// Set records alias -> targetID, generating an alias from a fresh uuid when
// alias is empty.
func (r *Registry) Set(alias, targetID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	aliases, err := r.load()
	if err != nil {
		return "", err
	}
	if alias == "" {
		alias = uuid.NewString()
	}
	aliases[alias] = targetID
	if err := r.save(aliases); err != nil {
		return "", err
	}
	return alias, nil
}

// Remove deletes an alias entry (e.g. on closeTab).
func (r *Registry) Remove(alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	aliases, err := r.load()
	if err != nil {
		return err
	}
	delete(aliases, alias)
	return r.save(aliases)
}

// List returns a copy of every known alias -> target id mapping.
func (r *Registry) List() (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}
