package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const identityFile = "identity"

// LoadOrCreateUserID returns the stable anonymous installation id,
// creating and persisting a fresh v4 UUID on first run. The id is
// random, never derived from hardware or account details.
func LoadOrCreateUserID(stateDir string) (string, error) {
	path := filepath.Join(stateDir, identityFile)

	raw, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(raw))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			return id, nil
		}
		// Corrupt identity file; mint a replacement below.
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read identity file: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return "", fmt.Errorf("ensure state dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persist identity file: %w", err)
	}
	return id, nil
}
