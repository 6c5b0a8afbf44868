package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"agentdeck/internal/transcript"
)

// Store is the persistence collaborator for serialized turns. The engine
// owns no on-disk format; whatever sits behind this interface does.
type Store interface {
	Save(sessionID string, turns []transcript.ProjectedTurn) error
	Load(sessionID string) ([]transcript.ProjectedTurn, error)
}

// FileStore keeps one JSON file per session under dir.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", sessionID))
}

func (s *FileStore) Save(sessionID string, turns []transcript.ProjectedTurn) error {
	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(sessionID), data, 0644)
}

func (s *FileStore) Load(sessionID string) ([]transcript.ProjectedTurn, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		return nil, err
	}
	var turns []transcript.ProjectedTurn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", sessionID, err)
	}
	return turns, nil
}

// Delete removes the persisted transcript, if any.
func (s *FileStore) Delete(sessionID string) error {
	path := s.path(sessionID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(path)
}
