package db

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/soaringjerry/Wellbeing/internal/filelock"
	"github.com/soaringjerry/Wellbeing/internal/services"
)

// FileDraftStore keeps one JSON file per session under dir. Session ids are
// hashed into file names so they never reach the filesystem verbatim.
type FileDraftStore struct {
	dir string
}

func NewFileDraftStore(dir string) (*FileDraftStore, error) {
	if dir == "" {
		return nil, errors.New("draft directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create draft dir: %w", err)
	}
	return &FileDraftStore{dir: dir}, nil
}

func (s *FileDraftStore) path(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}

func (s *FileDraftStore) GetDraft(sessionID string) (*services.Draft, error) {
	data, err := filelock.ReadFile(s.path(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var d services.Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	if d.Assessment.Answers == nil {
		d.Assessment.Answers = services.AnswerMap{}
	}
	return &d, nil
}

func (s *FileDraftStore) SaveDraft(sessionID string, d *services.Draft) error {
	if d == nil {
		return services.NewInvalidError("draft required")
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	return filelock.WriteFile(s.path(sessionID), data)
}

func (s *FileDraftStore) DeleteDraft(sessionID string) error {
	return filelock.Remove(s.path(sessionID))
}

var _ services.DraftStore = (*FileDraftStore)(nil)
