package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Divyansh2602/pdf-agent/internal/domain"
)

type metaData struct {
	Sessions map[string]domain.Session `json:"sessions"`
}

// Store keeps session state in memory, mirrored to a JSON file so uploads
// survive a restart. Conversion job status is deliberately not persisted.
type Store struct {
	mu   sync.RWMutex
	path string
	data metaData
}

func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store := &Store{path: filepath.Join(baseDir, "sessions.json")}
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = metaData{Sessions: map[string]domain.Session{}}

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("open sessions file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			return s.saveLocked()
		}
		return fmt.Errorf("decode sessions file: %w", err)
	}

	s.ensureMaps()
	return nil
}

// GetOrCreateSession returns the session for id, creating one when id is
// empty or unknown.
func (s *Store) GetOrCreateSession(id string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureMaps()

	if id != "" {
		if session, ok := s.data.Sessions[id]; ok {
			return session, nil
		}
	}

	if id == "" {
		id = uuid.NewString()
	}

	session := domain.Session{
		ID:               id,
		CreatedAt:        time.Now().Unix(),
		Files:            []domain.SessionFile{},
		DismissedUpdates: []string{},
	}
	s.data.Sessions[id] = session

	if err := s.saveLocked(); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (s *Store) GetSession(id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.data.Sessions[id]
	if !ok {
		return domain.Session{}, fmt.Errorf("session %s not found", id)
	}
	return session, nil
}

func (s *Store) AddFile(sessionID string, file domain.SessionFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.data.Sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}

	session.Files = append(session.Files, file)
	s.data.Sessions[sessionID] = session

	return s.saveLocked()
}

func (s *Store) FindFile(sessionID, filename string) (domain.SessionFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.data.Sessions[sessionID]
	if !ok {
		return domain.SessionFile{}, fmt.Errorf("session %s not found", sessionID)
	}

	for _, file := range session.Files {
		if file.Filename == filename {
			return file, nil
		}
	}
	return domain.SessionFile{}, fmt.Errorf("file %s not found in session", filename)
}

// UpdateFile replaces the session entry matching file.Filename.
func (s *Store) UpdateFile(sessionID string, file domain.SessionFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.data.Sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}

	for i, existing := range session.Files {
		if existing.Filename == file.Filename {
			session.Files[i] = file
			s.data.Sessions[sessionID] = session
			return s.saveLocked()
		}
	}
	return fmt.Errorf("file %s not found in session", file.Filename)
}

func (s *Store) SetAnalysis(sessionID, filename, analysis, recommendations string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.data.Sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}

	if session.Analyses == nil {
		session.Analyses = map[string]string{}
	}
	session.Analyses[filename] = analysis
	if recommendations != "" {
		session.Recommendations = recommendations
	}
	s.data.Sessions[sessionID] = session

	return s.saveLocked()
}

func (s *Store) DismissUpdate(sessionID, updateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.data.Sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}

	for _, existing := range session.DismissedUpdates {
		if existing == updateID {
			return nil
		}
	}

	session.DismissedUpdates = append(session.DismissedUpdates, updateID)
	s.data.Sessions[sessionID] = session

	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "sessions-*.json")
	if err != nil {
		return fmt.Errorf("create temp sessions file: %w", err)
	}

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode sessions: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp sessions file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace sessions file: %w", err)
	}

	return nil
}

func (s *Store) ensureMaps() {
	if s.data.Sessions == nil {
		s.data.Sessions = map[string]domain.Session{}
	}
}
