// Package state persists the terminal client's active file between
// invocations, so that "pdfplay upload" followed by "pdfplay fill" works
// the way one browser session does.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPath overrides the state file location.
	EnvPath = "PDF_PLAYGROUND_STATE"

	dirName  = ".pdf-playground"
	fileName = "state.yaml"
)

// State is what survives between terminal client runs.
type State struct {
	ActiveFile string    `yaml:"active_file,omitempty"`
	LocalName  string    `yaml:"local_name,omitempty"`
	UploadedAt time.Time `yaml:"uploaded_at,omitempty"`
	BackendURL string    `yaml:"backend_url,omitempty"`
	// LastFinal is the most recent flattened document.
	LastFinal string `yaml:"last_final,omitempty"`
}

// HasActiveFile reports whether a file is active.
func (s State) HasActiveFile() bool {
	return s.ActiveFile != ""
}

// DefaultPath returns $PDF_PLAYGROUND_STATE or ~/.pdf-playground/state.yaml.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvPath); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, dirName, fileName), nil
}

// Store reads and writes one state file. Access is serialised across
// processes with a lock file next to it.
type Store struct {
	path   string
	logger *logrus.Logger
}

// NewStore creates a store for path.
func NewStore(path string, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{path: path, logger: logger}
}

// Path is the state file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) lock() *flock.Flock {
	return flock.New(s.path + ".lock")
}

// Load returns the stored state. A missing file is an empty state.
func (s *Store) Load() (State, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return State{}, fmt.Errorf("failed to create state directory: %w", err)
	}

	fileLock := s.lock()
	if err := fileLock.RLock(); err != nil {
		return State{}, fmt.Errorf("failed to acquire read lock: %w", err)
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			s.logger.WithError(err).Warn("Failed to release read lock")
		}
	}()

	return s.readUnlocked()
}

func (s *Store) readUnlocked() (State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to read state file: %w", err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("failed to parse state file %s: %w", s.path, err)
	}
	return st, nil
}

// Update applies fn to the stored state and writes the result back while
// holding the write lock.
func (s *Store) Update(fn func(*State) error) (State, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return State{}, fmt.Errorf("failed to create state directory: %w", err)
	}

	fileLock := s.lock()
	if err := fileLock.Lock(); err != nil {
		return State{}, fmt.Errorf("failed to acquire write lock: %w", err)
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			s.logger.WithError(err).Warn("Failed to release write lock")
		}
	}()

	st, err := s.readUnlocked()
	if err != nil {
		return State{}, err
	}
	if err := fn(&st); err != nil {
		return State{}, err
	}
	if err := s.writeUnlocked(st); err != nil {
		return State{}, err
	}
	return st, nil
}

// SetActive records a new active file, replacing any previous one.
func (s *Store) SetActive(id, localName, backendURL string) (State, error) {
	return s.Update(func(st *State) error {
		*st = State{
			ActiveFile: id,
			LocalName:  localName,
			UploadedAt: time.Now().UTC(),
			BackendURL: backendURL,
		}
		return nil
	})
}

// Clear forgets the active file.
func (s *Store) Clear() error {
	_, err := s.Update(func(st *State) error {
		*st = State{}
		return nil
	})
	return err
}

func (s *Store) writeUnlocked(st State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*")
	if err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"path": s.path, "file": st.ActiveFile}).Debug("State saved")
	return nil
}
