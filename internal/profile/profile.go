// Package profile stores the local client identity.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/icarus-itcs/lazyedge/internal/edge"
)

// ErrNoProfile is returned when no profile has been created yet.
var ErrNoProfile = errors.New("no local profile")

// Profile is the identity this client presents to devices.
type Profile struct {
	ClientID  string    `yaml:"client_id"`
	Username  string    `yaml:"username"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Identity converts the profile to the handshake identity.
func (p Profile) Identity() edge.Identity {
	return edge.Identity{ClientID: p.ClientID, Username: p.Username}
}

// New creates a profile with a fresh client ID.
func New(username string) (Profile, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return Profile{}, err
	}
	return Profile{
		ClientID:  uuid.NewString(),
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ValidateUsername checks a username is usable for pairing.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username is required")
	}
	if len(username) > 32 {
		return errors.New("username must be at most 32 characters")
	}
	for _, r := range username {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.') {
			return fmt.Errorf("username contains invalid character %q", r)
		}
	}
	return nil
}

// Store persists the profile as YAML and announces its creation.
type Store struct {
	path    string
	created *Event

	mu      sync.RWMutex
	current *Profile
}

// NewStore creates a store for the file at path. The file is read lazily.
func NewStore(path string) *Store {
	return &Store{path: path, created: NewEvent()}
}

// Path returns the profile file path.
func (s *Store) Path() string { return s.path }

// Load returns the stored profile or ErrNoProfile.
func (s *Store) Load() (Profile, error) {
	s.mu.RLock()
	if s.current != nil {
		p := *s.current
		s.mu.RUnlock()
		return p, nil
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Profile{}, ErrNoProfile
	}
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}
	if p.ClientID == "" || p.Username == "" {
		return Profile{}, fmt.Errorf("profile %s is incomplete", s.path)
	}

	s.mu.Lock()
	s.current = &p
	s.mu.Unlock()
	return p, nil
}

// Exists reports whether a usable profile is stored.
func (s *Store) Exists() bool {
	_, err := s.Load()
	return err == nil
}

// Create writes a new profile for username and fires the creation event.
func (s *Store) Create(username string) (Profile, error) {
	p, err := New(username)
	if err != nil {
		return Profile{}, err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return Profile{}, fmt.Errorf("marshal profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return Profile{}, fmt.Errorf("create profile dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return Profile{}, fmt.Errorf("write profile: %w", err)
	}

	s.mu.Lock()
	s.current = &p
	s.mu.Unlock()
	s.created.Fire(p)
	return p, nil
}

// Created returns the one-shot event fired by the first Create.
func (s *Store) Created() *Event { return s.created }

// Identity returns the current profile identity, or a zero Identity if
// none exists yet. Suitable as an edge.IdentityFunc.
func (s *Store) Identity() edge.Identity {
	p, err := s.Load()
	if err != nil {
		return edge.Identity{}
	}
	return p.Identity()
}

// Event is a one-shot future carrying the created profile.
type Event struct {
	once    sync.Once
	done    chan struct{}
	profile Profile
}

// NewEvent creates an unfired event.
func NewEvent() *Event {
	return &Event{done: make(chan struct{})}
}

// Fire resolves the event. Only the first call has any effect.
func (e *Event) Fire(p Profile) {
	e.once.Do(func() {
		e.profile = p
		close(e.done)
	})
}

// Done is closed once the event fired.
func (e *Event) Done() <-chan struct{} { return e.done }

// Profile returns the fired profile. It blocks until Fire was called.
func (e *Event) Profile() Profile {
	<-e.done
	return e.profile
}
