// Package store persists bookmarks, saved searches and the repository
// health snapshot in a key-value backend.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/jonboulle/clockwork"
	"github.com/wesm/open-issue-finder/internal/db"
	"github.com/wesm/open-issue-finder/internal/models"
)

const keyPrefix = "open-issue-finder:"

// Persistence keys
const (
	KeySavedIssues   = keyPrefix + "saved-issues"
	KeySavedSearches = keyPrefix + "saved-searches"
	KeyHealthCache   = keyPrefix + "repo-health-cache"
)

// ErrNilIssue is returned when a nil issue is saved
var ErrNilIssue = errors.New("issue is nil")

// Option configures a Store
type Option func(*Store)

// WithClock sets the clock used for SavedAt and CreatedAt
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithNodeID sets the snowflake node used for saved search IDs
func WithNodeID(id int64) Option {
	return func(s *Store) { s.nodeID = id }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store holds the persisted collections in memory and writes a full snapshot
// of a collection on every change
type Store struct {
	kv     db.KV
	clock  clockwork.Clock
	logger *slog.Logger
	nodeID int64
	ids    *snowflake.Node

	mu       sync.Mutex
	issues   []models.SavedIssue
	searches []models.SavedSearch
	health   map[string]models.RepoHealthEntry
	index    *savedIndex
}

// New reads the persisted collections from kv. Missing or corrupt entries
// load as empty collections.
func New(kv db.KV, opts ...Option) (*Store, error) {
	s := &Store{
		kv:     kv,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
		nodeID: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "store")

	node, err := snowflake.NewNode(s.nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create id generator: %w", err)
	}
	s.ids = node

	s.issues = []models.SavedIssue{}
	s.searches = []models.SavedSearch{}
	s.health = map[string]models.RepoHealthEntry{}
	s.load(KeySavedIssues, &s.issues)
	s.load(KeySavedSearches, &s.searches)
	s.load(KeyHealthCache, &s.health)

	index, err := newSavedIndex(s.issues)
	if err != nil {
		return nil, fmt.Errorf("failed to build saved issue index: %w", err)
	}
	s.index = index

	return s, nil
}

// load decodes key into dst, leaving dst untouched when the entry is missing or unreadable
func (s *Store) load(key string, dst any) {
	data, err := s.kv.Get(key)
	if err != nil {
		s.logger.Warn("failed to read stored entry, using empty default", "key", key, "error", err)
		return
	}
	if len(data) == 0 {
		return
	}

	switch v := dst.(type) {
	case *[]models.SavedIssue:
		var decoded []models.SavedIssue
		if err := json.Unmarshal(data, &decoded); err != nil || decoded == nil {
			s.logCorrupt(key, err)
			return
		}
		*v = decoded
	case *[]models.SavedSearch:
		var decoded []models.SavedSearch
		if err := json.Unmarshal(data, &decoded); err != nil || decoded == nil {
			s.logCorrupt(key, err)
			return
		}
		*v = decoded
	case *map[string]models.RepoHealthEntry:
		var decoded map[string]models.RepoHealthEntry
		if err := json.Unmarshal(data, &decoded); err != nil || decoded == nil {
			s.logCorrupt(key, err)
			return
		}
		*v = decoded
	}
}

func (s *Store) logCorrupt(key string, err error) {
	s.logger.Warn("corrupt stored entry, using empty default", "key", key, "error", err)
}

func (s *Store) write(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.kv.Put(key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// SavedIssues returns the bookmarked issues, most recently saved first
func (s *Store) SavedIssues() []models.SavedIssue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SavedIssue, len(s.issues))
	copy(out, s.issues)
	return out
}

// IsSaved reports whether an issue is bookmarked
func (s *Store) IsSaved(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(id) >= 0
}

func (s *Store) indexOf(id int64) int {
	for i, saved := range s.issues {
		if saved.ID == id {
			return i
		}
	}
	return -1
}

// SaveIssue bookmarks a snapshot of issue. Saving an already saved issue is a
// no-op. Memory is only updated once the new list has been written.
func (s *Store) SaveIssue(issue *models.Issue) error {
	if issue == nil {
		return ErrNilIssue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(issue.ID) >= 0 {
		return nil
	}

	saved := models.SavedIssue{Issue: *issue, SavedAt: s.clock.Now()}
	next := append([]models.SavedIssue{saved}, s.issues...)
	if err := s.write(KeySavedIssues, next); err != nil {
		return err
	}
	s.issues = next
	s.index.add(saved)
	return nil
}

// RemoveIssue deletes a bookmark. Removing an unknown issue is a no-op.
func (s *Store) RemoveIssue(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	next := append(s.issues[:i:i], s.issues[i+1:]...)
	if err := s.write(KeySavedIssues, next); err != nil {
		return err
	}
	s.issues = next
	s.index.remove(id)
	return nil
}

// ToggleIssue saves an unsaved issue or removes a saved one and reports
// whether the issue is saved afterwards
func (s *Store) ToggleIssue(issue *models.Issue) (bool, error) {
	if issue == nil {
		return false, ErrNilIssue
	}
	if s.IsSaved(issue.ID) {
		return false, s.RemoveIssue(issue.ID)
	}
	return true, s.SaveIssue(issue)
}

// SavedSearches returns the saved searches, most recent first
func (s *Store) SavedSearches() []models.SavedSearch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SavedSearch, len(s.searches))
	copy(out, s.searches)
	return out
}

// GetSearch returns the saved search with the given id
func (s *Store) GetSearch(id string) (models.SavedSearch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, search := range s.searches {
		if search.ID == id {
			return search, true
		}
	}
	return models.SavedSearch{}, false
}

// CreateSearch saves a named snapshot of filters
func (s *Store) CreateSearch(name string, filters models.SearchFilters) (models.SavedSearch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	search := models.SavedSearch{
		ID:        s.ids.Generate().String(),
		Name:      name,
		Filters:   filters,
		CreatedAt: s.clock.Now(),
	}
	next := append([]models.SavedSearch{search}, s.searches...)
	if err := s.write(KeySavedSearches, next); err != nil {
		return models.SavedSearch{}, err
	}
	s.searches = next
	return search, nil
}

// DeleteSearch removes a saved search. Deleting an unknown id is a no-op.
func (s *Store) DeleteSearch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, search := range s.searches {
		if search.ID == id {
			next := append(s.searches[:i:i], s.searches[i+1:]...)
			if err := s.write(KeySavedSearches, next); err != nil {
				return err
			}
			s.searches = next
			return nil
		}
	}
	return nil
}

// LoadHealth returns the persisted health snapshot
func (s *Store) LoadHealth() map[string]models.RepoHealthEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.RepoHealthEntry, len(s.health))
	for k, v := range s.health {
		out[k] = v
	}
	return out
}

// SaveHealth replaces the persisted health snapshot
func (s *Store) SaveHealth(entries map[string]models.RepoHealthEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(KeyHealthCache, entries); err != nil {
		return err
	}
	s.health = entries
	return nil
}

// SearchSaved finds saved issues matching text, best match first. Empty
// text returns all saved issues.
func (s *Store) SearchSaved(text string, limit int) ([]models.SavedIssue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = len(s.issues)
	}
	if text == "" {
		n := min(limit, len(s.issues))
		out := make([]models.SavedIssue, n)
		copy(out, s.issues[:n])
		return out, nil
	}

	ids, err := s.index.search(text, limit)
	if err != nil {
		return nil, err
	}

	out := make([]models.SavedIssue, 0, len(ids))
	for _, id := range ids {
		if i := s.indexOf(id); i >= 0 {
			out = append(out, s.issues[i])
		}
	}
	return out, nil
}

// Close releases the search index. The KV backend is owned by the caller.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.close()
}
