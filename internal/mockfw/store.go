package mockfw

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/multierr"
)

// Store is the mock device's state: user-to-address logins and registered
// address tags, held as one JSON document mutated with sjson and read with
// gjson.
//
// Tag mutations reproduce the real device's quirk of reporting no-op
// changes as errors ("already exists, ignore" / "does not exist, ignore
// unreg") while still applying the rest of the request.
type Store struct {
	mu  sync.Mutex
	doc []byte
}

func NewStore() *Store {
	return &Store{doc: []byte(`{}`)}
}

// Login maps user to ip, replacing any previous mapping for ip.
func (s *Store) Login(user, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.set("logins."+escapeKey(ip), user)
}

// Logout removes the mapping for ip.
func (s *Store) Logout(user, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := sjson.DeleteBytes(s.doc, "logins."+escapeKey(ip))
	if err != nil {
		return err
	}
	s.doc = doc
	return nil
}

// Register adds tags to ip. Tags already present are reported as benign
// errors; the remaining tags are still applied.
func (s *Store) Register(ip string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.tags(ip)

	var failures error
	for _, tag := range tags {
		if containsTag(current, tag) {
			failures = multierr.Append(failures,
				fmt.Errorf("tag %q for %s already exists, ignore", tag, ip))
			continue
		}
		current = append(current, tag)
	}

	if err := s.set("registered."+escapeKey(ip), current); err != nil {
		return err
	}

	return failures
}

// Unregister removes tags from ip. Absent tags are reported as benign
// errors; the rest are still removed. An address left without tags
// disappears from the store.
func (s *Store) Unregister(ip string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.tags(ip)

	var failures error
	for _, tag := range tags {
		if !containsTag(current, tag) {
			failures = multierr.Append(failures,
				fmt.Errorf("tag %q for %s does not exist, ignore unreg", tag, ip))
			continue
		}

		kept := current[:0]
		for _, t := range current {
			if t != tag {
				kept = append(kept, t)
			}
		}
		current = kept
	}

	path := "registered." + escapeKey(ip)
	if len(current) == 0 {
		doc, err := sjson.DeleteBytes(s.doc, path)
		if err != nil {
			return err
		}
		s.doc = doc
		return failures
	}

	if err := s.set(path, current); err != nil {
		return err
	}

	return failures
}

// Registered returns every address with its registered tags.
func (s *Store) Registered() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]string)
	gjson.GetBytes(s.doc, "registered").ForEach(func(key, value gjson.Result) bool {
		var tags []string
		for _, t := range value.Array() {
			tags = append(tags, t.String())
		}
		out[key.String()] = tags
		return true
	})

	return out
}

// User returns the user currently mapped to ip, empty when none.
func (s *Store) User(ip string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return gjson.GetBytes(s.doc, "logins."+escapeKey(ip)).String()
}

func (s *Store) set(path string, value interface{}) error {
	doc, err := sjson.SetBytes(s.doc, path, value)
	if err != nil {
		return err
	}
	s.doc = doc
	return nil
}

// tags must be called with the lock held.
func (s *Store) tags(ip string) []string {
	var tags []string
	for _, t := range gjson.GetBytes(s.doc, "registered."+escapeKey(ip)).Array() {
		tags = append(tags, t.String())
	}
	return tags
}

// escapeKey protects the dots in addresses from being read as gjson path
// separators.
func escapeKey(key string) string {
	key = strings.ReplaceAll(key, "\\", "\\\\")
	return strings.ReplaceAll(key, ".", "\\.")
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
