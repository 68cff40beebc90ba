// Package registry holds each chat's set of monitored teams.
package registry

import (
	"sort"
	"strings"
	"sync"
)

// Registry is a concurrency-safe map of chat id -> monitored team names.
// It is written by command handling and read by the scheduler, so all
// access goes through the mutex. Team names match case-insensitively but
// are stored as given for display.
type Registry struct {
	mu    sync.RWMutex
	teams map[int64]map[string]string // chat id -> lowercased name -> canonical name
}

// New creates an empty registry
func New() *Registry {
	return &Registry{teams: make(map[int64]map[string]string)}
}

// Add registers a team for a chat. Returns false if it was already there.
func (r *Registry) Add(chatID int64, team string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.teams[chatID]
	if !ok {
		set = make(map[string]string)
		r.teams[chatID] = set
	}

	key := strings.ToLower(team)
	if _, exists := set[key]; exists {
		return false
	}
	set[key] = team
	return true
}

// Remove drops one team from a chat. Returns false if it wasn't there.
func (r *Registry) Remove(chatID int64, team string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.teams[chatID]
	if !ok {
		return false
	}
	key := strings.ToLower(team)
	if _, exists := set[key]; !exists {
		return false
	}
	delete(set, key)
	return true
}

// RemoveAll drops every team for a chat. The chat entry itself stays,
// an emptied chat just lists no teams.
func (r *Registry) RemoveAll(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.teams[chatID]; ok {
		for key := range set {
			delete(set, key)
		}
	}
}

// List returns the chat's teams, sorted for stable display
func (r *Registry) List(chatID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.teams[chatID]
	if !ok {
		return nil
	}

	teams := make([]string, 0, len(set))
	for _, name := range set {
		teams = append(teams, name)
	}
	sort.Strings(teams)
	return teams
}

// Has reports whether the chat monitors the team
func (r *Registry) Has(chatID int64, team string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.teams[chatID]
	if !ok {
		return false
	}
	_, exists := set[strings.ToLower(team)]
	return exists
}
