// Package repohelper is a narrow stand-in for the Git repository/
// worktree lifecycle collaborator (spec §6.1): request/response
// structs and an in-memory RepoHelper, good enough for the `repo`
// subcommand and the `run --repo` pre-flight path without making any
// actual git calls. Grounded on evalgo-org-eve's coordinator package
// shape (narrow request/response structs, no direct shell-outs).
package repohelper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// RepoSpec describes a repository registration request.
type RepoSpec struct {
	Name       string
	RemoteURL  string
	Worktree   string
	DefaultRef string
}

// RepoInfo is the registered repository's current state.
type RepoInfo struct {
	RepoSpec
	AddedAt   time.Time
	SyncedAt  *time.Time
	LastSHA   string
}

// RepoHelper is the narrow interface the CLI's `repo` subcommand and
// the executor's `run --repo` pre-flight consume.
type RepoHelper interface {
	Add(ctx context.Context, spec RepoSpec) (RepoInfo, error)
	List(ctx context.Context) ([]RepoInfo, error)
	Show(ctx context.Context, name string) (RepoInfo, error)
	Remove(ctx context.Context, name string) error
	Sync(ctx context.Context, name string) (RepoInfo, error)
}

// ErrNotFound is returned by Show/Remove/Sync for an unknown name.
type ErrNotFound struct{ Name string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("repository %q is not registered", e.Name) }

// ErrExists is returned by Add when name is already registered.
type ErrExists struct{ Name string }

func (e *ErrExists) Error() string { return fmt.Sprintf("repository %q is already registered", e.Name) }

// InMemory is a RepoHelper that tracks registrations in process memory
// only; Sync advances a synthetic SHA rather than shelling out to git.
type InMemory struct {
	mu    sync.Mutex
	repos map[string]RepoInfo
	now   func() time.Time
}

// New builds an empty InMemory RepoHelper.
func New() *InMemory {
	return &InMemory{repos: map[string]RepoInfo{}, now: time.Now}
}

// Add registers spec, rejecting a duplicate name.
func (m *InMemory) Add(_ context.Context, spec RepoSpec) (RepoInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.repos[spec.Name]; ok {
		return RepoInfo{}, &ErrExists{Name: spec.Name}
	}
	info := RepoInfo{RepoSpec: spec, AddedAt: m.now()}
	m.repos[spec.Name] = info
	return info, nil
}

// List returns every registered repo, sorted by name.
func (m *InMemory) List(_ context.Context) ([]RepoInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RepoInfo, 0, len(m.repos))
	for _, info := range m.repos {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Show returns the registration for name.
func (m *InMemory) Show(_ context.Context, name string) (RepoInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.repos[name]
	if !ok {
		return RepoInfo{}, &ErrNotFound{Name: name}
	}
	return info, nil
}

// Remove deregisters name.
func (m *InMemory) Remove(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.repos[name]; !ok {
		return &ErrNotFound{Name: name}
	}
	delete(m.repos, name)
	return nil
}

// Sync advances name's synced_at and a synthetic SHA derived from the
// sync count, standing in for a real fetch+checkout.
func (m *InMemory) Sync(_ context.Context, name string) (RepoInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.repos[name]
	if !ok {
		return RepoInfo{}, &ErrNotFound{Name: name}
	}
	now := m.now()
	info.SyncedAt = &now
	info.LastSHA = fmt.Sprintf("sync-%d", now.UnixNano())
	m.repos[name] = info
	return info, nil
}
