package routing

import (
	"sort"
	"sync"
)

// RepoRegistry tracks which working-set repos are active. A task that
// names a repo is schedulable only while that repo is active.
type RepoRegistry struct {
	mu    sync.RWMutex
	repos map[string]bool
}

// NewRepoRegistry creates an empty registry.
func NewRepoRegistry() *RepoRegistry {
	return &RepoRegistry{repos: make(map[string]bool)}
}

// Load replaces the active set.
func (r *RepoRegistry) Load(repos []string) {
	next := make(map[string]bool, len(repos))
	for _, repo := range repos {
		if repo != "" {
			next[repo] = true
		}
	}
	r.mu.Lock()
	r.repos = next
	r.mu.Unlock()
}

// Activate marks one repo active.
func (r *RepoRegistry) Activate(repo string) {
	if repo == "" {
		return
	}
	r.mu.Lock()
	r.repos[repo] = true
	r.mu.Unlock()
}

// Deactivate removes one repo from the active set.
func (r *RepoRegistry) Deactivate(repo string) {
	r.mu.Lock()
	delete(r.repos, repo)
	r.mu.Unlock()
}

// IsActive reports whether the repo is active. The empty repo (task not
// repo-scoped) is always active.
func (r *RepoRegistry) IsActive(repo string) bool {
	if repo == "" {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.repos[repo]
}

// List returns the active repos sorted.
func (r *RepoRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.repos))
	for repo := range r.repos {
		out = append(out, repo)
	}
	sort.Strings(out)
	return out
}
