package bot

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/girafe-ai/keeper-bot/logger"
	"github.com/rs/zerolog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Registry is the process-wide set of chat IDs the bot currently lives in,
// categorized by kind. It is a cache over the access store, snapshotted to
// disk on an interval so a restart can approximately recover it; the store
// stays authoritative and the doctor sweep repairs any drift.
type Registry struct {
	mu       sync.Mutex
	path     string
	users    map[int64]struct{}
	groups   map[int64]struct{}
	channels map[int64]struct{}
	dirty    bool
	log      zerolog.Logger
}

// RegistrySnapshot is the on-disk shape of the registry, with each kind
// sorted for stable output.
type RegistrySnapshot struct {
	UserIDs    []int64 `json:"user_ids"`
	GroupIDs   []int64 `json:"group_ids"`
	ChannelIDs []int64 `json:"channel_ids"`
}

func NewRegistry(path string) *Registry {
	r := &Registry{
		path:     path,
		users:    make(map[int64]struct{}),
		groups:   make(map[int64]struct{}),
		channels: make(map[int64]struct{}),
		log:      logger.New("registry"),
	}

	if err := r.load(); err != nil {
		r.log.Err(err).Str("path", path).Msg("Could not restore registry snapshot, starting empty")
	}

	return r
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var snapshot RegistrySnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range snapshot.UserIDs {
		r.users[id] = struct{}{}
	}
	for _, id := range snapshot.GroupIDs {
		r.groups[id] = struct{}{}
	}
	for _, id := range snapshot.ChannelIDs {
		r.channels[id] = struct{}{}
	}

	return nil
}

func (r *Registry) AddUser(id int64)       { r.add(r.users, id) }
func (r *Registry) RemoveUser(id int64)    { r.remove(r.users, id) }
func (r *Registry) AddGroup(id int64)      { r.add(r.groups, id) }
func (r *Registry) RemoveGroup(id int64)   { r.remove(r.groups, id) }
func (r *Registry) AddChannel(id int64)    { r.add(r.channels, id) }
func (r *Registry) RemoveChannel(id int64) { r.remove(r.channels, id) }

func (r *Registry) HasGroup(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.groups[id]
	return ok
}

func (r *Registry) add(set map[int64]struct{}, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := set[id]; ok {
		return
	}
	set[id] = struct{}{}
	r.dirty = true
}

func (r *Registry) remove(set map[int64]struct{}, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := set[id]; !ok {
		return
	}
	delete(set, id)
	r.dirty = true
}

func (r *Registry) Snapshot() RegistrySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RegistrySnapshot{
		UserIDs:    sortedKeys(r.users),
		GroupIDs:   sortedKeys(r.groups),
		ChannelIDs: sortedKeys(r.channels),
	}
}

func sortedKeys(set map[int64]struct{}) []int64 {
	ids := maps.Keys(set)
	slices.Sort(ids)
	if ids == nil {
		ids = []int64{}
	}
	return ids
}

// Persist writes the snapshot if the registry changed since the last write.
func (r *Registry) Persist() error {
	r.mu.Lock()
	if !r.dirty {
		r.mu.Unlock()
		return nil
	}
	snapshot := RegistrySnapshot{
		UserIDs:    sortedKeys(r.users),
		GroupIDs:   sortedKeys(r.groups),
		ChannelIDs: sortedKeys(r.channels),
	}
	r.dirty = false
	r.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	// Write-then-rename so a crash never leaves a torn snapshot behind.
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Clean(r.path)); err != nil {
		return err
	}

	return nil
}

// Run persists the registry on the given interval until ctx is cancelled,
// with a final flush on shutdown.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := r.Persist(); err != nil {
				r.log.Err(err).Msg("Failed to write final registry snapshot")
			}
			return
		case <-ticker.C:
			if err := r.Persist(); err != nil {
				r.log.Err(err).Msg("Failed to write registry snapshot")
			}
		}
	}
}
