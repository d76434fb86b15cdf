package resolver

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Directory looks up display names and usergroup handles on the
// messaging platform.
type Directory interface {
	LookupUser(ctx context.Context, userID string) (string, error)
	ListUserGroups(ctx context.Context) (map[string]string, error)
}

// ReferenceCache maps user IDs to display names and usergroup IDs to
// handles. Entries are never evicted. One cache is built per process and
// shared by every ingestion.
type ReferenceCache struct {
	dir Directory

	mu     sync.RWMutex
	users  map[string]string
	groups map[string]string

	lookups    singleflight.Group
	groupsOnce sync.Once
}

func NewReferenceCache(dir Directory) *ReferenceCache {
	return &ReferenceCache{
		dir:    dir,
		users:  make(map[string]string),
		groups: make(map[string]string),
	}
}

// UserName returns the cached display name for userID, looking it up on a
// miss. A failed lookup returns the raw ID and is not cached, so the next
// call tries again.
func (c *ReferenceCache) UserName(ctx context.Context, userID string) string {
	if userID == "" {
		return "Unknown"
	}

	c.mu.RLock()
	name, ok := c.users[userID]
	c.mu.RUnlock()
	if ok {
		return name
	}

	v, _, _ := c.lookups.Do(userID, func() (any, error) {
		c.mu.RLock()
		name, ok := c.users[userID]
		c.mu.RUnlock()
		if ok {
			return name, nil
		}

		name, err := c.dir.LookupUser(ctx, userID)
		if err != nil {
			slog.WarnContext(ctx, "user lookup failed, using raw id",
				"user_id", userID,
				"error", err)
			return userID, nil
		}

		c.mu.Lock()
		c.users[userID] = name
		c.mu.Unlock()
		return name, nil
	})
	return v.(string)
}

// LoadGroups fetches the usergroup list once for the cache's lifetime.
// Failures are logged and leave the group map empty.
func (c *ReferenceCache) LoadGroups(ctx context.Context) {
	c.groupsOnce.Do(func() {
		groups, err := c.dir.ListUserGroups(ctx)
		if err != nil {
			slog.WarnContext(ctx, "usergroup list failed", "error", err)
			return
		}

		c.mu.Lock()
		for id, handle := range groups {
			c.groups[id] = handle
		}
		c.mu.Unlock()

		slog.InfoContext(ctx, "usergroups cached", "count", len(groups))
	})
}

// GroupHandle returns the cached handle for groupID.
func (c *ReferenceCache) GroupHandle(groupID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	handle, ok := c.groups[groupID]
	return handle, ok
}

// Groups returns a copy of the group ID to handle map.
func (c *ReferenceCache) Groups() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.groups))
	for id, handle := range c.groups {
		out[id] = handle
	}
	return out
}
