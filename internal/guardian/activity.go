package guardian

import (
	"sync"
	"time"

	"codeguardian/types"
)

const maxActivities = 10

// Activity types recorded by the service.
const (
	ActivityChat        = "chat"
	ActivityAnalysis    = "analysis"
	ActivitySecurity    = "security_scan"
	ActivityScalability = "scalability_assessment"
	ActivityKeys        = "api_keys"
	ActivitySettings    = "settings"
)

// ActivityLog keeps the most recent entries, newest first.
type ActivityLog struct {
	mu      sync.RWMutex
	entries []types.Activity
	limit   int
	now     func() time.Time
}

func NewActivityLog(limit int) *ActivityLog {
	if limit <= 0 {
		limit = maxActivities
	}
	return &ActivityLog{
		entries: make([]types.Activity, 0, limit),
		limit:   limit,
		now:     time.Now,
	}
}

// Add records an entry and drops the oldest past the limit.
func (l *ActivityLog) Add(activityType, description string, details map[string]interface{}) types.Activity {
	entry := types.Activity{
		Type:        activityType,
		Description: description,
		Timestamp:   l.now(),
		Details:     details,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append([]types.Activity{entry}, l.entries...)
	if len(l.entries) > l.limit {
		l.entries = l.entries[:l.limit]
	}
	return entry
}

// Recent returns a copy of the log, newest first.
func (l *ActivityLog) Recent() []types.Activity {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Activity, len(l.entries))
	copy(out, l.entries)
	return out
}
