package data_engine

import (
	"context"
	"sort"
	"sync"
	"time"
)

const defaultRetainedWindows = 12

// WindowData holds the event counts for one tumbling window.
type WindowData struct {
	StartTime  time.Time        `json:"start_time"`
	EndTime    time.Time        `json:"end_time"`
	EventCount int64            `json:"event_count"`
	ByType     map[string]int64 `json:"by_type"`
	Failures   int64            `json:"failures"`
}

// WindowedAggregator counts service events in fixed, non-overlapping
// windows and keeps only the most recent ones.
type WindowedAggregator struct {
	mutex      sync.RWMutex
	windows    map[int64]*WindowData
	windowSize time.Duration
	retain     int
	now        func() time.Time
}

// NewWindowedAggregator creates an aggregator. Non-positive arguments fall
// back to one-minute windows and twelve retained windows.
func NewWindowedAggregator(windowSize time.Duration, retain int) *WindowedAggregator {
	if windowSize <= 0 {
		windowSize = time.Minute
	}
	if retain <= 0 {
		retain = defaultRetainedWindows
	}
	return &WindowedAggregator{
		windows:    make(map[int64]*WindowData),
		windowSize: windowSize,
		retain:     retain,
		now:        time.Now,
	}
}

// PublishEvent counts the event in the current window.
func (wa *WindowedAggregator) PublishEvent(_ context.Context, eventType string, data map[string]interface{}) error {
	wa.ProcessEvent(Event{Type: eventType, Timestamp: wa.now(), Data: data})
	return nil
}

// ProcessEvent adds an event to the window containing its timestamp.
func (wa *WindowedAggregator) ProcessEvent(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = wa.now()
	}
	start := event.Timestamp.Truncate(wa.windowSize)

	wa.mutex.Lock()
	defer wa.mutex.Unlock()

	window, ok := wa.windows[start.UnixNano()]
	if !ok {
		window = &WindowData{
			StartTime: start,
			EndTime:   start.Add(wa.windowSize),
			ByType:    make(map[string]int64),
		}
		wa.windows[start.UnixNano()] = window
	}
	window.EventCount++
	window.ByType[event.Type]++
	if success, ok := event.Data["success"].(bool); ok && !success {
		window.Failures++
	}

	wa.cleanupWindows()
}

// cleanupWindows drops the oldest windows beyond the retention count.
func (wa *WindowedAggregator) cleanupWindows() {
	if len(wa.windows) <= wa.retain {
		return
	}
	keys := wa.sortedKeys()
	for _, key := range keys[:len(keys)-wa.retain] {
		delete(wa.windows, key)
	}
}

func (wa *WindowedAggregator) sortedKeys() []int64 {
	keys := make([]int64, 0, len(wa.windows))
	for key := range wa.windows {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Windows returns copies of the retained windows, oldest first.
func (wa *WindowedAggregator) Windows() []WindowData {
	wa.mutex.RLock()
	defer wa.mutex.RUnlock()

	out := make([]WindowData, 0, len(wa.windows))
	for _, key := range wa.sortedKeys() {
		w := wa.windows[key]
		copied := *w
		copied.ByType = make(map[string]int64, len(w.ByType))
		for k, v := range w.ByType {
			copied.ByType[k] = v
		}
		out = append(out, copied)
	}
	return out
}

// Totals sums event counts per type across the retained windows.
func (wa *WindowedAggregator) Totals() map[string]int64 {
	totals := make(map[string]int64)
	for _, w := range wa.Windows() {
		for k, v := range w.ByType {
			totals[k] += v
		}
	}
	return totals
}
