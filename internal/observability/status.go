package observability

import (
	"sync"
	"time"
)

type Activity string

const (
	ActivityIdle    Activity = "IDLE"
	ActivityRouting Activity = "ROUTING"
)

type SystemStatus struct {
	mu            sync.RWMutex
	Activity      Activity
	Detail        string
	Sessions      int
	LastHeartbeat time.Time
}

var globalStatus = &SystemStatus{
	Activity:      ActivityIdle,
	LastHeartbeat: time.Now(),
}

// SetStatus updates the global system status.
func SetStatus(activity Activity, detail string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.Activity = activity
	globalStatus.Detail = detail
}

// SetSessions records how many wizard sessions are open across modules.
func SetSessions(n int) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.Sessions = n
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (Activity, string, int, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.Activity, globalStatus.Detail, globalStatus.Sessions, globalStatus.LastHeartbeat
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
