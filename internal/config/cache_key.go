package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ActiveAttemptKey returns the lock key guarding one live attempt per owner and course.
func (r *CacheKeyStruct) ActiveAttemptKey(owner, courseSlug string) string {
	return fmt.Sprintf("owner:%s:course:%s:active_attempt", owner, courseSlug)
}

// SessionEventsChannel returns the Redis PubSub channel carrying a session's events.
func (r *CacheKeyStruct) SessionEventsChannel(sessionID string) string {
	return fmt.Sprintf("session:%s:events", sessionID)
}

var CacheKey = NewCacheKeyStruct()
