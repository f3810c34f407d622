package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseOrigins(t *testing.T) {
	assert.Nil(t, parseOrigins(""))
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, parseOrigins(" http://a.test, ,http://b.test "))
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("EXAM_API_URL", "http://exams.internal")
	t.Setenv("EXAM_API_TIMEOUT_SECONDS", "3")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "not-a-number")

	cfg := Load()

	assert.Equal(t, "http://exams.internal", cfg.ExamAPIURL)
	assert.Equal(t, 3*time.Second, cfg.ExamAPITimeout)
	assert.Equal(t, 600, cfg.RateLimitPerMinute)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "owner:42:course:go-basics:active_attempt", CacheKey.ActiveAttemptKey("42", "go-basics"))
	assert.Equal(t, "session:abc:events", CacheKey.SessionEventsChannel("abc"))
}
