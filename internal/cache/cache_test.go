package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "phyrisk:chat:history:7", historyKey(7))
	assert.Equal(t, "phyrisk:chat:history:dirty:7", dirtyKey(7))
	assert.Equal(t, "phyrisk:xai:local:42", explanationKey(42))
}

func TestDefaultTTLs(t *testing.T) {
	h := NewHistoryCache(nil, 0, -1)
	assert.Equal(t, time.Minute, h.ttl)
	assert.Equal(t, 5*time.Second, h.dirtyTTL)

	e := NewExplanationCache(nil, 0)
	assert.Equal(t, time.Hour, e.ttl)
}
