package redis

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	if environment == "development" || environment == "staging" || environment == "test" {
		prefix = environment
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// ChannelEvent is the pub/sub channel carrying change notifications for
// a single event document.
func (kb *KeyBuilder) ChannelEvent(eventID string) string {
	return kb.BuildKey(fmt.Sprintf(ChannelEvent, eventID))
}

// ChannelActiveEvents is the pub/sub channel carrying change
// notifications for the active-event list.
func (kb *KeyBuilder) ChannelActiveEvents() string {
	return kb.BuildKey(ChannelActiveEvents)
}

// KeyEventSnapshot caches the latest serialized snapshot of one event.
func (kb *KeyBuilder) KeyEventSnapshot(eventID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyEventSnapshot, eventID))
}

// KeyActiveEvents caches the latest serialized active-event list.
func (kb *KeyBuilder) KeyActiveEvents() string {
	return kb.BuildKey(KeyActiveEvents)
}

// KeyCustom builds a key from a custom pattern
func (kb *KeyBuilder) KeyCustom(pattern string, args ...interface{}) string {
	key := fmt.Sprintf(pattern, args...)
	return kb.BuildKey(key)
}
