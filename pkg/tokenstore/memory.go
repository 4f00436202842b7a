package tokenstore

import (
	"context"
	"sync"
)

// tokens is shared by every Memory value in the process.
var tokens = struct {
	mu sync.RWMutex
	m  map[string]string
}{m: make(map[string]string)}

// Memory is an in-process store. All Memory values share one table, so two
// clients configured with the same scope reuse each other's session.
type Memory struct{}

// NewMemory returns a handle to the process-wide table.
func NewMemory() *Memory { return &Memory{} }

func (*Memory) Load(_ context.Context, key string) (string, bool, error) {
	tokens.mu.RLock()
	defer tokens.mu.RUnlock()

	token, ok := tokens.m[key]
	return token, ok, nil
}

func (*Memory) Store(_ context.Context, key, token string) error {
	tokens.mu.Lock()
	defer tokens.mu.Unlock()

	tokens.m[key] = token
	return nil
}

func (*Memory) Delete(_ context.Context, key string) error {
	tokens.mu.Lock()
	defer tokens.mu.Unlock()

	delete(tokens.m, key)
	return nil
}

// Reset drops every token held in the process-wide table. Intended for tests.
func (*Memory) Reset() {
	tokens.mu.Lock()
	defer tokens.mu.Unlock()

	tokens.m = make(map[string]string)
}
