package agent

import "sync"

var (
	defaultMu    sync.Mutex
	defaultAgent *Agent
)

// Init creates the process-wide default agent. Idempotent: a second call is
// a no-op that returns the existing instance, preserving initialize-once
// semantics without hidden mutable state elsewhere.
func Init(opts ...Option) (*Agent, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultAgent != nil {
		return defaultAgent, nil
	}

	a, err := New(opts...)
	if err != nil {
		return nil, err
	}
	defaultAgent = a
	return a, nil
}

// Default returns the process-wide agent, or nil before Init.
func Default() *Agent {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultAgent
}

// resetDefault clears the guarded instance. Test helper.
func resetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultAgent = nil
}
