// Package aitest provides a scripted ai.Completer for tests.
package aitest

import (
	"context"
	"sync"

	"github.com/zhouzirui/gemchat/backend/internal/service/ai"
)

// Stub returns Reply (or Err) and records every call.
type Stub struct {
	mu    sync.Mutex
	Reply string
	Err   error
	Calls [][]ai.Turn
	Param []ai.Params
}

// Complete implements ai.Completer.
func (s *Stub) Complete(_ context.Context, turns []ai.Turn, params ai.Params) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls = append(s.Calls, append([]ai.Turn(nil), turns...))
	s.Param = append(s.Param, params)
	if s.Err != nil {
		return "", s.Err
	}
	return s.Reply, nil
}

// LastTurns returns the turns of the most recent call.
func (s *Stub) LastTurns() []ai.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.Calls) == 0 {
		return nil
	}
	return s.Calls[len(s.Calls)-1]
}
