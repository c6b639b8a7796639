// Package aggregator fans out per-account pipelines and folds their results
// into the unified bundle consumed by the dashboard layer.
package aggregator

import (
	"fmt"
	"sort"
	"sync"

	"exchange-ledger/internal/domain"
	"exchange-ledger/internal/exchange"
)

// ClientFactory builds an exchange client for one account. The factory is
// called at most once per account per session.
type ClientFactory func(account domain.Account) (exchange.Client, error)

// Session owns the exchange clients for one aggregation run. Construction
// and teardown belong to the caller: New builds it, Close releases every
// client the session created. Clients are never shared between sessions.
type Session struct {
	factory ClientFactory

	mu      sync.Mutex
	clients map[string]exchange.Client
}

// NewSession creates a session that builds clients on demand via factory.
func NewSession(factory ClientFactory) *Session {
	return &Session{
		factory: factory,
		clients: make(map[string]exchange.Client),
	}
}

// Client returns the exchange client for account, creating it on first use.
func (s *Session) Client(account domain.Account) (exchange.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[account.ID]; ok {
		return c, nil
	}
	c, err := s.factory(account)
	if err != nil {
		return nil, fmt.Errorf("create client for account %s: %w", account.ID, err)
	}
	s.clients[account.ID] = c
	return c, nil
}

// Close releases every client the session created. Clients that implement
// io.Closer are closed; the first error is returned after all closes ran.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var firstErr error
	for _, id := range ids {
		if closer, ok := s.clients[id].(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close client for account %s: %w", id, err)
			}
		}
		delete(s.clients, id)
	}
	return firstErr
}
