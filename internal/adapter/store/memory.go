// Package store provides the record stores behind the payments API: an
// in-memory implementation for tests and single-process runs, a sqlite
// implementation for durable runs, and a cron janitor that expires stale
// sessions.
package store

import (
	"context"
	"sync"
	"time"

	"forward-elements/internal/domain"
)

// Memory holds all three record kinds in process memory. Safe for concurrent
// use. The zero value is not usable; call NewMemory.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]domain.PaymentSession
	methods  map[string]domain.CardPaymentMethod
	payments map[string]domain.Payment
}

// NewMemory creates an empty in-memory store set.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]domain.PaymentSession),
		methods:  make(map[string]domain.CardPaymentMethod),
		payments: make(map[string]domain.Payment),
	}
}

// Stores bundles the memory store behind the domain interfaces.
func (m *Memory) Stores() domain.Stores {
	return domain.Stores{
		Sessions: (*memorySessions)(m),
		Methods:  (*memoryMethods)(m),
		Payments: (*memoryPayments)(m),
	}
}

type memorySessions Memory

func (s *memorySessions) Create(_ context.Context, rec domain.PaymentSession) (domain.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.ID] = rec
	return rec, nil
}

func (s *memorySessions) GetByID(_ context.Context, id string) (domain.PaymentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return domain.PaymentSession{}, domain.ErrSessionNotFound
	}
	return rec, nil
}

func (s *memorySessions) Update(_ context.Context, rec domain.PaymentSession) (domain.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[rec.ID]; !ok {
		return domain.PaymentSession{}, domain.ErrSessionNotFound
	}
	rec.UpdatedAt = time.Now()
	s.sessions[rec.ID] = rec
	return rec, nil
}

func (s *memorySessions) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *memorySessions) List(_ context.Context) ([]domain.PaymentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PaymentSession, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, rec)
	}
	return out, nil
}

type memoryMethods Memory

func (s *memoryMethods) Create(_ context.Context, rec domain.CardPaymentMethod) (domain.CardPaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[rec.ID] = rec
	return rec, nil
}

func (s *memoryMethods) GetByID(_ context.Context, id string) (domain.CardPaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.methods[id]
	if !ok {
		return domain.CardPaymentMethod{}, domain.ErrMethodNotFound
	}
	return rec, nil
}

func (s *memoryMethods) Update(_ context.Context, rec domain.CardPaymentMethod) (domain.CardPaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.methods[rec.ID]; !ok {
		return domain.CardPaymentMethod{}, domain.ErrMethodNotFound
	}
	rec.UpdatedAt = time.Now()
	s.methods[rec.ID] = rec
	return rec, nil
}

func (s *memoryMethods) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.methods[id]; !ok {
		return domain.ErrMethodNotFound
	}
	delete(s.methods, id)
	return nil
}

func (s *memoryMethods) List(_ context.Context) ([]domain.CardPaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CardPaymentMethod, 0, len(s.methods))
	for _, rec := range s.methods {
		out = append(out, rec)
	}
	return out, nil
}

type memoryPayments Memory

func (s *memoryPayments) Create(_ context.Context, rec domain.Payment) (domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[rec.ID] = rec
	return rec, nil
}

func (s *memoryPayments) GetByID(_ context.Context, id string) (domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.payments[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return rec, nil
}

func (s *memoryPayments) Update(_ context.Context, rec domain.Payment) (domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[rec.ID]; !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	rec.UpdatedAt = time.Now()
	s.payments[rec.ID] = rec
	return rec, nil
}

func (s *memoryPayments) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[id]; !ok {
		return domain.ErrPaymentNotFound
	}
	delete(s.payments, id)
	return nil
}

func (s *memoryPayments) List(_ context.Context) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Payment, 0, len(s.payments))
	for _, rec := range s.payments {
		out = append(out, rec)
	}
	return out, nil
}
