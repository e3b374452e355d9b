package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"relaybot/internal/model"
)

// Memory is the in-process backend. It backs the "memory" driver and the
// package's tests. All state is lost on restart.
type Memory struct {
	mu sync.RWMutex

	posts        map[string]model.Post
	schedules    map[string]model.Schedule
	states       map[int64]model.ConvState
	destinations map[int64]model.Destination
	footer       string
}

func NewMemory() *Memory {
	return &Memory{
		posts:        map[string]model.Post{},
		schedules:    map[string]model.Schedule{},
		states:       map[int64]model.ConvState{},
		destinations: map[int64]model.Destination{},
	}
}

func (m *Memory) SavePost(ctx context.Context, p *model.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[p.ID] = *p
	return nil
}

func (m *Memory) PostsByOwner(ctx context.Context, ownerID int64) ([]model.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Post
	for _, p := range m.posts {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) PostsByIDs(ctx context.Context, ids []string) ([]model.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.posts[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) DeletePost(ctx context.Context, id string, ownerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok || p.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(m.posts, id)
	return nil
}

func (m *Memory) SaveSchedule(ctx context.Context, s *model.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = *s
	return nil
}

func (m *Memory) SchedulesByOwner(ctx context.Context, ownerID int64) ([]model.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Schedule
	for _, s := range m.schedules {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ActiveSchedules(ctx context.Context) ([]model.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Schedule
	for _, s := range m.schedules {
		if s.IsActive {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SetLastExecuted(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return ErrNotFound
	}
	s.LastExecutedAt = &at
	m.schedules[id] = s
	return nil
}

func (m *Memory) ToggleSchedule(ctx context.Context, id string, ownerID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok || s.OwnerID != ownerID {
		return false, ErrNotFound
	}
	s.IsActive = !s.IsActive
	m.schedules[id] = s
	return s.IsActive, nil
}

func (m *Memory) DeleteSchedule(ctx context.Context, id string, ownerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok || s.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(m.schedules, id)
	return nil
}

func (m *Memory) PutState(ctx context.Context, st *model.ConvState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.OwnerID] = *st
	return nil
}

func (m *Memory) GetState(ctx context.Context, ownerID int64) (*model.ConvState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[ownerID]
	if !ok {
		return nil, nil
	}
	cp := st
	return &cp, nil
}

func (m *Memory) ClearState(ctx context.Context, ownerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, ownerID)
	return nil
}

func (m *Memory) DeleteIdleStates(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, st := range m.states {
		if st.LastActivityAt.Before(cutoff) {
			delete(m.states, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) AddDestination(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.destinations[id]; !ok {
		m.destinations[id] = model.Destination{ID: id, AddedAt: time.Now()}
	}
	return nil
}

func (m *Memory) RemoveDestination(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.destinations[id]; !ok {
		return ErrNotFound
	}
	delete(m.destinations, id)
	return nil
}

func (m *Memory) Destinations(ctx context.Context) ([]model.Destination, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Destination, 0, len(m.destinations))
	for _, d := range m.destinations {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

func (m *Memory) Footer(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.footer, nil
}

func (m *Memory) SetFooter(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.footer = text
	return nil
}

func (m *Memory) Close(ctx context.Context) error { return nil }
