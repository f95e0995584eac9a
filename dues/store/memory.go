// Package store provides dues.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/club-engine/dues"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	members     map[dues.MemberID]dues.Member
	memberOrder []dues.MemberID
	months      map[monthKey]dues.DuesMonthRecord
	reminders   map[reminderKey]dues.ReminderEntry
	extensions  map[dues.MemberID][]dues.Extension
	forgiveness map[monthKey]dues.Forgiveness
	templates   map[dues.Stage]dues.Template
	settings    *dues.Settings
}

type monthKey struct {
	MemberID dues.MemberID
	Month    dues.MonthKey
}

type reminderKey struct {
	MemberID dues.MemberID
	Month    dues.MonthKey
	Stage    dues.Stage
}

func NewMemory() *Memory {
	return &Memory{
		members:     make(map[dues.MemberID]dues.Member),
		months:      make(map[monthKey]dues.DuesMonthRecord),
		reminders:   make(map[reminderKey]dues.ReminderEntry),
		extensions:  make(map[dues.MemberID][]dues.Extension),
		forgiveness: make(map[monthKey]dues.Forgiveness),
		templates:   make(map[dues.Stage]dues.Template),
	}
}

var _ dues.Store = (*Memory)(nil)

// -----------------------------------------------------------------------------
// Members
// -----------------------------------------------------------------------------

func (m *Memory) SaveMember(_ context.Context, mem dues.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.members[mem.ID]; !exists {
		m.memberOrder = append(m.memberOrder, mem.ID)
	}
	m.members[mem.ID] = mem
	return nil
}

func (m *Memory) GetMember(_ context.Context, id dues.MemberID) (*dues.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[id]
	if !ok {
		return nil, nil
	}
	return &mem, nil
}

func (m *Memory) ListMembers(_ context.Context) ([]dues.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]dues.Member, 0, len(m.memberOrder))
	for _, id := range m.memberOrder {
		result = append(result, m.members[id])
	}
	return result, nil
}

// -----------------------------------------------------------------------------
// Month records
// -----------------------------------------------------------------------------

func (m *Memory) GetMonth(_ context.Context, id dues.MemberID, month dues.MonthKey) (*dues.DuesMonthRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.months[monthKey{id, month}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) UpsertMonth(_ context.Context, rec dues.DuesMonthRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.months[monthKey{rec.MemberID, rec.Month}] = rec
	return nil
}

func (m *Memory) ListMonth(_ context.Context, month dues.MonthKey) ([]dues.DuesMonthRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []dues.DuesMonthRecord
	for k, rec := range m.months {
		if k.Month == month {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MemberID < result[j].MemberID })
	return result, nil
}

func (m *Memory) ListMemberMonths(_ context.Context, id dues.MemberID) ([]dues.DuesMonthRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []dues.DuesMonthRecord
	for k, rec := range m.months {
		if k.MemberID == id {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Month.Time().Before(result[j].Month.Time())
	})
	return result, nil
}

// -----------------------------------------------------------------------------
// Reminder log
// -----------------------------------------------------------------------------

// Record is the conditional insert-if-absent. Single map write under the
// lock, so concurrent runs cannot both claim a triple.
func (m *Memory) Record(_ context.Context, e dues.ReminderEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := reminderKey{e.MemberID, e.Month, e.Stage}
	if _, exists := m.reminders[k]; exists {
		return dues.ErrStageAlreadyFired
	}
	m.reminders[k] = e
	return nil
}

func (m *Memory) HasFired(_ context.Context, id dues.MemberID, month dues.MonthKey, stage dues.Stage) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.reminders[reminderKey{id, month, stage}]
	return ok, nil
}

func (m *Memory) HasFiredAny(_ context.Context, id dues.MemberID, stage dues.Stage) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k := range m.reminders {
		if k.MemberID == id && k.Stage == stage {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Entries(_ context.Context, id dues.MemberID, month dues.MonthKey) ([]dues.ReminderEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []dues.ReminderEntry
	for k, e := range m.reminders {
		if k.MemberID == id && k.Month == month {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Stage < result[j].Stage })
	return result, nil
}

// -----------------------------------------------------------------------------
// Overrides
// -----------------------------------------------------------------------------

func (m *Memory) SaveExtension(_ context.Context, e dues.Extension) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.extensions[e.MemberID]
	for i := range list {
		list[i].Active = false
	}
	m.extensions[e.MemberID] = append(list, e)
	return nil
}

func (m *Memory) ActiveExtension(_ context.Context, id dues.MemberID) (*dues.Extension, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.extensions[id] {
		if e.Active {
			ext := e
			return &ext, nil
		}
	}
	return nil, nil
}

func (m *Memory) DeactivateExtension(_ context.Context, id dues.MemberID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.extensions[id]
	found := false
	for i := range list {
		if list[i].Active {
			list[i].Active = false
			found = true
		}
	}
	if !found {
		return dues.ErrNoActiveExtension
	}
	return nil
}

func (m *Memory) SaveForgiveness(_ context.Context, f dues.Forgiveness) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := monthKey{f.MemberID, f.Month}
	if _, exists := m.forgiveness[k]; exists {
		return nil // idempotent
	}
	m.forgiveness[k] = f
	return nil
}

func (m *Memory) GetForgiveness(_ context.Context, id dues.MemberID, month dues.MonthKey) (*dues.Forgiveness, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.forgiveness[monthKey{id, month}]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

// -----------------------------------------------------------------------------
// Templates + settings
// -----------------------------------------------------------------------------

func (m *Memory) SaveTemplate(_ context.Context, t dues.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.Stage] = t
	return nil
}

func (m *Memory) GetTemplate(_ context.Context, stage dues.Stage) (*dues.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[stage]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) ListTemplates(_ context.Context) ([]dues.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]dues.Template, 0, len(m.templates))
	for _, t := range m.templates {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Stage < result[j].Stage })
	return result, nil
}

func (m *Memory) GetSettings(_ context.Context) (dues.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return dues.DefaultSettings(), nil
	}
	return *m.settings, nil
}

func (m *Memory) SaveSettings(_ context.Context, s dues.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}
