package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/activity-audit-api/internal/models"
)

// memoryStore is an in-process stand-in for the activity, archive, alert and
// cleanup log repositories, honouring the same filter semantics.
type memoryStore struct {
	mu        sync.Mutex
	seq       int
	records   map[string]models.ActivityRecord
	archived  map[string]models.ArchivedRecord
	alerts    []models.SecurityAlert
	logs      []models.CleanupLog
	scanCalls int
	listCalls int
	rowsRead  int
	scanErr   error
	purgeErr  error
	failOnID  string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		records:  map[string]models.ActivityRecord{},
		archived: map[string]models.ArchivedRecord{},
	}
}

func (m *memoryStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%03d", prefix, m.seq)
}

func (m *memoryStore) put(rec models.ActivityRecord) models.ActivityRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = m.nextID("act")
	}
	m.records[rec.ID] = rec
	return rec
}

func (m *memoryStore) Insert(ctx context.Context, rec *models.ActivityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = m.nextID("act")
	}
	if _, exists := m.records[rec.ID]; exists {
		return fmt.Errorf("duplicate key %s", rec.ID)
	}
	m.records[rec.ID] = *rec
	return nil
}

func (m *memoryStore) GetByID(ctx context.Context, id string) (*models.ActivityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &rec, nil
}

func (m *memoryStore) sorted(filter models.ActivityFilter) []models.ActivityRecord {
	out := make([]models.ActivityRecord, 0, len(m.records))
	for _, rec := range m.records {
		if matchesFilter(rec, filter) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memoryStore) List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	asc := m.sorted(filter)
	out := make([]models.ActivityRecord, 0, limit)
	for i := len(asc) - 1 - filter.Offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, asc[i])
	}
	m.rowsRead += len(out)
	return out, nil
}

func (m *memoryStore) Count(ctx context.Context, filter models.ActivityFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sorted(filter)), nil
}

func (m *memoryStore) Scan(ctx context.Context, filter models.ActivityFilter, cursor models.ActivityCursor) ([]models.ActivityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanCalls++
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	limit := cursor.Limit
	if limit <= 0 {
		limit = defaultScanBatch
	}
	out := make([]models.ActivityRecord, 0, limit)
	for _, rec := range m.sorted(filter) {
		if !cursor.AfterCreatedAt.IsZero() {
			if rec.CreatedAt.Before(cursor.AfterCreatedAt) {
				continue
			}
			if rec.CreatedAt.Equal(cursor.AfterCreatedAt) && rec.ID <= cursor.AfterID {
				continue
			}
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	m.rowsRead += len(out)
	return out, nil
}

func (m *memoryStore) SetRiskLevel(ctx context.Context, id string, level int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return sql.ErrNoRows
	}
	rec.RiskLevel = level
	m.records[id] = rec
	return nil
}

func (m *memoryStore) ArchiveAndDelete(ctx context.Context, archived *models.ArchivedRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if archived.OriginalID == m.failOnID {
		return false, fmt.Errorf("archive write failed")
	}
	if _, ok := m.records[archived.OriginalID]; !ok {
		return false, nil
	}
	if archived.ID == "" {
		archived.ID = m.nextID("arc")
	}
	m.archived[archived.ID] = *archived
	delete(m.records, archived.OriginalID)
	return true, nil
}

func (m *memoryStore) Purge(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.purgeErr != nil || id == m.failOnID {
		return false, fmt.Errorf("purge failed")
	}
	if _, ok := m.records[id]; !ok {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}

func matchesFilter(rec models.ActivityRecord, f models.ActivityFilter) bool {
	if f.Type != "" && rec.Type != f.Type {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if rec.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Module != "" && rec.Module != f.Module {
		return false
	}
	if f.ActorID != "" && rec.ActorValue() != f.ActorID {
		return false
	}
	if f.IPAddress != "" && rec.IPAddress != f.IPAddress {
		return false
	}
	if f.Result != "" && rec.Result != f.Result {
		return false
	}
	if f.MinRiskLevel != nil && rec.RiskLevel < *f.MinRiskLevel {
		return false
	}
	if f.CreatedFrom != nil && rec.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedBefore != nil && rec.CreatedAt.After(*f.CreatedBefore) {
		return false
	}
	return true
}

// archive repository

func (m *memoryStore) archiveByID(id string) (*models.ArchivedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.archived[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &rec, nil
}

type memoryArchives struct{ *memoryStore }

func (a memoryArchives) GetByID(ctx context.Context, id string) (*models.ArchivedRecord, error) {
	return a.archiveByID(id)
}

func (a memoryArchives) List(ctx context.Context, filter models.ArchiveFilter) ([]models.ArchivedRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.ArchivedRecord, 0, len(a.archived))
	for _, rec := range a.archived {
		if filter.Type != "" && rec.Type != filter.Type {
			continue
		}
		if filter.Module != "" && rec.Module != filter.Module {
			continue
		}
		if filter.OriginalID != "" && rec.OriginalID != filter.OriginalID {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a memoryArchives) Count(ctx context.Context, filter models.ArchiveFilter) (int, error) {
	items, _ := a.List(ctx, filter)
	return len(items), nil
}

func (a memoryArchives) Restore(ctx context.Context, archivedID string, rec *models.ActivityRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.archived[archivedID]; !ok {
		return sql.ErrNoRows
	}
	if _, exists := a.records[rec.ID]; exists {
		return fmt.Errorf("duplicate key %s", rec.ID)
	}
	a.records[rec.ID] = *rec
	delete(a.archived, archivedID)
	return nil
}

func (a memoryArchives) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var n int64
	for id, rec := range a.archived {
		if rec.ArchivedAt.Before(before) {
			delete(a.archived, id)
			n++
		}
	}
	return n, nil
}

// alert repository

type memoryAlerts struct{ *memoryStore }

func (a memoryAlerts) Create(ctx context.Context, alert *models.SecurityAlert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if alert.ID == "" {
		alert.ID = a.nextID("alert")
	}
	a.alerts = append(a.alerts, *alert)
	return nil
}

func (a memoryAlerts) List(ctx context.Context, filter models.SecurityAlertFilter) ([]models.SecurityAlert, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.SecurityAlert, 0, len(a.alerts))
	for _, alert := range a.alerts {
		if filter.Kind != "" && alert.Kind != filter.Kind {
			continue
		}
		if filter.Severity != "" && alert.Severity != filter.Severity {
			continue
		}
		if filter.Since != nil && alert.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.IPAddress != "" {
			ip, ok := alert.Details.Get("ipAddress")
			if !ok || ip.Str != filter.IPAddress {
				continue
			}
		}
		out = append(out, alert)
	}
	return out, len(out), nil
}

func (a memoryAlerts) Exists(ctx context.Context, kind models.AlertKind, activityID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, alert := range a.alerts {
		if alert.Kind == kind && alert.ActivityID != nil && *alert.ActivityID == activityID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) alertsOfKind(kind models.AlertKind) []models.SecurityAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SecurityAlert
	for _, alert := range m.alerts {
		if alert.Kind == kind {
			out = append(out, alert)
		}
	}
	return out
}

// cleanup log repository

type memoryCleanupLogs struct{ *memoryStore }

func (l memoryCleanupLogs) Create(ctx context.Context, entry *models.CleanupLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.ID == "" {
		entry.ID = l.nextID("log")
	}
	l.logs = append(l.logs, *entry)
	return nil
}

func (l memoryCleanupLogs) List(ctx context.Context, filter models.CleanupLogFilter) ([]models.CleanupLog, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]models.CleanupLog(nil), l.logs...)
	return out, len(out), nil
}

type memoryCache struct {
	entries     map[string]interface{}
	sets        int
	invalidated []string
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	value, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if report, ok := dest.(*models.SecurityReport); ok {
		*report = *(value.(*models.SecurityReport))
	}
	return true, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.entries == nil {
		c.entries = map[string]interface{}{}
	}
	c.entries[key] = value
	c.sets++
	return nil
}

func (c *memoryCache) Invalidate(ctx context.Context, pattern string) error {
	c.invalidated = append(c.invalidated, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.entries {
		if key == pattern || (prefix != pattern && strings.HasPrefix(key, prefix)) {
			delete(c.entries, key)
		}
	}
	return nil
}
