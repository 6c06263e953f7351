package services

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/financehub/internal/common"
	"github.com/dmitrijs2005/financehub/internal/dbx"
	"github.com/dmitrijs2005/financehub/internal/server/models"
	"github.com/dmitrijs2005/financehub/internal/server/repositories/backups"
	"github.com/dmitrijs2005/financehub/internal/server/repositories/records"
	"github.com/dmitrijs2005/financehub/internal/server/repositories/repomanager"
)

type fakeRepoMgr struct {
	repomanager.RepositoryManager
	records *fakeRecords
	backups *fakeBackups
}

func newFakeRepoMgr() *fakeRepoMgr {
	return &fakeRepoMgr{
		records: &fakeRecords{byID: map[string]*models.Record{}},
		backups: &fakeBackups{},
	}
}

func (m *fakeRepoMgr) Records(dbx.DBTX) records.Repository { return m.records }
func (m *fakeRepoMgr) Backups(dbx.DBTX) backups.Repository { return m.backups }

type fakeRecords struct {
	mu   sync.Mutex
	byID map[string]*models.Record
	err  error
}

func (f *fakeRecords) Upsert(_ context.Context, rec *models.Record) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	for _, r := range f.byID {
		if r.UserID == rec.UserID && r.DeviceID == rec.DeviceID && r.Entity == rec.Entity && r.ClientID == rec.ClientID {
			if r.UpdatedAt <= rec.UpdatedAt {
				r.Payload, r.UpdatedAt, r.ModifiedAt, r.DeletedAt = rec.Payload, rec.UpdatedAt, rec.ModifiedAt, nil
			}
			return r.ID, nil
		}
	}
	cp := *rec
	f.byID[rec.ID] = &cp
	return rec.ID, nil
}

func (f *fakeRecords) Update(_ context.Context, rec *models.Record) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	r, ok := f.byID[rec.ID]
	if !ok || r.UserID != rec.UserID || r.Entity != rec.Entity {
		return false, common.ErrNotFound
	}
	if r.UpdatedAt > rec.UpdatedAt {
		return false, nil
	}
	r.Payload, r.UpdatedAt, r.ModifiedAt, r.DeletedAt = rec.Payload, rec.UpdatedAt, rec.ModifiedAt, nil
	return true, nil
}

func (f *fakeRecords) SoftDelete(_ context.Context, rec *models.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if r, ok := f.byID[rec.ID]; ok && r.UserID == rec.UserID && r.DeletedAt == nil {
		at := rec.ModifiedAt
		r.DeletedAt, r.ModifiedAt = &at, at
	}
	return nil
}

func (f *fakeRecords) SelectModifiedSince(_ context.Context, userID string, since int64) ([]*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.Record
	for _, r := range f.byID {
		if r.UserID == userID && r.ModifiedAt > since {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeBackups struct {
	created []*models.Backup
	latest  *models.Backup
	err     error
}

func (f *fakeBackups) Create(_ context.Context, b *models.Backup) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, b)
	return nil
}

func (f *fakeBackups) Latest(context.Context, string, string) (*models.Backup, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.latest == nil {
		return nil, common.ErrNotFound
	}
	return f.latest, nil
}
