package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/client"
	"github.com/dmitrijs2005/financehub/internal/client/connectivity"
	"github.com/dmitrijs2005/financehub/internal/client/models"
	"github.com/dmitrijs2005/financehub/internal/common"
	"github.com/dmitrijs2005/financehub/internal/dbx"
	"github.com/dmitrijs2005/financehub/internal/logging"
)

var ErrTagExists = errors.New("tag already exists")

// ExpenseInput describes a new or edited expense. Zero date parts default to
// today. Tags are names; unknown names are created.
type ExpenseInput struct {
	Title  string
	Amount int64
	Year   int
	Month  int
	Date   int
	Tags   []string
}

// ExpenseView is an expense with the names of its tags.
type ExpenseView struct {
	*models.Expense
	Tags []string
}

// LedgerService runs the user-facing mutations. Every use case is a single
// transaction, and every row it touches is armed for sync in that same
// transaction.
type LedgerService struct {
	db    *sql.DB
	state *connectivity.State
	log   logging.Logger
	now   func() time.Time
}

func NewLedgerService(db *sql.DB, state *connectivity.State, l logging.Logger) *LedgerService {
	return &LedgerService{
		db:    db,
		state: state,
		log:   l.With("module", "ledger"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *LedgerService) AddExpense(ctx context.Context, in ExpenseInput) (*models.Expense, error) {
	now := s.now()
	if err := normalizeExpense(&in, now); err != nil {
		return nil, err
	}

	e := &models.Expense{Title: in.Title, Amount: in.Amount, Year: in.Year, Month: in.Month, Date: in.Date}
	err := s.mutate(ctx, func(ctx context.Context, r *client.Repositories) error {
		if err := r.Expenses.Create(ctx, e, now); err != nil {
			return err
		}
		ids := make([]int64, 0, len(in.Tags))
		for _, name := range in.Tags {
			tag, err := ensureTag(ctx, r, name, now)
			if err != nil {
				return err
			}
			if err := r.ExpenseTags.Link(ctx, e.ID, tag.ID, now); err != nil {
				return err
			}
			ids = append(ids, tag.ID)
		}
		if err := applySpend(ctx, r, ids, e.Year, e.Month, e.Amount, now); err != nil {
			return err
		}
		return bumpEdges(ctx, r, ids, 1, now)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "expense added", "id", e.ID, "amount", e.Amount, "tags", len(in.Tags))
	return e, nil
}

// UpdateExpense edits title, amount and date. Tag links are kept; tag totals
// and targets follow the amount and period change.
func (s *LedgerService) UpdateExpense(ctx context.Context, id int64, in ExpenseInput) (*models.Expense, error) {
	now := s.now()
	if err := normalizeExpense(&in, now); err != nil {
		return nil, err
	}

	var updated *models.Expense
	err := s.mutate(ctx, func(ctx context.Context, r *client.Repositories) error {
		old, err := r.Expenses.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if old.SyncOperation == models.SyncDelete {
			return common.ErrNotFound
		}
		ids, err := linkedTags(ctx, r, id)
		if err != nil {
			return err
		}

		e := *old
		e.Title, e.Amount, e.Year, e.Month, e.Date = in.Title, in.Amount, in.Year, in.Month, in.Date
		if err := r.Expenses.Update(ctx, &e, now); err != nil {
			return err
		}

		if old.Year == e.Year && old.Month == e.Month {
			if delta := e.Amount - old.Amount; delta != 0 {
				if err := applySpend(ctx, r, ids, e.Year, e.Month, delta, now); err != nil {
					return err
				}
			}
		} else {
			if err := applySpend(ctx, r, ids, old.Year, old.Month, -old.Amount, now); err != nil {
				return err
			}
			if err := applySpend(ctx, r, ids, e.Year, e.Month, e.Amount, now); err != nil {
				return err
			}
		}
		updated = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteExpense removes the expense and its links and reverses its effect on
// tag totals, targets and co-occurrence edges.
func (s *LedgerService) DeleteExpense(ctx context.Context, id int64) error {
	now := s.now()
	return s.mutate(ctx, func(ctx context.Context, r *client.Repositories) error {
		e, err := r.Expenses.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if e.SyncOperation == models.SyncDelete {
			return common.ErrNotFound
		}
		ids, err := linkedTags(ctx, r, id)
		if err != nil {
			return err
		}
		for _, tagID := range ids {
			if _, err := r.ExpenseTags.Unlink(ctx, id, tagID, now); err != nil {
				return err
			}
		}
		if err := applySpend(ctx, r, ids, e.Year, e.Month, -e.Amount, now); err != nil {
			return err
		}
		if err := bumpEdges(ctx, r, ids, -1, now); err != nil {
			return err
		}
		_, err = r.Expenses.Delete(ctx, id, now)
		return err
	})
}

func (s *LedgerService) AddTag(ctx context.Context, name string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: tag name is empty", common.ErrValidation)
	}
	now := s.now()
	tag := &models.Tag{Name: name}
	err := s.mutate(ctx, func(ctx context.Context, r *client.Repositories) error {
		if _, err := r.Tags.GetByName(ctx, name); err == nil {
			return fmt.Errorf("%w: %s", ErrTagExists, name)
		} else if !errors.Is(err, common.ErrNotFound) {
			return err
		}
		return r.Tags.Create(ctx, tag, now)
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

func (s *LedgerService) RenameTag(ctx context.Context, oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return fmt.Errorf("%w: tag name is empty", common.ErrValidation)
	}
	now := s.now()
	return s.mutate(ctx, func(ctx context.Context, r *client.Repositories) error {
		tag, err := r.Tags.GetByName(ctx, strings.TrimSpace(oldName))
		if err != nil {
			return err
		}
		if _, err := r.Tags.GetByName(ctx, newName); err == nil {
			return fmt.Errorf("%w: %s", ErrTagExists, newName)
		} else if !errors.Is(err, common.ErrNotFound) {
			return err
		}
		return r.Tags.Rename(ctx, tag.ID, newName, now)
	})
}

// DeleteTag removes the tag with its links, edges and targets.
func (s *LedgerService) DeleteTag(ctx context.Context, name string) error {
	now := s.now()
	return s.mutate(ctx, func(ctx context.Context, r *client.Repositories) error {
		tag, err := r.Tags.GetByName(ctx, strings.TrimSpace(name))
		if err != nil {
			return err
		}

		links, err := r.ExpenseTags.ListByTag(ctx, tag.ID)
		if err != nil {
			return err
		}
		for _, l := range links {
			if _, err := r.ExpenseTags.Unlink(ctx, l.ExpenseID, l.TagID, now); err != nil {
				return err
			}
		}

		edges, err := r.GraphEdges.ListTouching(ctx, tag.ID)
		if err != nil {
			return err
		}
		for _, g := range edges {
			if _, err := r.GraphEdges.Delete(ctx, g.FromTagID, g.ToTagID, now); err != nil {
				return err
			}
		}

		targets, err := r.Targets.ListByTag(ctx, tag.ID)
		if err != nil {
			return err
		}
		for _, t := range targets {
			if _, err := r.Targets.Delete(ctx, t.Month, t.Year, t.TagID, now); err != nil {
				return err
			}
		}

		_, err = r.Tags.Delete(ctx, tag.ID, now)
		return err
	})
}

// SetTarget creates or changes the goal for a tag in one month. A new target
// starts from what the tag has already accumulated in that month.
func (s *LedgerService) SetTarget(ctx context.Context, tagName string, year, month int, amount int64) (*models.Target, error) {
	if err := validPeriod(year, month); err != nil {
		return nil, err
	}
	if amount < 0 {
		return nil, fmt.Errorf("%w: target amount must not be negative", common.ErrValidation)
	}
	now := s.now()
	var target *models.Target
	err := s.mutate(ctx, func(ctx context.Context, r *client.Repositories) error {
		tag, err := r.Tags.GetByName(ctx, strings.TrimSpace(tagName))
		if err != nil {
			return err
		}
		target = &models.Target{Month: month, Year: year, TagID: tag.ID, Amount: amount}
		if tag.CurrentYear == year && tag.CurrentMonth == month {
			target.Spent = tag.MonthlyAmount
		}
		return r.Targets.Set(ctx, target, now)
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}

func (s *LedgerService) DeleteTarget(ctx context.Context, tagName string, year, month int) error {
	now := s.now()
	return s.mutate(ctx, func(ctx context.Context, r *client.Repositories) error {
		tag, err := r.Tags.GetByName(ctx, strings.TrimSpace(tagName))
		if err != nil {
			return err
		}
		_, err = r.Targets.Delete(ctx, month, year, tag.ID, now)
		return err
	})
}

// ListExpenses returns live expenses of one period, or all of them when year
// and month are zero.
func (s *LedgerService) ListExpenses(ctx context.Context, year, month int) ([]ExpenseView, error) {
	r := client.NewRepositories(s.db)
	list, err := r.Expenses.List(ctx, year, month)
	if err != nil {
		return nil, err
	}
	names := map[int64]string{}
	out := make([]ExpenseView, 0, len(list))
	for _, e := range list {
		ids, err := linkedTags(ctx, r, e.ID)
		if err != nil {
			return nil, err
		}
		v := ExpenseView{Expense: e}
		for _, id := range ids {
			name, ok := names[id]
			if !ok {
				tag, err := r.Tags.GetByID(ctx, id)
				if errors.Is(err, common.ErrNotFound) {
					continue
				}
				if err != nil {
					return nil, err
				}
				name = tag.Name
				names[id] = name
			}
			v.Tags = append(v.Tags, name)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *LedgerService) ListTags(ctx context.Context) ([]*models.Tag, error) {
	return client.NewRepositories(s.db).Tags.List(ctx)
}

func (s *LedgerService) ListTargets(ctx context.Context, year, month int) ([]*models.Target, error) {
	return client.NewRepositories(s.db).Targets.List(ctx, year, month)
}

// Pending counts outbox rows across every entity.
func (s *LedgerService) Pending(ctx context.Context) (int64, error) {
	return client.NewRepositories(s.db).CountPending(ctx)
}

// mutate runs fn in one transaction and moves the pending gauge by the
// number of outbox rows the transaction armed or cleared.
func (s *LedgerService) mutate(ctx context.Context, fn func(ctx context.Context, r *client.Repositories) error) error {
	var delta int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		r := client.NewRepositories(tx)
		before, err := r.CountPending(ctx)
		if err != nil {
			return err
		}
		if err := fn(ctx, r); err != nil {
			return err
		}
		after, err := r.CountPending(ctx)
		if err != nil {
			return err
		}
		delta = after - before
		return nil
	})
	if err != nil {
		return err
	}
	if s.state != nil && delta != 0 {
		s.state.AddPending(delta)
	}
	return nil
}

func normalizeExpense(in *ExpenseInput, now time.Time) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("%w: title is empty", common.ErrValidation)
	}
	if in.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", common.ErrValidation)
	}
	if in.Year == 0 {
		in.Year = now.Year()
	}
	if in.Month == 0 {
		in.Month = int(now.Month())
	}
	if in.Date == 0 {
		in.Date = now.Day()
	}
	if err := validPeriod(in.Year, in.Month); err != nil {
		return err
	}
	if in.Date < 1 || in.Date > 31 {
		return fmt.Errorf("%w: day %d out of range", common.ErrValidation, in.Date)
	}

	seen := make(map[string]bool, len(in.Tags))
	tags := in.Tags[:0:0]
	for _, t := range in.Tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	in.Tags = tags
	return nil
}

func validPeriod(year, month int) error {
	if year < 1 {
		return fmt.Errorf("%w: year %d out of range", common.ErrValidation, year)
	}
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: month %d out of range", common.ErrValidation, month)
	}
	return nil
}

func ensureTag(ctx context.Context, r *client.Repositories, name string, now time.Time) (*models.Tag, error) {
	tag, err := r.Tags.GetByName(ctx, name)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	tag = &models.Tag{Name: name}
	if err := r.Tags.Create(ctx, tag, now); err != nil {
		return nil, err
	}
	return tag, nil
}

func linkedTags(ctx context.Context, r *client.Repositories, expenseID int64) ([]int64, error) {
	links, err := r.ExpenseTags.ListByExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.TagID)
	}
	slices.Sort(ids)
	return ids, nil
}

// applySpend moves tag monthly totals and any matching target by delta.
func applySpend(ctx context.Context, r *client.Repositories, tagIDs []int64, year, month int, delta int64, now time.Time) error {
	for _, id := range tagIDs {
		if err := r.Tags.AddMonthlyAmount(ctx, id, year, month, delta, now); err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		if err := r.Targets.AddSpent(ctx, month, year, id, delta, now); err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
	}
	return nil
}

// bumpEdges changes the co-occurrence weight of every ordered tag pair.
func bumpEdges(ctx context.Context, r *client.Repositories, tagIDs []int64, delta int64, now time.Time) error {
	for _, a := range tagIDs {
		for _, b := range tagIDs {
			if a == b {
				continue
			}
			if err := r.GraphEdges.Bump(ctx, a, b, delta, now); err != nil {
				return err
			}
		}
	}
	return nil
}
