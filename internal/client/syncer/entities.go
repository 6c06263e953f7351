package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/financehub/internal/client/client"
	"github.com/dmitrijs2005/financehub/internal/client/models"
	"github.com/dmitrijs2005/financehub/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/financehub/internal/common"
	pb "github.com/dmitrijs2005/financehub/internal/proto"
)

func decodePayload[P any](rec *pb.Record) (P, error) {
	var p P
	if len(rec.Payload) == 0 {
		if rec.Deleted {
			return p, nil
		}
		return p, errors.New("empty payload")
	}
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

// aliases keeps, in the metadata table, which local record absorbed a
// remote duplicate.
type aliases struct {
	meta metadata.Repository
}

func aliasKey(entity pb.Entity, serverID string) string {
	return "alias/" + string(entity) + "/" + serverID
}

func (a aliases) set(ctx context.Context, entity pb.Entity, serverID, clientID string) error {
	return a.meta.Set(ctx, aliasKey(entity, serverID), clientID)
}

func (a aliases) lookup(ctx context.Context, entity pb.Entity, serverID string) (string, bool, error) {
	return a.meta.Get(ctx, aliasKey(entity, serverID))
}

func (a aliases) drop(ctx context.Context, entity pb.Entity, serverID string) error {
	return a.meta.Delete(ctx, aliasKey(entity, serverID))
}

// refs translates references between this device's ids and server ids.
type refs struct {
	repos   *client.Repositories
	aliases aliases
}

// tagServerID returns the server id of a referenced tag. A tag still waiting
// for its first acknowledgement yields errAwaitingReference; a tag that is
// gone yields an empty id.
func (r refs) tagServerID(ctx context.Context, id int64) (string, error) {
	t, err := r.repos.Tags.GetByID(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !t.Pushed() {
		return "", fmt.Errorf("%w: tag %d", errAwaitingReference, id)
	}
	return t.ServerID, nil
}

func (r refs) expenseServerID(ctx context.Context, id int64) (string, error) {
	e, err := r.repos.Expenses.GetByID(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !e.Pushed() {
		return "", fmt.Errorf("%w: expense %d", errAwaitingReference, id)
	}
	return e.ServerID, nil
}

// localTag maps a pulled tag reference to a local id. References from this
// device are already local; others must resolve through the server id.
func (r refs) localTag(ctx context.Context, localRef, serverRef string, own bool) (int64, error) {
	if own {
		return models.ParseID(localRef)
	}
	if serverRef == "" {
		return 0, fmt.Errorf("%w: tag %s has no server id", errUnresolved, localRef)
	}
	t, err := r.repos.Tags.GetByServerID(ctx, serverRef)
	if err == nil {
		return t.ID, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return 0, err
	}
	local, ok, err := r.aliases.lookup(ctx, pb.EntityTag, serverRef)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: tag %s", errUnresolved, serverRef)
	}
	return models.ParseID(local)
}

func (r refs) localExpense(ctx context.Context, localRef, serverRef string, own bool) (int64, error) {
	if own {
		return models.ParseID(localRef)
	}
	if serverRef == "" {
		return 0, fmt.Errorf("%w: expense %s has no server id", errUnresolved, localRef)
	}
	e, err := r.repos.Expenses.GetByServerID(ctx, serverRef)
	if errors.Is(err, common.ErrNotFound) {
		return 0, fmt.Errorf("%w: expense %s", errUnresolved, serverRef)
	}
	if err != nil {
		return 0, err
	}
	return e.ID, nil
}

// newEntitySyncers builds the adapters in push order.
func newEntitySyncers(repos *client.Repositories) []entitySyncer {
	al := aliases{meta: repos.Metadata}
	r := refs{repos: repos, aliases: al}

	expenses := &entitySync[*models.Expense]{
		entity:    pb.EntityExpense,
		store:     repos.Expenses,
		updatable: true,
		encode: func(_ context.Context, e *models.Expense) (any, error) {
			return pb.ExpensePayload{Title: e.Title, Amount: e.Amount, Year: e.Year, Month: e.Month, Date: e.Date}, nil
		},
		decode: func(_ context.Context, rec *pb.Record, _ bool) (*models.Expense, error) {
			p, err := decodePayload[pb.ExpensePayload](rec)
			if err != nil {
				return nil, err
			}
			// ID stays zero: a new local id is assigned on insert.
			return &models.Expense{Title: p.Title, Amount: p.Amount, Year: p.Year, Month: p.Month, Date: p.Date}, nil
		},
	}

	tags := &entitySync[*models.Tag]{
		entity:    pb.EntityTag,
		store:     repos.Tags,
		updatable: true,
		encode: func(_ context.Context, t *models.Tag) (any, error) {
			return pb.TagPayload{
				Name: t.Name, MonthlyAmount: t.MonthlyAmount,
				CurrentMonth: t.CurrentMonth, CurrentYear: t.CurrentYear,
				CreatedDay: t.CreatedDay, CreatedMonth: t.CreatedMonth, CreatedYear: t.CreatedYear,
			}, nil
		},
		decode: func(_ context.Context, rec *pb.Record, _ bool) (*models.Tag, error) {
			p, err := decodePayload[pb.TagPayload](rec)
			if err != nil {
				return nil, err
			}
			return &models.Tag{
				Name: p.Name, MonthlyAmount: p.MonthlyAmount,
				CurrentMonth: p.CurrentMonth, CurrentYear: p.CurrentYear,
				CreatedDay: p.CreatedDay, CreatedMonth: p.CreatedMonth, CreatedYear: p.CreatedYear,
			}, nil
		},
		// Live tag names are unique: another device's tag with a name this
		// device already uses is the same category.
		claim: func(ctx context.Context, t *models.Tag) (*models.Tag, bool, error) {
			local, err := repos.Tags.GetByName(ctx, t.Name)
			if errors.Is(err, common.ErrNotFound) {
				return nil, false, nil
			}
			if err != nil {
				return nil, false, err
			}
			return local, true, nil
		},
		aliases: al,
	}

	targets := &entitySync[*models.Target]{
		entity:    pb.EntityTarget,
		store:     repos.Targets,
		updatable: true,
		encode: func(ctx context.Context, t *models.Target) (any, error) {
			tagServerID, err := r.tagServerID(ctx, t.TagID)
			if err != nil {
				return nil, err
			}
			return pb.TargetPayload{
				Month: t.Month, Year: t.Year,
				TagID: formatID(t.TagID), TagServerID: tagServerID,
				Amount: t.Amount, Spent: t.Spent,
			}, nil
		},
		decode: func(ctx context.Context, rec *pb.Record, own bool) (*models.Target, error) {
			p, err := decodePayload[pb.TargetPayload](rec)
			if err != nil {
				return nil, err
			}
			tagID, err := r.localTag(ctx, p.TagID, p.TagServerID, own)
			if err != nil {
				return nil, err
			}
			return &models.Target{Month: p.Month, Year: p.Year, TagID: tagID, Amount: p.Amount, Spent: p.Spent}, nil
		},
	}

	links := &entitySync[*models.ExpenseTag]{
		entity: pb.EntityExpenseTag,
		store:  repos.ExpenseTags,
		encode: func(ctx context.Context, l *models.ExpenseTag) (any, error) {
			expenseServerID, err := r.expenseServerID(ctx, l.ExpenseID)
			if err != nil {
				return nil, err
			}
			tagServerID, err := r.tagServerID(ctx, l.TagID)
			if err != nil {
				return nil, err
			}
			return pb.ExpenseTagPayload{
				ExpenseID: formatID(l.ExpenseID), ExpenseServerID: expenseServerID,
				TagID: formatID(l.TagID), TagServerID: tagServerID,
			}, nil
		},
		decode: func(ctx context.Context, rec *pb.Record, own bool) (*models.ExpenseTag, error) {
			p, err := decodePayload[pb.ExpenseTagPayload](rec)
			if err != nil {
				return nil, err
			}
			expenseID, err := r.localExpense(ctx, p.ExpenseID, p.ExpenseServerID, own)
			if err != nil {
				return nil, err
			}
			tagID, err := r.localTag(ctx, p.TagID, p.TagServerID, own)
			if err != nil {
				return nil, err
			}
			return &models.ExpenseTag{ExpenseID: expenseID, TagID: tagID}, nil
		},
	}

	edges := &entitySync[*models.GraphEdge]{
		entity:    pb.EntityGraphEdge,
		store:     repos.GraphEdges,
		updatable: true,
		encode: func(ctx context.Context, g *models.GraphEdge) (any, error) {
			from, err := r.tagServerID(ctx, g.FromTagID)
			if err != nil {
				return nil, err
			}
			to, err := r.tagServerID(ctx, g.ToTagID)
			if err != nil {
				return nil, err
			}
			return pb.GraphEdgePayload{
				FromTagID: formatID(g.FromTagID), FromServerID: from,
				ToTagID: formatID(g.ToTagID), ToServerID: to,
				Weight: g.Weight,
			}, nil
		},
		decode: func(ctx context.Context, rec *pb.Record, own bool) (*models.GraphEdge, error) {
			p, err := decodePayload[pb.GraphEdgePayload](rec)
			if err != nil {
				return nil, err
			}
			from, err := r.localTag(ctx, p.FromTagID, p.FromServerID, own)
			if err != nil {
				return nil, err
			}
			to, err := r.localTag(ctx, p.ToTagID, p.ToServerID, own)
			if err != nil {
				return nil, err
			}
			return &models.GraphEdge{FromTagID: from, ToTagID: to, Weight: p.Weight}, nil
		},
	}

	return []entitySyncer{expenses, tags, targets, links, edges}
}
