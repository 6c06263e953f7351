package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Expense struct {
	ID     int64
	Title  string
	Amount int64
	Year   int
	Month  int
	Date   int
	SyncMeta
}

func (e *Expense) ClientID() string { return strconv.FormatInt(e.ID, 10) }
func (e *Expense) Sync() *SyncMeta  { return &e.SyncMeta }

// Tag is a spending category. MonthlyAmount accumulates the expenses tagged
// with it during CurrentMonth/CurrentYear.
type Tag struct {
	ID            int64
	Name          string
	MonthlyAmount int64
	CurrentMonth  int
	CurrentYear   int
	CreatedDay    int
	CreatedMonth  int
	CreatedYear   int
	SyncMeta
}

func (t *Tag) ClientID() string { return strconv.FormatInt(t.ID, 10) }
func (t *Tag) Sync() *SyncMeta  { return &t.SyncMeta }

// Target is a monthly spending goal for one tag, keyed by (month, year, tag).
type Target struct {
	Month  int
	Year   int
	TagID  int64
	Amount int64
	Spent  int64
	SyncMeta
}

func (t *Target) ClientID() string { return fmt.Sprintf("%d-%d-%d", t.Month, t.Year, t.TagID) }
func (t *Target) Sync() *SyncMeta  { return &t.SyncMeta }

type ExpenseTag struct {
	ExpenseID int64
	TagID     int64
	SyncMeta
}

func (l *ExpenseTag) ClientID() string { return fmt.Sprintf("%d-%d", l.ExpenseID, l.TagID) }
func (l *ExpenseTag) Sync() *SyncMeta  { return &l.SyncMeta }

// GraphEdge counts how often two tags were used on the same expense.
type GraphEdge struct {
	FromTagID int64
	ToTagID   int64
	Weight    int64
	SyncMeta
}

func (g *GraphEdge) ClientID() string { return fmt.Sprintf("%d-%d", g.FromTagID, g.ToTagID) }
func (g *GraphEdge) Sync() *SyncMeta  { return &g.SyncMeta }

var ErrInvalidClientID = errors.New("invalid client id")

// ParseID parses a single-column client id.
func ParseID(clientID string) (int64, error) {
	id, err := strconv.ParseInt(clientID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidClientID, clientID, err)
	}
	return id, nil
}

// ParseCompositeID splits a composite client id into exactly n integers.
func ParseCompositeID(clientID string, n int) ([]int64, error) {
	parts := strings.Split(clientID, "-")
	if len(parts) != n {
		return nil, fmt.Errorf("%w %q: want %d parts", ErrInvalidClientID, clientID, n)
	}
	out := make([]int64, n)
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidClientID, clientID, err)
		}
		out[i] = v
	}
	return out, nil
}
