package syncer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/financehub/internal/client/client"
	"github.com/dmitrijs2005/financehub/internal/client/connectivity"
	"github.com/dmitrijs2005/financehub/internal/client/migrations"
	"github.com/dmitrijs2005/financehub/internal/client/models"
	"github.com/dmitrijs2005/financehub/internal/common"
	"github.com/dmitrijs2005/financehub/internal/metrics"
	pb "github.com/dmitrijs2005/financehub/internal/proto"
	"github.com/dmitrijs2005/financehub/internal/timex"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

const deviceID = "dev-A"

var t0 = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type env struct {
	ctx     context.Context
	repos   *client.Repositories
	remote  *fakeRemote
	state   *connectivity.State
	wm      *connectivity.WatermarkStore
	clock   *clock
	metrics *metrics.SyncMetrics
	engine  *Engine
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))

	e := &env{
		ctx:     context.Background(),
		repos:   client.NewRepositories(db),
		remote:  newFakeRemote(),
		state:   connectivity.NewState(),
		clock:   &clock{t: t0.Add(time.Hour)},
		metrics: metrics.NewSyncMetrics(prometheus.NewRegistry()),
	}
	e.wm = connectivity.NewWatermarkStore(e.repos.Metadata)
	e.state.UpdateNetworkMembership(true)
	e.state.UpdateReachability(true)

	if cfg.DeviceID == "" {
		cfg.DeviceID = deviceID
	}
	e.engine = NewEngine(e.remote, e.repos, e.wm, e.state, cfg, WithClock(e.clock.Now), WithMetrics(e.metrics))
	return e
}

func (e *env) sync(t *testing.T) *Summary {
	t.Helper()
	sum, err := e.engine.PerformFullSync(e.ctx)
	require.NoError(t, err)
	return sum
}

func (e *env) expense(t *testing.T, id int64) *models.Expense {
	t.Helper()
	got, err := e.repos.Expenses.GetByID(e.ctx, id)
	require.NoError(t, err)
	return got
}

func ms(t time.Time) int64 { return timex.ToMillis(t) }

func TestCoffeeScenario(t *testing.T) {
	e := newEnv(t, Config{})

	coffee := &models.Expense{Title: "Coffee", Amount: 500, Year: 2024, Month: 3, Date: 10}
	require.NoError(t, e.repos.Expenses.Create(e.ctx, coffee, t0))
	got := e.expense(t, coffee.ID)
	assert.True(t, got.PendingSync)
	assert.Equal(t, models.SyncCreate, got.SyncOperation)
	assert.Empty(t, got.ServerID)

	sum := e.sync(t)
	assert.Equal(t, 1, sum.Pushed)
	got = e.expense(t, coffee.ID)
	assert.False(t, got.PendingSync)
	assert.Equal(t, models.SyncNone, got.SyncOperation)
	require.NotEmpty(t, got.ServerID)
	serverID := got.ServerID

	// Edited offline.
	got.Amount = 600
	require.NoError(t, e.repos.Expenses.Update(e.ctx, got, t0.Add(time.Hour)))
	got = e.expense(t, coffee.ID)
	assert.True(t, got.PendingSync)
	assert.Equal(t, models.SyncUpdate, got.SyncOperation)

	// Another device wrote an older version, and this device's push is
	// turned away once, so the pull sees the remote copy while local is
	// still dirty.
	e.remote.edit(serverID, "dev-B",
		pb.ExpensePayload{Title: "Coffee", Amount: 550, Year: 2024, Month: 3, Date: 10},
		ms(t0.Add(30*time.Minute)))
	e.remote.reject[coffee.ClientID()] = "try later"

	sum = e.sync(t)
	require.Len(t, sum.Rejected, 1)
	assert.Equal(t, Rejection{Entity: pb.EntityExpense, ClientID: coffee.ClientID(), Reason: "try later"}, sum.Rejected[0])
	assert.Equal(t, 1, sum.Kept)

	got = e.expense(t, coffee.ID)
	assert.Equal(t, int64(600), got.Amount, "local pending change wins")
	assert.True(t, got.PendingSync)
	assert.Equal(t, models.SyncUpdate, got.SyncOperation)

	delete(e.remote.reject, coffee.ClientID())
	sum = e.sync(t)
	assert.Equal(t, 1, sum.Pushed)

	var p pb.ExpensePayload
	recs := e.remote.live(pb.EntityExpense)
	require.Len(t, recs, 1)
	require.NoError(t, json.Unmarshal(recs[0].Payload, &p))
	assert.Equal(t, int64(600), p.Amount, "next push overwrote the server copy")
	assert.False(t, e.expense(t, coffee.ID).PendingSync)
}

func TestPush_LostAckDoesNotDuplicate(t *testing.T) {
	e := newEnv(t, Config{})

	x := &models.Expense{Title: "Rent", Amount: 90000, Year: 2024, Month: 3, Date: 1}
	require.NoError(t, e.repos.Expenses.Create(e.ctx, x, t0))

	e.remote.failAfterApply = true
	_, err := e.engine.PerformFullSync(e.ctx)
	require.Error(t, err)
	var se *SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindTransient, se.Kind)
	assert.Equal(t, PhasePush, se.Phase)
	assert.True(t, se.Retryable())
	assert.Equal(t, connectivity.PhaseError, e.state.Snapshot().Phase)

	got := e.expense(t, x.ID)
	assert.True(t, got.PendingSync)
	assert.Empty(t, got.ServerID)

	e.sync(t)
	recs := e.remote.live(pb.EntityExpense)
	require.Len(t, recs, 1, "re-sent CREATE is an upsert")
	assert.Equal(t, recs[0].ID, e.expense(t, x.ID).ServerID)
	assert.Equal(t, connectivity.PhaseIdle, e.state.Snapshot().Phase)
}

func TestPush_CreateWithBoundServerIDIsSentAsUpdate(t *testing.T) {
	e := newEnv(t, Config{})

	x := &models.Expense{Title: "Tea", Amount: 300, Year: 2024, Month: 3, Date: 2}
	require.NoError(t, e.repos.Expenses.Create(e.ctx, x, t0))
	e.sync(t)
	serverID := e.expense(t, x.ID).ServerID

	require.NoError(t, e.repos.Expenses.MarkPending(e.ctx, x.ClientID(), models.SyncCreate, t0.Add(time.Minute)))
	e.sync(t)

	batches := e.remote.batchesFor(pb.EntityExpense)
	require.Len(t, batches, 2)
	op := batches[1].Operations[0]
	assert.Equal(t, pb.OpUpdate, op.Op)
	assert.Equal(t, serverID, op.ServerID)
	assert.Len(t, e.remote.live(pb.EntityExpense), 1)
}

func TestPush_MutationDuringPushStaysPending(t *testing.T) {
	e := newEnv(t, Config{})

	x := &models.Expense{Title: "Lunch", Amount: 1200, Year: 2024, Month: 3, Date: 3}
	require.NoError(t, e.repos.Expenses.Create(e.ctx, x, t0))

	e.remote.onBatch = func() {
		edited := *x
		edited.Amount = 1300
		require.NoError(t, e.repos.Expenses.Update(e.ctx, &edited, t0.Add(time.Minute)))
	}
	e.sync(t)

	got := e.expense(t, x.ID)
	assert.Equal(t, int64(1300), got.Amount)
	assert.True(t, got.PendingSync, "the newer edit is not acknowledged by the older push")
	assert.NotEmpty(t, got.ServerID)

	e.sync(t)
	batches := e.remote.batchesFor(pb.EntityExpense)
	assert.Equal(t, pb.OpUpdate, batches[len(batches)-1].Operations[0].Op)
	assert.False(t, e.expense(t, x.ID).PendingSync)
}

func TestPush_PartialBatchFailure(t *testing.T) {
	e := newEnv(t, Config{})

	var ids []int64
	for i := 0; i < 3; i++ {
		x := &models.Expense{Title: fmt.Sprintf("item %d", i), Amount: 100, Year: 2024, Month: 3, Date: 5}
		require.NoError(t, e.repos.Expenses.Create(e.ctx, x, t0))
		ids = append(ids, x.ID)
	}
	e.remote.reject[fmt.Sprint(ids[1])] = "amount rejected"

	sum := e.sync(t)
	assert.Equal(t, 2, sum.Pushed)
	require.Len(t, sum.Rejected, 1)
	assert.Equal(t, fmt.Sprint(ids[1]), sum.Rejected[0].ClientID)

	assert.False(t, e.expense(t, ids[0]).PendingSync)
	assert.True(t, e.expense(t, ids[1]).PendingSync)
	assert.False(t, e.expense(t, ids[2]).PendingSync)
	assert.Equal(t, int64(1), e.state.Snapshot().Pending)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.ItemsRejected.WithLabelValues("expense")))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.ItemsPushed.WithLabelValues("expense")))
}

func TestPush_BatchesOfConfiguredSize(t *testing.T) {
	e := newEnv(t, Config{})

	for i := 0; i < 120; i++ {
		x := &models.Expense{Title: "bulk", Amount: int64(i), Year: 2024, Month: 3, Date: 6}
		require.NoError(t, e.repos.Expenses.Create(e.ctx, x, t0))
	}
	sum := e.sync(t)
	assert.Equal(t, 120, sum.Pushed)

	var sizes []int
	for _, b := range e.remote.batchesFor(pb.EntityExpense) {
		sizes = append(sizes, len(b.Operations))
		assert.Equal(t, deviceID, b.DeviceID)
	}
	assert.Equal(t, []int{50, 50, 20}, sizes)
}

func TestPush_TombstoneIsPurgedAfterAck(t *testing.T) {
	e := newEnv(t, Config{})

	x := &models.Expense{Title: "Gym", Amount: 3000, Year: 2024, Month: 3, Date: 7}
	require.NoError(t, e.repos.Expenses.Create(e.ctx, x, t0))
	e.sync(t)

	hard, err := e.repos.Expenses.Delete(e.ctx, x.ID, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, hard, "pushed records are tombstoned")

	e.sync(t)
	_, err = e.repos.Expenses.GetByID(e.ctx, x.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
	assert.Empty(t, e.remote.live(pb.EntityExpense))
}

func TestPush_LinkUpdateIsRejectedLocally(t *testing.T) {
	e := newEnv(t, Config{})

	x := &models.Expense{Title: "Taxi", Amount: 800, Year: 2024, Month: 3, Date: 8}
	require.NoError(t, e.repos.Expenses.Create(e.ctx, x, t0))
	tag := &models.Tag{Name: "Transport"}
	require.NoError(t, e.repos.Tags.Create(e.ctx, tag, t0))
	require.NoError(t, e.repos.ExpenseTags.Link(e.ctx, x.ID, tag.ID, t0))
	e.sync(t)

	key := fmt.Sprintf("%d-%d", x.ID, tag.ID)
	require.NoError(t, e.repos.ExpenseTags.MarkPending(e.ctx, key, models.SyncUpdate, t0.Add(time.Minute)))
	before := len(e.remote.batchesFor(pb.EntityExpenseTag))

	sum := e.sync(t)
	require.Len(t, sum.Rejected, 1)
	assert.Equal(t, pb.EntityExpenseTag, sum.Rejected[0].Entity)
	assert.Equal(t, key, sum.Rejected[0].ClientID)
	assert.Len(t, e.remote.batchesFor(pb.EntityExpenseTag), before, "never left the device")

	n, err := e.repos.ExpenseTags.CountPending(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPush_ReferencesCarryServerIDs(t *testing.T) {
	e := newEnv(t, Config{})

	x := &models.Expense{Title: "Taxi", Amount: 800, Year: 2024, Month: 3, Date: 8}
	require.NoError(t, e.repos.Expenses.Create(e.ctx, x, t0))
	tag := &models.Tag{Name: "Transport"}
	require.NoError(t, e.repos.Tags.Create(e.ctx, tag, t0))
	require.NoError(t, e.repos.ExpenseTags.Link(e.ctx, x.ID, tag.ID, t0))
	e.sync(t)

	links := e.remote.batchesFor(pb.EntityExpenseTag)
	require.Len(t, links, 1)
	var p pb.ExpenseTagPayload
	require.NoError(t, json.Unmarshal(links[0].Operations[0].Payload, &p))
	assert.Equal(t, e.expense(t, x.ID).ServerID, p.ExpenseServerID)
	gotTag, err := e.repos.Tags.GetByID(e.ctx, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, gotTag.ServerID, p.TagServerID)
}

func TestPull_InsertsForeignRecordsAndResolvesReferences(t *testing.T) {
	e := newEnv(t, Config{})

	local := &models.Expense{Title: "Coffee", Amount: 500, Year: 2024, Month: 3, Date: 10}
	require.NoError(t, e.repos.Expenses.Create(e.ctx, local, t0))
	localTag := &models.Tag{Name: "Cafe"}
	require.NoError(t, e.repos.Tags.Create(e.ctx, localTag, t0))

	updated := ms(t0.Add(10 * time.Minute))
	expID := e.remote.put(pb.EntityExpense, "dev-B", "1", pb.ExpensePayload{Title: "Lunch", Amount: 1500, Year: 2024, Month: 3, Date: 9}, updated)
	tagID := e.remote.put(pb.EntityTag, "dev-B", "1", pb.TagPayload{Name: "Food", MonthlyAmount: 1500, CurrentMonth: 3, CurrentYear: 2024}, updated)
	e.remote.put(pb.EntityExpenseTag, "dev-B", "1-1", pb.ExpenseTagPayload{ExpenseID: "1", ExpenseServerID: expID, TagID: "1", TagServerID: tagID}, updated)
	e.remote.put(pb.EntityExpenseTag, "dev-B", "1-9", pb.ExpenseTagPayload{ExpenseID: "1", ExpenseServerID: expID, TagID: "9", TagServerID: "srv-unknown"}, updated)

	sum := e.sync(t)
	assert.Equal(t, 3, sum.Pulled)
	assert.Equal(t, 1, sum.Deferred)
	parked, err := e.repos.Deferred.List(e.ctx, string(pb.EntityExpenseTag))
	require.NoError(t, err)
	require.Len(t, parked, 1)
	assert.Contains(t, parked[0].Reason, "srv-unknown")

	list, err := e.repos.Expenses.List(e.ctx, 2024, 3)
	require.NoError(t, err)
	require.Len(t, list, 2)

	lunch, err := e.repos.Expenses.GetByServerID(e.ctx, expID)
	require.NoError(t, err)
	assert.NotEqual(t, local.ID, lunch.ID, "foreign ids never collide with local ones")
	assert.Equal(t, "Lunch", lunch.Title)
	assert.False(t, lunch.PendingSync)
	assert.Equal(t, e.clock.Now(), lunch.LastSyncedAt)

	food, err := e.repos.Tags.GetByServerID(e.ctx, tagID)
	require.NoError(t, err)
	links, err := e.repos.ExpenseTags.ListByExpense(e.ctx, lunch.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, food.ID, links[0].TagID)

	stillMine := e.expense(t, local.ID)
	assert.Equal(t, "Coffee", stillMine.Title)
}

func TestPull_OwnEchoBindsInsteadOfDuplicating(t *testing.T) {
	e := newEnv(t, Config{})

	// Pushed by this device, acknowledgement lost, outbox already clear.
	x := &models.Expense{ID: 7, Title: "Books", Amount: 2500, Year: 2024, Month: 2, Date: 20,
		SyncMeta: models.SyncMeta{SyncOperation: models.SyncNone, CreatedAt: t0, UpdatedAt: t0}}
	require.NoError(t, e.repos.Expenses.Insert(e.ctx, x))

	srv := e.remote.put(pb.EntityExpense, deviceID, "7", pb.ExpensePayload{Title: "Books", Amount: 2500, Year: 2024, Month: 2, Date: 20}, ms(t0))

	e.sync(t)

	list, err := e.repos.Expenses.List(e.ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, srv, list[0].ServerID)
}

func TestPull_RemoteNewerOverwritesCleanRecord(t *testing.T) {
	e := newEnv(t, Config{})

	x := &models.Expense{Title: "Fuel", Amount: 4000, Year: 2024, Month: 3, Date: 4}
	require.NoError(t, e.repos.Expenses.Create(e.ctx, x, t0))
	e.sync(t)
	serverID := e.expense(t, x.ID).ServerID

	e.remote.edit(serverID, "dev-B", pb.ExpensePayload{Title: "Fuel", Amount: 4200, Year: 2024, Month: 3, Date: 4}, ms(t0.Add(2*time.Hour)))
	sum := e.sync(t)
	assert.Equal(t, 1, sum.Pulled)

	got := e.expense(t, x.ID)
	assert.Equal(t, int64(4200), got.Amount)
	assert.Equal(t, t0.Add(2*time.Hour), got.UpdatedAt)
	assert.False(t, got.PendingSync)

	// An older remote version changes nothing.
	e.remote.edit(serverID, "dev-B", pb.ExpensePayload{Title: "Fuel", Amount: 1, Year: 2024, Month: 3, Date: 4}, ms(t0.Add(time.Hour)))
	e.sync(t)
	assert.Equal(t, int64(4200), e.expense(t, x.ID).Amount)
}

func TestPull_RemoteDeletePropagates(t *testing.T) {
	e := newEnv(t, Config{})

	x := &models.Expense{Title: "Snacks", Amount: 250, Year: 2024, Month: 3, Date: 4}
	require.NoError(t, e.repos.Expenses.Create(e.ctx, x, t0))
	e.sync(t)

	e.remote.remove(e.expense(t, x.ID).ServerID, ms(t0.Add(time.Hour)))
	e.sync(t)

	_, err := e.repos.Expenses.GetByID(e.ctx, x.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func (e *env) linksOf(t *testing.T, expenseServerID string) []*models.ExpenseTag {
	t.Helper()
	x, err := e.repos.Expenses.GetByServerID(e.ctx, expenseServerID)
	require.NoError(t, err)
	links, err := e.repos.ExpenseTags.ListByExpense(e.ctx, x.ID)
	require.NoError(t, err)
	return links
}

func TestPull_DeferredLinkLandsWhenTagArrives(t *testing.T) {
	e := newEnv(t, Config{})
	updated := ms(t0.Add(10 * time.Minute))

	expID := e.remote.put(pb.EntityExpense, "dev-B", "1", pb.ExpensePayload{Title: "Lunch", Amount: 1500, Year: 2024, Month: 3, Date: 9}, updated)
	// The tag reaches the server only after the link that uses it.
	e.remote.put(pb.EntityExpenseTag, "dev-B", "1-4", pb.ExpenseTagPayload{ExpenseID: "1", ExpenseServerID: expID, TagID: "4", TagServerID: "srv-3"}, updated)

	sum := e.sync(t)
	assert.Equal(t, 1, sum.Deferred)
	assert.Empty(t, e.linksOf(t, expID))

	tagID := e.remote.put(pb.EntityTag, "dev-B", "4", pb.TagPayload{Name: "Food"}, updated)
	require.Equal(t, "srv-3", tagID)

	sum = e.sync(t)
	assert.Zero(t, sum.Deferred)
	links := e.linksOf(t, expID)
	require.Len(t, links, 1)
	food, err := e.repos.Tags.GetByServerID(e.ctx, tagID)
	require.NoError(t, err)
	assert.Equal(t, food.ID, links[0].TagID)

	n, err := e.repos.Deferred.Count(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPull_FullDeltaRecoversTagDroppedByRetention(t *testing.T) {
	e := newEnv(t, Config{})

	tagID := e.remote.put(pb.EntityTag, "dev-B", "4", pb.TagPayload{Name: "Food"}, ms(t0))
	e.sync(t)
	_, err := e.repos.Tags.GetByServerID(e.ctx, tagID)
	require.NoError(t, err)

	later := t0.Add(100 * 24 * time.Hour)
	e.clock.Set(later)
	sum := e.sync(t)
	require.Equal(t, int64(1), sum.Purged)
	_, err = e.repos.Tags.GetByServerID(e.ctx, tagID)
	require.ErrorIs(t, err, common.ErrNotFound)

	// Another device links to the tag this device no longer has.
	expID := e.remote.put(pb.EntityExpense, "dev-B", "1", pb.ExpensePayload{Title: "Lunch", Amount: 1500, Year: 2024, Month: 6, Date: 18}, ms(later))
	e.remote.put(pb.EntityExpenseTag, "dev-B", "1-4", pb.ExpenseTagPayload{ExpenseID: "1", ExpenseServerID: expID, TagID: "4", TagServerID: tagID}, ms(later))
	since, err := e.wm.LastSync(e.ctx)
	require.NoError(t, err)

	sum = e.sync(t)
	assert.Zero(t, sum.Deferred)
	assert.Equal(t, []int64{since, 0}, e.remote.pullSince[len(e.remote.pullSince)-2:])

	links := e.linksOf(t, expID)
	require.Len(t, links, 1)
	food, err := e.repos.Tags.GetByServerID(e.ctx, tagID)
	require.NoError(t, err, "the linked tag survives retention")
	assert.Equal(t, food.ID, links[0].TagID)

	// Nothing left waiting, so the next pass is incremental again.
	before := len(e.remote.pullSince)
	e.sync(t)
	assert.Len(t, e.remote.pullSince, before+1)
}

func TestPull_UnresolvedTombstoneIsNotDeferred(t *testing.T) {
	e := newEnv(t, Config{})

	id := e.remote.put(pb.EntityExpenseTag, "dev-B", "1-4", pb.ExpenseTagPayload{ExpenseID: "1", ExpenseServerID: "srv-x", TagID: "4", TagServerID: "srv-y"}, ms(t0))
	e.remote.remove(id, ms(t0.Add(time.Minute)))

	sum := e.sync(t)
	assert.Zero(t, sum.Deferred)
}

func TestPush_LinkWaitsForRejectedTag(t *testing.T) {
	e := newEnv(t, Config{})

	misc := &models.Tag{Name: "Misc"}
	require.NoError(t, e.repos.Tags.Create(e.ctx, misc, t0))
	tag := &models.Tag{Name: "Transport"}
	require.NoError(t, e.repos.Tags.Create(e.ctx, tag, t0))
	x := &models.Expense{Title: "Taxi", Amount: 800, Year: 2024, Month: 3, Date: 8}
	require.NoError(t, e.repos.Expenses.Create(e.ctx, x, t0))
	require.NoError(t, e.repos.ExpenseTags.Link(e.ctx, x.ID, tag.ID, t0))
	require.NotEqual(t, x.ClientID(), tag.ClientID())
	e.remote.reject[tag.ClientID()] = "try later"

	sum := e.sync(t)
	require.Len(t, sum.Rejected, 2)
	assert.Equal(t, pb.EntityExpenseTag, sum.Rejected[1].Entity)
	assert.Contains(t, sum.Rejected[1].Reason, "not pushed yet")
	assert.Empty(t, e.remote.batchesFor(pb.EntityExpenseTag), "no link with an empty tag reference")

	delete(e.remote.reject, tag.ClientID())
	e.sync(t)
	links := e.remote.batchesFor(pb.EntityExpenseTag)
	require.Len(t, links, 1)
	var p pb.ExpenseTagPayload
	require.NoError(t, json.Unmarshal(links[0].Operations[0].Payload, &p))
	got, err := e.repos.Tags.GetByID(e.ctx, tag.ID)
	require.NoError(t, err)
	require.NotEmpty(t, got.ServerID)
	assert.Equal(t, got.ServerID, p.TagServerID)
}

func TestPull_SameTagNameFromTwoDevicesMerges(t *testing.T) {
	e := newEnv(t, Config{})

	food := &models.Tag{Name: "Food"}
	require.NoError(t, e.repos.Tags.Create(e.ctx, food, t0))
	e.sync(t)
	local, err := e.repos.Tags.GetByID(e.ctx, food.ID)
	require.NoError(t, err)
	require.NotEmpty(t, local.ServerID)

	updated := ms(t0.Add(10 * time.Minute))
	theirs := e.remote.put(pb.EntityTag, "dev-B", "1", pb.TagPayload{Name: "Food"}, updated)
	expID := e.remote.put(pb.EntityExpense, "dev-B", "1", pb.ExpensePayload{Title: "Lunch", Amount: 1500, Year: 2024, Month: 3, Date: 9}, updated)
	e.remote.put(pb.EntityExpenseTag, "dev-B", "1-1", pb.ExpenseTagPayload{ExpenseID: "1", ExpenseServerID: expID, TagID: "1", TagServerID: theirs}, updated)

	sum := e.sync(t)
	assert.Zero(t, sum.Deferred)

	tags, err := e.repos.Tags.List(e.ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1, "one Food tag")
	assert.Equal(t, local.ServerID, tags[0].ServerID)

	links := e.linksOf(t, expID)
	require.Len(t, links, 1)
	assert.Equal(t, food.ID, links[0].TagID, "the link lands on the local tag")

	// The duplicate is deleted remotely; the local tag stays.
	e.remote.remove(theirs, ms(t0.Add(time.Hour)))
	e.sync(t)
	_, err = e.repos.Tags.GetByID(e.ctx, food.ID)
	require.NoError(t, err)
}

func TestPull_SameTagNameBindsUnpushedLocalTag(t *testing.T) {
	e := newEnv(t, Config{})

	food := &models.Tag{Name: "Food"}
	require.NoError(t, e.repos.Tags.Create(e.ctx, food, t0))
	e.remote.reject[food.ClientID()] = "try later"
	theirs := e.remote.put(pb.EntityTag, "dev-B", "1", pb.TagPayload{Name: "Food"}, ms(t0))

	e.sync(t)
	got, err := e.repos.Tags.GetByID(e.ctx, food.ID)
	require.NoError(t, err)
	assert.Equal(t, theirs, got.ServerID)
	assert.True(t, got.PendingSync)

	delete(e.remote.reject, food.ClientID())
	e.sync(t)
	batches := e.remote.batchesFor(pb.EntityTag)
	op := batches[len(batches)-1].Operations[0]
	assert.Equal(t, pb.OpUpdate, op.Op)
	assert.Equal(t, theirs, op.ServerID)
	assert.Len(t, e.remote.live(pb.EntityTag), 1)
}

func TestPull_RemoteRenameOntoLocalNameKeepsLocal(t *testing.T) {
	e := newEnv(t, Config{})

	food := &models.Tag{Name: "Food"}
	require.NoError(t, e.repos.Tags.Create(e.ctx, food, t0))
	groceries := e.remote.put(pb.EntityTag, "dev-B", "1", pb.TagPayload{Name: "Groceries"}, ms(t0))
	e.sync(t)

	e.remote.edit(groceries, "dev-B", pb.TagPayload{Name: "Food"}, ms(t0.Add(time.Hour)))
	sum := e.sync(t)
	assert.Equal(t, 1, sum.Kept)

	got, err := e.repos.Tags.GetByServerID(e.ctx, groceries)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Name)
}

func TestPull_FailureLeavesWatermark(t *testing.T) {
	e := newEnv(t, Config{})

	e.remote.put(pb.EntityTag, "dev-B", "1", pb.TagPayload{Name: "Food"}, ms(t0))
	e.sync(t)
	before, err := e.wm.LastSync(e.ctx)
	require.NoError(t, err)
	require.NotZero(t, before)

	e.remote.put(pb.EntityTag, "dev-B", "2", pb.TagPayload{Name: "Rent"}, ms(t0))
	e.remote.extra[pb.EntityExpense] = []*pb.Record{{ID: "srv-bad", DeviceID: "dev-B", ClientID: "5", Payload: json.RawMessage(`{"amount":`)}}

	_, err = e.engine.PerformFullSync(e.ctx)
	var se *SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindPullApply, se.Kind)
	assert.Equal(t, PhasePull, se.Phase)

	after, err := e.wm.LastSync(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	delete(e.remote.extra, pb.EntityExpense)
	sum := e.sync(t)
	assert.Greater(t, sum.Watermark, before)
	assert.Equal(t, []int64{0, before, before}, e.remote.pullSince, "the failed window is fetched again")
}

func TestPull_MissingServerTimeIsMalformed(t *testing.T) {
	e := newEnv(t, Config{})
	e.remote.clock = 0

	_, err := e.engine.PerformFullSync(e.ctx)
	var se *SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindPullApply, se.Kind)
}

func TestRetention_SparesPendingTombstones(t *testing.T) {
	e := newEnv(t, Config{})

	old := &models.Expense{Title: "Old", Amount: 1, Year: 2023, Month: 11, Date: 1}
	require.NoError(t, e.repos.Expenses.Create(e.ctx, old, t0))
	gone := &models.Expense{Title: "Gone", Amount: 2, Year: 2023, Month: 11, Date: 2}
	require.NoError(t, e.repos.Expenses.Create(e.ctx, gone, t0))
	e.sync(t)

	_, err := e.repos.Expenses.Delete(e.ctx, gone.ID, t0.Add(time.Minute))
	require.NoError(t, err)
	e.remote.reject[gone.ClientID()] = "maintenance"

	e.clock.Set(t0.Add(100 * 24 * time.Hour))
	sum := e.sync(t)
	assert.Equal(t, int64(1), sum.Purged)

	_, err = e.repos.Expenses.GetByID(e.ctx, old.ID)
	require.ErrorIs(t, err, common.ErrNotFound, "synced and past the window")

	tomb := e.expense(t, gone.ID)
	assert.True(t, tomb.PendingSync)
	assert.Equal(t, models.SyncDelete, tomb.SyncOperation)
}

func TestRetention_RecentRecordsSurvive(t *testing.T) {
	e := newEnv(t, Config{Retention: 24 * time.Hour})

	x := &models.Expense{Title: "Recent", Amount: 1, Year: 2024, Month: 3, Date: 10}
	require.NoError(t, e.repos.Expenses.Create(e.ctx, x, t0))
	sum := e.sync(t)
	assert.Zero(t, sum.Purged)
	e.expense(t, x.ID)
}

func TestPerformFullSync_UntrustedNetwork(t *testing.T) {
	e := newEnv(t, Config{})
	x := &models.Expense{Title: "Secret", Amount: 1, Year: 2024, Month: 3, Date: 10}
	require.NoError(t, e.repos.Expenses.Create(e.ctx, x, t0))

	e.state.UpdateNetworkMembership(false)
	_, err := e.engine.PerformFullSync(e.ctx)
	require.ErrorIs(t, err, ErrUntrustedNetwork)
	assert.True(t, IsRetryable(err))
	assert.Empty(t, e.remote.batches, "nothing leaves an untrusted network")
	assert.Equal(t, int64(1), e.state.Snapshot().Pending)
}

func TestPerformFullSync_HealthCheckFailure(t *testing.T) {
	e := newEnv(t, Config{})
	e.remote.healthErr = fmt.Errorf("%w: refused", client.ErrUnavailable)

	_, err := e.engine.PerformFullSync(e.ctx)
	var se *SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindTransient, se.Kind)
	assert.False(t, e.state.Snapshot().Reachable)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.PassesTotal.WithLabelValues(metrics.ResultFailure)))
}

func TestPerformFullSync_UpdatesState(t *testing.T) {
	e := newEnv(t, Config{})
	ch, cancel := e.state.Subscribe()
	defer cancel()
	<-ch

	x := &models.Expense{Title: "Coffee", Amount: 500, Year: 2024, Month: 3, Date: 10}
	require.NoError(t, e.repos.Expenses.Create(e.ctx, x, t0))
	e.sync(t)

	snap := e.state.Snapshot()
	assert.Equal(t, connectivity.PhaseIdle, snap.Phase)
	assert.Equal(t, e.clock.Now(), snap.LastSync)
	assert.Zero(t, snap.Pending)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.PassesTotal.WithLabelValues(metrics.ResultSuccess)))
}
