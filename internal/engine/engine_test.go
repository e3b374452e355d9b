package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/internal/clock"
	"relaybot/internal/dispatch"
	"relaybot/internal/model"
	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

const owner int64 = 42

type sentText struct {
	chatID int64
	text   string
}

type fakeAdapter struct {
	texts   []sentText
	medias  []int64 // chat ids that received media
	failFor map[int64]bool
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if f.failFor[to.ChatID] {
		return kit.MessageRef{}, errors.New("send failed")
	}
	f.texts = append(f.texts, sentText{chatID: to.ChatID, text: text})
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) SendMedia(ctx context.Context, to kit.ChatTarget, m kit.Media, opt *kit.SendOptions) (kit.MessageRef, error) {
	if f.failFor[to.ChatID] {
		return kit.MessageRef{}, errors.New("send failed")
	}
	f.medias = append(f.medias, to.ChatID)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return nil
}

func (f *fakeAdapter) textsTo(chatID int64) []string {
	var out []string
	for _, s := range f.texts {
		if s.chatID == chatID {
			out = append(out, s.text)
		}
	}
	return out
}

func at(hhmm string) clock.Clock {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		panic(err)
	}
	return clock.Fixed{T: time.Date(2026, 8, 28, t.Hour(), t.Minute(), 0, 0, time.UTC)}
}

func newEngine(store storage.Store, ad *fakeAdapter, clk clock.Clock) *Engine {
	sender := dispatch.New(ad, dispatch.Config{}, logx.Nop())
	return New(store, sender, ad, clk, logx.Nop())
}

func seedPost(t *testing.T, store storage.Store, id, body string) {
	t.Helper()
	require.NoError(t, store.SavePost(context.Background(), &model.Post{
		ID: id, OwnerID: owner, Kind: model.KindText, Body: body, Title: body,
		CreatedAt: time.Now(),
	}))
}

func seedSchedule(t *testing.T, store storage.Store, times []string, pool []string, perFiring int, active bool) string {
	t.Helper()
	id := model.NewScheduleID()
	require.NoError(t, store.SaveSchedule(context.Background(), &model.Schedule{
		ID: id, OwnerID: owner, FiringTimes: times, PostPool: pool,
		PostsPerFiring: perFiring, IsActive: active, CreatedAt: time.Now(),
	}))
	return id
}

func TestTickFiresMatchingSchedule(t *testing.T) {
	store := storage.NewMemory()
	ad := &fakeAdapter{}
	ctx := context.Background()

	seedPost(t, store, "p1", "hello")
	id := seedSchedule(t, store, []string{"09:30"}, []string{"p1"}, 1, true)
	require.NoError(t, store.AddDestination(ctx, 100))

	eng := newEngine(store, ad, at("09:30"))
	require.NoError(t, eng.Tick(ctx, "cron"))

	require.Len(t, ad.textsTo(100), 1)
	assert.Equal(t, "hello", ad.textsTo(100)[0])

	schedules, err := store.ActiveSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	require.NotNil(t, schedules[0].LastExecutedAt, "last-executed must be set after delivery")
	_ = id
}

func TestTickIgnoresNonMatchingAndInactive(t *testing.T) {
	store := storage.NewMemory()
	ad := &fakeAdapter{}
	ctx := context.Background()

	seedPost(t, store, "p1", "hello")
	seedSchedule(t, store, []string{"10:00"}, []string{"p1"}, 1, true)
	seedSchedule(t, store, []string{"09:30"}, []string{"p1"}, 1, false)
	require.NoError(t, store.AddDestination(ctx, 100))

	eng := newEngine(store, ad, at("09:30"))
	require.NoError(t, eng.Tick(ctx, "cron"))

	assert.Empty(t, ad.texts)
}

func TestDuplicateTicksWithinMinuteCollapse(t *testing.T) {
	store := storage.NewMemory()
	ad := &fakeAdapter{}
	ctx := context.Background()

	seedPost(t, store, "p1", "hello")
	seedSchedule(t, store, []string{"09:30"}, []string{"p1"}, 1, true)
	require.NoError(t, store.AddDestination(ctx, 100))

	eng := newEngine(store, ad, at("09:30"))
	require.NoError(t, eng.Tick(ctx, "cron"))
	require.NoError(t, eng.Tick(ctx, "update"))
	require.NoError(t, eng.Tick(ctx, "http"))

	assert.Len(t, ad.textsTo(100), 1, "one delivery despite three ticks")
}

// flakySchedules fails ActiveSchedules a configured number of times
// before delegating to the wrapped store.
type flakySchedules struct {
	storage.Store
	failures int
}

func (f *flakySchedules) ActiveSchedules(ctx context.Context) ([]model.Schedule, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("store unavailable")
	}
	return f.Store.ActiveSchedules(ctx)
}

func TestTickRetriesMinuteAfterStoreError(t *testing.T) {
	mem := storage.NewMemory()
	ad := &fakeAdapter{}
	ctx := context.Background()

	seedPost(t, mem, "p1", "hello")
	seedSchedule(t, mem, []string{"09:30"}, []string{"p1"}, 1, true)
	require.NoError(t, mem.AddDestination(ctx, 100))

	eng := newEngine(&flakySchedules{Store: mem, failures: 1}, ad, at("09:30"))

	require.Error(t, eng.Tick(ctx, "cron"))
	assert.Empty(t, ad.texts, "nothing delivered while the store is down")

	require.NoError(t, eng.Tick(ctx, "update"))
	assert.Len(t, ad.textsTo(100), 1, "the same minute runs once the store recovers")
}

func TestForceBypassesWatermark(t *testing.T) {
	store := storage.NewMemory()
	ad := &fakeAdapter{}
	ctx := context.Background()

	seedPost(t, store, "p1", "hello")
	seedSchedule(t, store, []string{"09:30"}, []string{"p1"}, 1, true)
	require.NoError(t, store.AddDestination(ctx, 100))

	eng := newEngine(store, ad, at("09:30"))
	require.NoError(t, eng.Tick(ctx, "cron"))
	require.NoError(t, eng.Force(ctx, "manual"))

	assert.Len(t, ad.textsTo(100), 2)
}

func TestForceAtRunsGivenMinute(t *testing.T) {
	store := storage.NewMemory()
	ad := &fakeAdapter{}
	ctx := context.Background()

	seedPost(t, store, "p1", "hello")
	seedSchedule(t, store, []string{"18:00"}, []string{"p1"}, 1, true)
	require.NoError(t, store.AddDestination(ctx, 100))

	eng := newEngine(store, ad, at("09:30"))
	require.NoError(t, eng.ForceAt(ctx, "18:00", "manual"))

	assert.Len(t, ad.textsTo(100), 1)
}

func TestPoolShrinkageSendsRemaining(t *testing.T) {
	store := storage.NewMemory()
	ad := &fakeAdapter{}
	ctx := context.Background()

	seedPost(t, store, "p1", "one")
	seedPost(t, store, "p2", "two")
	seedPost(t, store, "p3", "three")
	seedSchedule(t, store, []string{"09:30"}, []string{"p1", "p2", "p3"}, 3, true)
	require.NoError(t, store.AddDestination(ctx, 100))
	require.NoError(t, store.DeletePost(ctx, "p2", owner))

	eng := newEngine(store, ad, at("09:30"))
	require.NoError(t, eng.Tick(ctx, "cron"))

	got := ad.textsTo(100)
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []string{"one", "three"}, got)
	assert.Empty(t, ad.textsTo(owner), "no owner notification on silent shrink")
}

func TestEmptyPoolNotifiesOwnerWithoutBookkeeping(t *testing.T) {
	store := storage.NewMemory()
	ad := &fakeAdapter{}
	ctx := context.Background()

	seedPost(t, store, "p1", "one")
	seedSchedule(t, store, []string{"09:30"}, []string{"p1"}, 1, true)
	require.NoError(t, store.AddDestination(ctx, 100))
	require.NoError(t, store.DeletePost(ctx, "p1", owner))

	eng := newEngine(store, ad, at("09:30"))
	require.NoError(t, eng.Tick(ctx, "cron"))

	assert.Empty(t, ad.textsTo(100))
	require.Len(t, ad.textsTo(owner), 1)
	assert.Contains(t, ad.textsTo(owner)[0], "deleted")

	schedules, err := store.ActiveSchedules(ctx)
	require.NoError(t, err)
	assert.Nil(t, schedules[0].LastExecutedAt)
}

func TestNoDestinationsSkipsSilently(t *testing.T) {
	store := storage.NewMemory()
	ad := &fakeAdapter{}
	ctx := context.Background()

	seedPost(t, store, "p1", "one")
	seedSchedule(t, store, []string{"09:30"}, []string{"p1"}, 1, true)

	eng := newEngine(store, ad, at("09:30"))
	require.NoError(t, eng.Tick(ctx, "cron"))

	assert.Empty(t, ad.texts, "no sends and no owner notification")

	schedules, err := store.ActiveSchedules(ctx)
	require.NoError(t, err)
	assert.Nil(t, schedules[0].LastExecutedAt)
}

func TestPartialFailureSingleSummaryNotification(t *testing.T) {
	store := storage.NewMemory()
	ad := &fakeAdapter{failFor: map[int64]bool{200: true}}
	ctx := context.Background()

	seedPost(t, store, "p1", "one")
	seedSchedule(t, store, []string{"09:30"}, []string{"p1"}, 1, true)
	require.NoError(t, store.AddDestination(ctx, 100))
	require.NoError(t, store.AddDestination(ctx, 200))
	require.NoError(t, store.AddDestination(ctx, 300))

	eng := newEngine(store, ad, at("09:30"))
	require.NoError(t, eng.Tick(ctx, "cron"))

	// d3 still attempted after d2 failed.
	assert.Len(t, ad.textsTo(100), 1)
	assert.Len(t, ad.textsTo(300), 1)

	notes := ad.textsTo(owner)
	require.Len(t, notes, 1, "exactly one summary, not one per failed send")
	assert.Contains(t, notes[0], "1 of 3")
	assert.True(t, strings.Contains(notes[0], "200"))

	schedules, err := store.ActiveSchedules(ctx)
	require.NoError(t, err)
	require.NotNil(t, schedules[0].LastExecutedAt, "partial delivery still counts as execution")
}

func TestFiringUsesFooter(t *testing.T) {
	store := storage.NewMemory()
	ad := &fakeAdapter{}
	ctx := context.Background()

	seedPost(t, store, "p1", "hello")
	seedSchedule(t, store, []string{"09:30"}, []string{"p1"}, 1, true)
	require.NoError(t, store.AddDestination(ctx, 100))
	require.NoError(t, store.SetFooter(ctx, "footer"))

	eng := newEngine(store, ad, at("09:30"))
	require.NoError(t, eng.Tick(ctx, "cron"))

	require.Len(t, ad.textsTo(100), 1)
	assert.Equal(t, "hello\n\nfooter", ad.textsTo(100)[0])
}

func TestSamplesExactCountFromPool(t *testing.T) {
	store := storage.NewMemory()
	ad := &fakeAdapter{}
	ctx := context.Background()

	pool := []string{"p1", "p2", "p3", "p4", "p5"}
	for _, id := range pool {
		seedPost(t, store, id, "body "+id)
	}
	seedSchedule(t, store, []string{"09:30", "18:00"}, pool, 2, true)
	require.NoError(t, store.AddDestination(ctx, 100))

	eng := newEngine(store, ad, at("09:30"))
	require.NoError(t, eng.Tick(ctx, "cron"))

	got := ad.textsTo(100)
	require.Len(t, got, 2)
	assert.NotEqual(t, got[0], got[1], "two distinct posts")
}
