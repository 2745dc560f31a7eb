package subscription_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seriesbell/internal/common/pagination"
	"seriesbell/internal/domain/entity"
	"seriesbell/internal/domain/event"
	"seriesbell/internal/infra/db/dbtest"
	"seriesbell/internal/infra/platform"
	"seriesbell/internal/infra/platform/platformtest"
	"seriesbell/internal/repository"
	"seriesbell/internal/usecase/subscription"
)

/*────────────────────  テスト用ヘルパー  ────────────────────*/

const seriesURL = "https://mangadex.org/title/42"

var (
	day1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
)

type captured struct {
	mu     sync.Mutex
	events []any
}

func (c *captured) Publish(_ context.Context, e any) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return 1
}

type fixture struct {
	svc   *subscription.Service
	repos repository.Repositories
	fake  *platformtest.Fake
	pub   *captured
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := dbtest.NewStore(t)
	fake := platformtest.New("mangadex", "mangadex.org")
	fake.SetSource("42", "Frieren", "Chapter 1", day1)
	pub := &captured{}
	svc := &subscription.Service{
		Repos:     store.Repositories(),
		Tx:        store,
		Platforms: platform.NewRegistry(fake),
		Events:    pub,
	}
	return &fixture{svc: svc, repos: store.Repositories(), fake: fake, pub: pub}
}

func (f *fixture) dm(t *testing.T, user string) *entity.Subscriber {
	t.Helper()
	sub, err := f.svc.GetOrCreateSubscriber(context.Background(),
		entity.SubscriberTarget{Type: entity.SubscriberTypeDM, TargetID: user})
	require.NoError(t, err)
	return sub
}

func (f *fixture) itemCount(t *testing.T, feedID int64) int64 {
	t.Helper()
	n, err := f.repos.Items.CountByFeedID(context.Background(), feedID)
	require.NoError(t, err)
	return n
}

func (f *fixture) feedCount(t *testing.T) int {
	t.Helper()
	feeds, err := f.repos.Feeds.SelectAllByTag(context.Background(), entity.TagSeries)
	require.NoError(t, err)
	return len(feeds)
}

/* ───── Subscribe / Unsubscribe ───── */

func TestSubscribe_CreatesFeedAndInitialItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.dm(t, "100")

	res, err := f.svc.Subscribe(ctx, seriesURL, user)

	require.NoError(t, err)
	assert.Equal(t, subscription.SubscribeSuccess, res.Status)
	assert.Equal(t, 1, f.feedCount(t))
	assert.Equal(t, int64(1), f.itemCount(t, res.Feed.ID))
	n, err := f.svc.GetSubscriptionCount(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n)

	want := &entity.Feed{
		ID:          res.Feed.ID,
		Name:        "Frieren",
		Description: "Frieren description",
		PlatformID:  "mangadex",
		SourceID:    "42",
		ItemsID:     "42",
		SourceURL:   seriesURL,
		CoverURL:    "https://mangadex.org/covers/42.jpg",
		Tags:        "series",
	}
	if diff := cmp.Diff(want, res.Feed); diff != "" {
		t.Errorf("feed mismatch (-want +got):\n%s", diff)
	}

	latest, err := f.repos.Items.SelectLatestByFeedID(ctx, res.Feed.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chapter 1", latest.Description)
	assert.True(t, latest.Published.Equal(day1))
}

func TestSubscribe_Duplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.dm(t, "100")

	first, err := f.svc.Subscribe(ctx, seriesURL, user)
	require.NoError(t, err)
	second, err := f.svc.Subscribe(ctx, seriesURL, user)
	require.NoError(t, err)

	assert.Equal(t, subscription.SubscribeSuccess, first.Status)
	assert.Equal(t, subscription.SubscribeAlreadySubscribed, second.Status)
	assert.Equal(t, first.Feed.ID, second.Feed.ID)
	assert.Equal(t, 1, f.feedCount(t))
	assert.Equal(t, int64(1), f.itemCount(t, first.Feed.ID))
	n, err := f.svc.GetSubscriptionCount(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n)

	src, _ := f.fake.Calls()
	assert.Equal(t, 1, src, "existing feed must not be fetched again")
}

func TestSubscribe_SurfaceVariantsShareOneFeed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.dm(t, "100")
	b := f.dm(t, "200")

	r1, err := f.svc.Subscribe(ctx, "https://mangadex.org/title/42/frieren", a)
	require.NoError(t, err)
	r2, err := f.svc.Subscribe(ctx, "https://www.mangadex.org/title/42", b)
	require.NoError(t, err)

	assert.Equal(t, r1.Feed.ID, r2.Feed.ID)
	assert.Equal(t, seriesURL, r1.Feed.SourceURL)
	assert.Equal(t, 1, f.feedCount(t))
}

func TestSubscribe_EmptySeriesIsSwallowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fake.SetSource("7", "New Series", "", day1)
	f.fake.SetError("7", &platform.Error{Kind: platform.KindEmptySeries, SourceID: "7"})

	res, err := f.svc.Subscribe(ctx, "https://mangadex.org/title/7", f.dm(t, "100"))

	require.NoError(t, err)
	assert.Equal(t, subscription.SubscribeSuccess, res.Status)
	assert.Equal(t, int64(0), f.itemCount(t, res.Feed.ID))
}

func TestSubscribe_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.dm(t, "100")

	_, err := f.svc.Subscribe(ctx, "https://example.org/title/1", user)
	var unsupported *platform.UnsupportedURLError
	assert.ErrorAs(t, err, &unsupported)

	_, err = f.svc.Subscribe(ctx, "https://mangadex.org/chapter/1", user)
	var parseErr *platform.URLParseError
	assert.ErrorAs(t, err, &parseErr)

	_, err = f.svc.Subscribe(ctx, "https://mangadex.org/title/404", user)
	assert.True(t, platform.IsKind(err, platform.KindSeriesNotFound))

	for _, bad := range []string{"", "ftp://mangadex.org/title/42", "http://127.0.0.1/title/42"} {
		_, err = f.svc.Subscribe(ctx, bad, user)
		assert.ErrorIs(t, err, entity.ErrValidationFailed, bad)
	}

	_, err = f.svc.Subscribe(ctx, seriesURL, nil)
	assert.ErrorIs(t, err, subscription.ErrInvalidSubscriber)

	_, err = f.svc.Subscribe(ctx, seriesURL, &entity.Subscriber{Type: entity.SubscriberTypeDM, TargetID: "1"})
	assert.ErrorIs(t, err, subscription.ErrInvalidSubscriber)

	assert.Equal(t, 0, f.feedCount(t))
}

func TestSubscribe_URLWithoutScheme(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Subscribe(ctx, "  mangadex.org/title/42 ", f.dm(t, "100"))
	require.NoError(t, err)
	assert.Equal(t, subscription.SubscribeSuccess, res.Status)
	assert.Equal(t, "42", res.Feed.SourceID)
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.dm(t, "100")

	res, err := f.svc.Unsubscribe(ctx, seriesURL, user)
	require.NoError(t, err)
	assert.Equal(t, subscription.UnsubscribeResult{Status: subscription.UnsubscribeNoneSubscribed, URL: seriesURL}, res)

	_, err = f.svc.Subscribe(ctx, seriesURL, user)
	require.NoError(t, err)

	res, err = f.svc.Unsubscribe(ctx, seriesURL, user)
	require.NoError(t, err)
	assert.Equal(t, subscription.UnsubscribeSuccess, res.Status)

	res, err = f.svc.Unsubscribe(ctx, seriesURL, user)
	require.NoError(t, err)
	assert.Equal(t, subscription.UnsubscribeAlreadyUnsubscribed, res.Status)

	n, err := f.svc.GetSubscriptionCount(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetOrCreateSubscriber_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := entity.SubscriberTarget{Type: entity.SubscriberTypeGuild, TargetID: "555"}

	a, err := f.svc.GetOrCreateSubscriber(ctx, target)
	require.NoError(t, err)
	b, err := f.svc.GetOrCreateSubscriber(ctx, target)
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, target, b.Target())

	_, err = f.svc.GetOrCreateSubscriber(ctx, entity.SubscriberTarget{Type: "webhook", TargetID: "1"})
	assert.ErrorIs(t, err, entity.ErrValidationFailed)
	_, err = f.svc.GetOrCreateSubscriber(ctx, entity.SubscriberTarget{Type: entity.SubscriberTypeDM, TargetID: "abc"})
	assert.ErrorIs(t, err, entity.ErrValidationFailed)
}

/* ───── Listing ───── */

func TestListPaginatedSubscriptions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.dm(t, "100")
	names := map[string]string{"1": "Cyan", "2": "Amber", "3": "Beige"}
	for id, name := range names {
		f.fake.SetSource(id, name, "Chapter 1", day1)
		_, err := f.svc.Subscribe(ctx, "https://mangadex.org/title/"+id, user)
		require.NoError(t, err)
	}

	page1, err := f.svc.ListPaginatedSubscriptions(ctx, user, 1, 2)
	require.NoError(t, err)
	page2, err := f.svc.ListPaginatedSubscriptions(ctx, user, 2, 2)
	require.NoError(t, err)
	page9, err := f.svc.ListPaginatedSubscriptions(ctx, user, 9, 2)
	require.NoError(t, err)

	got := func(rows []entity.FeedWithLatest) []string {
		out := []string{}
		for _, r := range rows {
			out = append(out, r.Feed.Name)
		}
		return out
	}
	assert.Equal(t, []string{"Amber", "Beige"}, got(page1))
	assert.Equal(t, []string{"Cyan"}, got(page2))
	assert.Empty(t, page9)
	require.NotNil(t, page1[0].Latest)
	assert.Equal(t, "Chapter 1", page1[0].Latest.Description)

	resp, err := f.svc.ListSubscriptionsPage(ctx, user, pagination.Params{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, pagination.Metadata{Total: 3, Page: 2, Limit: 2, TotalPages: 2}, resp.Pagination)
	assert.Len(t, resp.Data, 1)

	resp, err = f.svc.ListSubscriptionsPage(ctx, user, pagination.Params{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.True(t, resp.Pagination.HasMore)
}

func TestSearchSubscriptions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.dm(t, "100")
	_, err := f.svc.Subscribe(ctx, seriesURL, user)
	require.NoError(t, err)

	feeds, err := f.svc.SearchSubscriptions(ctx, user, "fRIE")
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, "Frieren", feeds[0].Name)

	feeds, err = f.svc.SearchSubscriptions(ctx, user, "zzz")
	require.NoError(t, err)
	assert.Empty(t, feeds)
}

/* ───── Settings ───── */

func TestServerSettings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	def, err := f.svc.GetServerSettings(ctx, "900")
	require.NoError(t, err)
	assert.True(t, def.FeedsEnabled())
	assert.True(t, def.VoiceEnabled())
	assert.Empty(t, def.FeedsChannelID())

	upd := &entity.ServerSettings{}
	upd.Feeds.ChannelID = entity.StringPtr("1234")
	upd.Voice.Enabled = entity.BoolPtr(false)
	require.NoError(t, f.svc.UpdateServerSettings(ctx, "900", upd))

	got, err := f.svc.GetServerSettings(ctx, "900")
	require.NoError(t, err)
	if diff := cmp.Diff(upd, got); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, event.SettingsUpdated{GuildID: "900", Settings: upd}, f.pub.events[0])
}

/* ───── CheckFeedUpdate ───── */

func subscribed(t *testing.T, f *fixture) *entity.Feed {
	t.Helper()
	res, err := f.svc.Subscribe(context.Background(), seriesURL, f.dm(t, "100"))
	require.NoError(t, err)
	return res.Feed
}

func TestCheckFeedUpdate_NoChange(t *testing.T) {
	f := newFixture(t)
	feed := subscribed(t, f)

	res, err := f.svc.CheckFeedUpdate(context.Background(), feed)

	require.NoError(t, err)
	assert.Equal(t, subscription.FeedNoUpdate, res.Status)
	assert.Equal(t, int64(1), f.itemCount(t, feed.ID))
}

func TestCheckFeedUpdate_NewVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	feed := subscribed(t, f)
	f.fake.SetLatest("42", "Chapter 2", day2)

	res, err := f.svc.CheckFeedUpdate(ctx, feed)

	require.NoError(t, err)
	require.Equal(t, subscription.FeedUpdated, res.Status)
	require.NotNil(t, res.Old)
	assert.Equal(t, "Chapter 1", res.Old.Description)
	assert.Equal(t, "Chapter 2", res.New.Description)
	assert.Equal(t, "mangadex", res.Info.ID)
	assert.Equal(t, int64(2), f.itemCount(t, feed.ID))

	latest, err := f.repos.Items.SelectLatestByFeedID(ctx, feed.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(res.New, latest, cmpopts.EquateApproxTime(0)); diff != "" {
		t.Errorf("latest mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckFeedUpdate_LatestStaysMonotonic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	feed := subscribed(t, f)
	// remote reports an older timestamp for a new chapter
	f.fake.SetLatest("42", "Chapter 2", day1.Add(-time.Hour))

	res, err := f.svc.CheckFeedUpdate(ctx, feed)

	require.NoError(t, err)
	require.Equal(t, subscription.FeedUpdated, res.Status)
	latest, err := f.repos.Items.SelectLatestByFeedID(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chapter 2", latest.Description)
	assert.False(t, latest.Published.Before(day1))
}

func TestCheckFeedUpdate_SourceFinished(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.dm(t, "100")
	res, err := f.svc.Subscribe(ctx, seriesURL, user)
	require.NoError(t, err)
	f.fake.Finish("42")

	upd, err := f.svc.CheckFeedUpdate(ctx, res.Feed)

	require.NoError(t, err)
	assert.Equal(t, subscription.FeedSourceFinished, upd.Status)
	gone, err := f.repos.Feeds.Get(ctx, res.Feed.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.Equal(t, int64(0), f.itemCount(t, res.Feed.ID))
	rows, err := f.svc.ListPaginatedSubscriptions(ctx, user, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCheckFeedUpdate_NoSubscribersSkipsFetch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.dm(t, "100")
	feed := subscribed(t, f)
	_, err := f.svc.Unsubscribe(ctx, seriesURL, user)
	require.NoError(t, err)
	_, before := f.fake.Calls()

	res, err := f.svc.CheckFeedUpdate(ctx, feed)

	require.NoError(t, err)
	assert.Equal(t, subscription.FeedNoUpdate, res.Status)
	_, after := f.fake.Calls()
	assert.Equal(t, before, after)
}

func TestCheckFeedUpdate_PlatformErrorPropagates(t *testing.T) {
	f := newFixture(t)
	feed := subscribed(t, f)
	boom := &platform.Error{Kind: platform.KindRequestFailed, Err: errors.New("connection reset")}
	f.fake.SetError("42", boom)

	_, err := f.svc.CheckFeedUpdate(context.Background(), feed)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), f.itemCount(t, feed.ID))
}

func TestCheckFeedUpdate_UnknownPlatform(t *testing.T) {
	f := newFixture(t)
	feed := subscribed(t, f)
	feed.PlatformID = "gone"

	_, err := f.svc.CheckFeedUpdate(context.Background(), feed)

	assert.ErrorIs(t, err, subscription.ErrUnknownPlatform)
}

func TestUnexpectedResultError(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := error(&subscription.UnexpectedResultError{Message: "insert feed", Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "unexpected result: insert feed: disk I/O error", err.Error())
	assert.Equal(t, "unexpected result: gone", (&subscription.UnexpectedResultError{Message: "gone"}).Error())
}
