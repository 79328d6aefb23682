package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/UkralStul/social-feed-service/internal/domain"
	"github.com/UkralStul/social-feed-service/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore создает хранилище и один пост для тестов
func newTestStore(t *testing.T) (*Store, *domain.Post) {
	store := New()
	ctx := context.Background()
	post, err := store.CreatePost(ctx, &domain.Post{
		AuthorID:   "user-1",
		Content:    "Content",
		PublicTime: 1000,
		Visibility: domain.VisibilityAll,
	})
	require.NoError(t, err)
	return store, post
}

func TestStore_CreateAndGetPost(t *testing.T) {
	store, post := newTestStore(t)
	ctx := context.Background()

	retrieved, err := store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.Content, retrieved.Content)

	_, err = store.GetPostByID(ctx, "non-existent-id")
	assert.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestStore_Likes_Idempotent(t *testing.T) {
	store, post := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddLike(ctx, post.ID, "user-2"))
	// Повторный лайк не меняет ни множество, ни счётчик
	require.NoError(t, store.AddLike(ctx, post.ID, "user-2"))

	got, err := store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-2"}, got.LikeIDs)
	assert.Equal(t, 1, got.LikeCount)

	require.NoError(t, store.RemoveLike(ctx, post.ID, "user-2"))
	require.NoError(t, store.RemoveLike(ctx, post.ID, "user-2"))

	got, err = store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LikeIDs)
	assert.Equal(t, 0, got.LikeCount)
}

func TestStore_QueryPosts_CursorPagination(t *testing.T) {
	store := New()
	ctx := context.Background()

	// Пять постов с возрастающим publicTime
	for i := 1; i <= 5; i++ {
		_, err := store.CreatePost(ctx, &domain.Post{
			AuthorID:   "user-1",
			Content:    "post",
			PublicTime: int64(i * 1000),
			Visibility: domain.VisibilityAll,
		})
		require.NoError(t, err)
	}

	firstPage, err := store.QueryPosts(ctx, storage.PostQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, firstPage, 2)
	assert.Equal(t, int64(5000), firstPage[0].PublicTime)
	assert.Equal(t, int64(4000), firstPage[1].PublicTime)

	// Вторая страница строго старше курсора
	cursor := firstPage[1].PublicTime
	secondPage, err := store.QueryPosts(ctx, storage.PostQuery{Limit: 3, Before: cursor})
	require.NoError(t, err)
	require.Len(t, secondPage, 3)
	for _, p := range secondPage {
		assert.Less(t, p.PublicTime, cursor)
	}

	// Подсчёт игнорирует курсор: клиенту нужен общий размер ленты
	total, err := store.CountPosts(ctx, storage.PostQuery{Before: cursor})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
}

func TestStore_QueryPosts_Filters(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.CreatePost(ctx, &domain.Post{
		AuthorID: "user-1", CircleID: "circle-1", PublicTime: 1000,
		Visibility: domain.VisibilityAll, Topics: []string{"go"},
	})
	require.NoError(t, err)
	_, err = store.CreatePost(ctx, &domain.Post{
		AuthorID: "user-2", CircleID: "circle-1", PublicTime: 2000,
		Visibility: domain.VisibilityFansOnly,
	})
	require.NoError(t, err)
	_, err = store.CreatePost(ctx, &domain.Post{
		AuthorID: "user-1", CircleID: "circle-2", PublicTime: 3000,
		Visibility: domain.VisibilityAll, RiskLevel: 4,
	})
	require.NoError(t, err)

	byCircle, err := store.QueryPosts(ctx, storage.PostQuery{CircleID: "circle-1"})
	require.NoError(t, err)
	assert.Len(t, byCircle, 2)

	byVisibility, err := store.QueryPosts(ctx, storage.PostQuery{
		Visibility: []domain.VisibilityState{domain.VisibilityAll},
	})
	require.NoError(t, err)
	assert.Len(t, byVisibility, 2)

	// Порог риска отсекает рискованный пост
	safe, err := store.QueryPosts(ctx, storage.PostQuery{MaxRiskLevel: 3})
	require.NoError(t, err)
	assert.Len(t, safe, 2)

	byTopic, err := store.QueryPosts(ctx, storage.PostQuery{Topic: "go"})
	require.NoError(t, err)
	assert.Len(t, byTopic, 1)
}

func TestStore_PinnedFirstOrdering(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.CreatePost(ctx, &domain.Post{
		AuthorID: "user-1", PublicTime: 3000, Visibility: domain.VisibilityAll,
	})
	require.NoError(t, err)
	pinned, err := store.CreatePost(ctx, &domain.Post{
		AuthorID: "user-1", PublicTime: 1000, PinnedTime: 9000,
		Visibility: domain.VisibilityAll,
	})
	require.NoError(t, err)

	posts, err := store.QueryPosts(ctx, storage.PostQuery{PinnedFirst: true})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	// Закреплённый пост впереди несмотря на более старый publicTime
	assert.Equal(t, pinned.ID, posts[0].ID)
}

func TestStore_PromoteVerified_CompareAndSet(t *testing.T) {
	store := New()
	ctx := context.Background()

	user, err := store.CreateUser(ctx, &domain.User{
		NickName: "новичок",
		Status:   domain.AccountProbationary,
	})
	require.NoError(t, err)

	promoted, err := store.PromoteVerified(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, promoted)

	// Второй вызов - no-op
	promoted, err = store.PromoteVerified(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, promoted)

	got, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountVerified, got.Status)
}

func TestStore_PassPendingPosts(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.CreatePost(ctx, &domain.Post{
		AuthorID:     "user-1",
		PublicTime:   1000,
		Visibility:   domain.VisibilityCirclePending,
		Verification: domain.VerificationPending,
	})
	require.NoError(t, err)
	other, err := store.CreatePost(ctx, &domain.Post{
		AuthorID:   "user-2",
		PublicTime: 2000,
		Visibility: domain.VisibilityAll,
	})
	require.NoError(t, err)

	n, err := store.PassPendingPosts(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	posts, err := store.QueryPosts(ctx, storage.PostQuery{AuthorID: "user-1"})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, domain.VisibilityAll, posts[0].Visibility)
	assert.Equal(t, domain.VerificationPassed, posts[0].Verification)

	// Чужой пост не тронут
	untouched, err := store.GetPostByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationNone, untouched.Verification)
}

func TestStore_TouchCharge(t *testing.T) {
	store := New()
	ctx := context.Background()

	day1 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	day2 := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC).UnixMilli()

	require.NoError(t, store.TouchCharge(ctx, "user-1", "user-2", day1))

	rec, err := store.FindChargeSince(ctx, "user-1", "user-2", day1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(1), rec.ChargeTotal)

	// Накопительная запись одна на пару, итог растёт сквозь дни
	require.NoError(t, store.TouchCharge(ctx, "user-1", "user-2", day2))
	rec, err = store.FindChargeSince(ctx, "user-1", "user-2", day2)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(2), rec.ChargeTotal)

	// Обратное направление пары - отдельная запись
	rec, err = store.FindChargeSince(ctx, "user-2", "user-1", 0)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStore_AddActivityOnce(t *testing.T) {
	store := New()
	ctx := context.Background()

	fresh, err := store.AddActivityOnce(ctx, &domain.ActivityRecord{
		Type:      domain.ActivitySystem,
		To:        "user-1",
		DedupeKey: "verify:user-1",
	})
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = store.AddActivityOnce(ctx, &domain.ActivityRecord{
		Type:      domain.ActivitySystem,
		To:        "user-1",
		DedupeKey: "verify:user-1",
	})
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestStore_MutePair(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.AddMute(ctx, "user-1", "user-2", domain.MuteHideFromMe))
	require.NoError(t, store.AddMute(ctx, "user-1", "user-2", domain.MuteHideFromHer))

	muted, err := store.ListMutedTargets(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"user-2"}, muted)

	mutedBy, err := store.ListMutedBySubjects(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, mutedBy)

	// Снятие пары убирает записи обоих типов
	require.NoError(t, store.RemoveMutePair(ctx, "user-1", "user-2"))

	muted, err = store.ListMutedTargets(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, muted)
	mutedBy, err = store.ListMutedBySubjects(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, mutedBy)
}

func TestStore_RetractLikeRecord(t *testing.T) {
	store, post := newTestStore(t)
	ctx := context.Background()

	fresh, err := store.AddActivityOnce(ctx, &domain.ActivityRecord{
		Type:      domain.ActivityLike,
		PostID:    post.ID,
		From:      "user-2",
		To:        "user-1",
		DedupeKey: "like:" + post.ID + ":user-2",
	})
	require.NoError(t, err)
	require.True(t, fresh)

	require.NoError(t, store.RetractLikeRecord(ctx, post.ID, "user-2", "user-1"))

	// Запись остаётся в журнале как факт первого лайка
	rec, err := store.FindLikeRecord(ctx, post.ID, "user-2", "user-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.ActivityRetracted, rec.Status)
}
