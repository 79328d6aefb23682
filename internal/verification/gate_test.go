package verification

import (
	"context"
	"sync"
	"testing"

	"github.com/UkralStul/social-feed-service/internal/domain"
	"github.com/UkralStul/social-feed-service/internal/provider"
	"github.com/UkralStul/social-feed-service/internal/storage/inmemory"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T) (*Gate, *inmemory.Store, *provider.RecordingNotifier) {
	t.Helper()
	store := inmemory.New()
	notifier := &provider.RecordingNotifier{}
	return NewGate(store, notifier, zerolog.Nop()), store, notifier
}

func createPendingPost(t *testing.T, store *inmemory.Store, authorID string) *domain.Post {
	t.Helper()
	ctx := context.Background()
	_, err := store.CreateUser(ctx, &domain.User{ID: authorID, Status: domain.AccountProbationary})
	require.NoError(t, err)
	post, err := store.CreatePost(ctx, &domain.Post{
		AuthorID:     authorID,
		Content:      "проверочный пост",
		Visibility:   domain.VisibilityCirclePending,
		Verification: domain.VerificationPending,
	})
	require.NoError(t, err)
	return post
}

func TestGate_Evaluate_BelowThreshold(t *testing.T) {
	gate, store, notifier := newTestGate(t)
	ctx := context.Background()

	post := createPendingPost(t, store, "newbie")
	require.NoError(t, store.AddLike(ctx, post.ID, "fan-1"))

	require.NoError(t, gate.Evaluate(ctx, post.ID))

	user, err := store.GetUserByID(ctx, "newbie")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountProbationary, user.Status)
	assert.Empty(t, notifier.Sent())
}

func TestGate_Evaluate_PromotesAtThreshold(t *testing.T) {
	gate, store, notifier := newTestGate(t)
	ctx := context.Background()

	post := createPendingPost(t, store, "newbie")
	require.NoError(t, store.AddLike(ctx, post.ID, "fan-1"))
	require.NoError(t, store.AddLike(ctx, post.ID, "fan-2"))

	require.NoError(t, gate.Evaluate(ctx, post.ID))

	user, err := store.GetUserByID(ctx, "newbie")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountVerified, user.Status)

	// Проверочный пост открыт для всех
	got, err := store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VisibilityAll, got.Visibility)
	assert.Equal(t, domain.VerificationPassed, got.Verification)

	sent := notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "newbie", sent[0].To)
	assert.Equal(t, domain.ActivitySystem, sent[0].Kind)
}

func TestGate_Evaluate_AuthorLikeDoesNotCount(t *testing.T) {
	gate, store, notifier := newTestGate(t)
	ctx := context.Background()

	post := createPendingPost(t, store, "newbie")
	require.NoError(t, store.AddLike(ctx, post.ID, "newbie"))
	require.NoError(t, store.AddLike(ctx, post.ID, "fan-1"))

	require.NoError(t, gate.Evaluate(ctx, post.ID))

	user, err := store.GetUserByID(ctx, "newbie")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountProbationary, user.Status)
	assert.Empty(t, notifier.Sent())
}

func TestGate_Evaluate_CascadeRunsOnce(t *testing.T) {
	gate, store, notifier := newTestGate(t)
	ctx := context.Background()

	post := createPendingPost(t, store, "newbie")
	require.NoError(t, store.AddLike(ctx, post.ID, "fan-1"))
	require.NoError(t, store.AddLike(ctx, post.ID, "fan-2"))

	require.NoError(t, gate.Evaluate(ctx, post.ID))
	// Повторное срабатывание: пост уже не pending, каскад не перезапускается
	require.NoError(t, gate.Evaluate(ctx, post.ID))

	assert.Len(t, notifier.Sent(), 1)
}

func TestGate_Evaluate_Concurrent(t *testing.T) {
	gate, store, notifier := newTestGate(t)
	ctx := context.Background()

	post := createPendingPost(t, store, "newbie")
	require.NoError(t, store.AddLike(ctx, post.ID, "fan-1"))
	require.NoError(t, store.AddLike(ctx, post.ID, "fan-2"))

	// Почти одновременные лайки: каждый шаг каскада должен быть идемпотентен
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, gate.Evaluate(ctx, post.ID))
		}()
	}
	wg.Wait()

	user, err := store.GetUserByID(ctx, "newbie")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountVerified, user.Status)
	assert.Len(t, notifier.Sent(), 1)
}

func TestGate_Evaluate_WelcomeDeduped(t *testing.T) {
	gate, store, notifier := newTestGate(t)
	ctx := context.Background()

	post := createPendingPost(t, store, "newbie")
	require.NoError(t, store.AddLike(ctx, post.ID, "fan-1"))
	require.NoError(t, store.AddLike(ctx, post.ID, "fan-2"))

	// Приветствие уже записано (конкурирующий лайк успел раньше)
	fresh, err := store.AddActivityOnce(ctx, &domain.ActivityRecord{
		Type:      domain.ActivitySystem,
		To:        "newbie",
		DedupeKey: "verify:newbie",
	})
	require.NoError(t, err)
	require.True(t, fresh)

	require.NoError(t, gate.Evaluate(ctx, post.ID))

	// Каскад идемпотентен: второе приветствие не уходит
	assert.Empty(t, notifier.Sent())
	user, err := store.GetUserByID(ctx, "newbie")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountVerified, user.Status)
}

func TestGate_Evaluate_NonPendingPost(t *testing.T) {
	gate, store, notifier := newTestGate(t)
	ctx := context.Background()

	post, err := store.CreatePost(ctx, &domain.Post{
		AuthorID:   "user-1",
		Content:    "обычный пост",
		Visibility: domain.VisibilityAll,
	})
	require.NoError(t, err)
	require.NoError(t, store.AddLike(ctx, post.ID, "fan-1"))
	require.NoError(t, store.AddLike(ctx, post.ID, "fan-2"))

	require.NoError(t, gate.Evaluate(ctx, post.ID))
	assert.Empty(t, notifier.Sent())
}
