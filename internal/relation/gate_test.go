package relation

import (
	"context"
	"testing"

	"github.com/UkralStul/social-feed-service/internal/cache"
	"github.com/UkralStul/social-feed-service/internal/domain"
	"github.com/UkralStul/social-feed-service/internal/storage/inmemory"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T) (*Gate, *inmemory.Store) {
	t.Helper()
	store := inmemory.New()
	return NewGate(store, cache.NewMemory(), zerolog.Nop()), store
}

func TestGate_BlockStatus_AllDirections(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	status, err := gate.BlockStatus(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, BlockNone, status)

	// a блокирует b: кэш направленной проверки инвалидируется сразу
	require.NoError(t, gate.Block(ctx, "a", "b"))
	status, err = gate.BlockStatus(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, BlockedByYou, status)

	// С точки зрения b - заблокирован другим
	status, err = gate.BlockStatus(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, BlockedByThem, status)

	require.NoError(t, gate.Block(ctx, "b", "a"))
	status, err = gate.BlockStatus(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, BlockMutual, status)

	status, err = gate.BlockStatus(ctx, "a", "a")
	require.NoError(t, err)
	assert.Equal(t, BlockNone, status)
}

func TestGate_Authorize(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, gate.Authorize(ctx, "a", "b"))

	require.NoError(t, gate.Block(ctx, "a", "b"))
	err := gate.Authorize(ctx, "a", "b")
	require.Error(t, err)
	assert.Equal(t, domain.CodeBlockedByYou, domain.CodeOf(err))
	assert.Equal(t, domain.KindAuthorization, domain.KindOf(err))

	err = gate.Authorize(ctx, "b", "a")
	require.Error(t, err)
	assert.Equal(t, domain.CodeBlockedByThem, domain.CodeOf(err))

	require.NoError(t, gate.Block(ctx, "b", "a"))
	err = gate.Authorize(ctx, "a", "b")
	require.Error(t, err)
	assert.Equal(t, domain.CodeBlockedMutual, domain.CodeOf(err))
}

func TestGate_FollowStatus(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	status, err := gate.FollowStatus(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, FollowNone, status)

	require.NoError(t, gate.Follow(ctx, "a", "b"))
	status, err = gate.FollowStatus(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, Following, status)

	status, err = gate.FollowStatus(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, FollowedBy, status)

	require.NoError(t, gate.Follow(ctx, "b", "a"))
	status, err = gate.FollowStatus(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, FollowMutual, status)

	// Подписка отражается немедленно, без кэша
	require.NoError(t, gate.Unfollow(ctx, "a", "b"))
	status, err = gate.FollowStatus(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, FollowedBy, status)
}

func TestGate_Follow_BlockedPair(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, gate.Block(ctx, "b", "a"))
	err := gate.Follow(ctx, "a", "b")
	require.Error(t, err)
	assert.Equal(t, domain.CodeBlockedByThem, domain.CodeOf(err))

	err = gate.Follow(ctx, "a", "a")
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestGate_BlockWritesMute_UnblockClearsIt(t *testing.T) {
	gate, store := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, gate.Block(ctx, "a", "b"))

	// Вместе с блокировкой пишется opt-out "не показывать мне её посты"
	muted, err := store.ListMutedTargets(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, muted)

	require.NoError(t, gate.Unblock(ctx, "a", "b"))

	muted, err = store.ListMutedTargets(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, muted)

	status, err := gate.BlockStatus(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, BlockNone, status)
}

func TestGate_FilterAuthors(t *testing.T) {
	gate, store := newTestGate(t)
	ctx := context.Background()

	_, err := store.CreateUser(ctx, &domain.User{ID: "banned", Status: domain.AccountBanned})
	require.NoError(t, err)

	posts := []*domain.Post{
		{ID: "p1", AuthorID: "viewer"},
		{ID: "p2", AuthorID: "blocked"},
		{ID: "p3", AuthorID: "banned"},
		{ID: "p4", AuthorID: "ok"},
	}
	require.NoError(t, gate.Block(ctx, "viewer", "blocked"))

	filtered, err := gate.FilterAuthors(ctx, "viewer", domain.RoleUser, posts)
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	// Свои посты остаются даже рядом с отфильтрованными
	assert.Equal(t, "p1", filtered[0].ID)
	assert.Equal(t, "p4", filtered[1].ID)

	// Модератор освобождён от фильтра целиком
	unfiltered, err := gate.FilterAuthors(ctx, "viewer", domain.RoleModerator, posts)
	require.NoError(t, err)
	assert.Len(t, unfiltered, 4)

	// Анонимный запрос не фильтруется
	anonymous, err := gate.FilterAuthors(ctx, "", domain.RoleUser, posts)
	require.NoError(t, err)
	assert.Len(t, anonymous, 4)
}

func TestGate_FilterAuthors_MutedByAuthor(t *testing.T) {
	gate, store := newTestGate(t)
	ctx := context.Background()

	// Автор скрыл свои посты от viewer (opt-out второго типа)
	require.NoError(t, store.AddMute(ctx, "author", "viewer", domain.MuteHideFromHer))

	posts := []*domain.Post{{ID: "p1", AuthorID: "author"}}
	filtered, err := gate.FilterAuthors(ctx, "viewer", domain.RoleUser, posts)
	require.NoError(t, err)
	assert.Empty(t, filtered)
}
