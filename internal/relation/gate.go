package relation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/UkralStul/social-feed-service/internal/cache"
	"github.com/UkralStul/social-feed-service/internal/domain"
	"github.com/UkralStul/social-feed-service/internal/storage"
	"github.com/rs/zerolog"
)

// BlockStatus - отношение блокировки между A и B. Значения совпадают с
// кодами, которые исторически уходят клиенту.
type BlockStatus int

const (
	BlockNone     BlockStatus = 1 // блокировок нет
	BlockedByThem BlockStatus = 2 // B заблокировал A
	BlockedByYou  BlockStatus = 3 // A заблокировал B
	BlockMutual   BlockStatus = 4 // взаимная блокировка
)

// FollowStatus - отношение подписки между A и B с точки зрения A.
type FollowStatus int

const (
	FollowNone   FollowStatus = 1
	Following    FollowStatus = 2 // A подписан на B
	FollowedBy   FollowStatus = 3 // B подписан на A
	FollowMutual FollowStatus = 4
)

const (
	blockCacheTTL = 24 * time.Hour
	muteCacheTTL  = 5 * time.Minute
)

// Gate разрешает отношения блокировки и подписки между двумя identity.
// Направленные проверки блокировок кэшируются ("1"/"0", сутки) и явно
// инвалидируются при block/unblock. Подписки не кэшируются никогда:
// их состояние должно отражаться немедленно.
type Gate struct {
	store storage.Storage
	cache cache.Cache
	log   zerolog.Logger
}

// NewGate создает гейт графа отношений.
func NewGate(store storage.Storage, c cache.Cache, log zerolog.Logger) *Gate {
	return &Gate{store: store, cache: c, log: log.With().Str("component", "relation").Logger()}
}

func blockKey(subjectID, targetID string) string {
	return fmt.Sprintf("block:%s:%s", subjectID, targetID)
}

func muteKey(subjectID string) string {
	return fmt.Sprintf("mute:%s", subjectID)
}

func muteByKey(targetID string) string {
	return fmt.Sprintf("muteby:%s", targetID)
}

// blocks - одна направленная проверка "subject заблокировал target" через кэш.
func (g *Gate) blocks(ctx context.Context, subjectID, targetID string) (bool, error) {
	if subjectID == targetID {
		return false, nil
	}
	key := blockKey(subjectID, targetID)
	if raw, ok := g.cache.Get(ctx, key); ok {
		return string(raw) == "1", nil
	}

	blocked, err := g.store.HasBlock(ctx, subjectID, targetID)
	if err != nil {
		return false, fmt.Errorf("block lookup %s->%s: %w", subjectID, targetID, err)
	}
	val := []byte("0")
	if blocked {
		val = []byte("1")
	}
	g.cache.Set(ctx, key, val, blockCacheTTL)
	return blocked, nil
}

// BlockStatus возвращает отношение блокировки между a и b из двух
// независимых направленных проверок.
func (g *Gate) BlockStatus(ctx context.Context, a, b string) (BlockStatus, error) {
	if a == b {
		return BlockNone, nil
	}
	aBlocksB, err := g.blocks(ctx, a, b)
	if err != nil {
		return BlockNone, err
	}
	bBlocksA, err := g.blocks(ctx, b, a)
	if err != nil {
		return BlockNone, err
	}
	switch {
	case aBlocksB && bBlocksA:
		return BlockMutual, nil
	case aBlocksB:
		return BlockedByYou, nil
	case bBlocksA:
		return BlockedByThem, nil
	default:
		return BlockNone, nil
	}
}

// FollowStatus возвращает отношение подписки между a и b. Без кэша.
func (g *Gate) FollowStatus(ctx context.Context, a, b string) (FollowStatus, error) {
	if a == b {
		return FollowMutual, nil
	}
	aFollowsB, err := g.store.HasFollow(ctx, a, b)
	if err != nil {
		return FollowNone, fmt.Errorf("follow lookup %s->%s: %w", a, b, err)
	}
	bFollowsA, err := g.store.HasFollow(ctx, b, a)
	if err != nil {
		return FollowNone, fmt.Errorf("follow lookup %s->%s: %w", b, a, err)
	}
	switch {
	case aFollowsB && bFollowsA:
		return FollowMutual, nil
	case aFollowsB:
		return Following, nil
	case bFollowsA:
		return FollowedBy, nil
	default:
		return FollowNone, nil
	}
}

// Follows сообщает, есть ли активное ребро подписки follower -> followee.
func (g *Gate) Follows(ctx context.Context, followerID, followeeID string) (bool, error) {
	if followerID == followeeID {
		return true, nil
	}
	return g.store.HasFollow(ctx, followerID, followeeID)
}

// Authorize возвращает AuthorizationError с кодом направления, если между
// actor и subject есть активная блокировка в любую сторону.
func (g *Gate) Authorize(ctx context.Context, actorID, subjectID string) error {
	status, err := g.BlockStatus(ctx, actorID, subjectID)
	if err != nil {
		return err
	}
	switch status {
	case BlockedByYou:
		return domain.Authorization(domain.CodeBlockedByYou, "you have blocked this user")
	case BlockedByThem:
		return domain.Authorization(domain.CodeBlockedByThem, "this user has blocked you")
	case BlockMutual:
		return domain.Authorization(domain.CodeBlockedMutual, "you have blocked each other")
	}
	return nil
}

// Follow добавляет ребро подписки.
func (g *Gate) Follow(ctx context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return domain.Validation(domain.CodeBadRequest, "cannot follow yourself")
	}
	if err := g.Authorize(ctx, followerID, followeeID); err != nil {
		return err
	}
	return g.store.AddFollow(ctx, followerID, followeeID)
}

// Unfollow удаляет ребро подписки.
func (g *Gate) Unfollow(ctx context.Context, followerID, followeeID string) error {
	return g.store.RemoveFollow(ctx, followerID, followeeID)
}

// Block добавляет ребро блокировки. Вместе с ним пишется opt-out запись
// "не показывать мне её посты" и инвалидируются кэши пары.
func (g *Gate) Block(ctx context.Context, subjectID, targetID string) error {
	if subjectID == targetID {
		return domain.Validation(domain.CodeBadRequest, "cannot block yourself")
	}
	if err := g.store.AddBlock(ctx, subjectID, targetID); err != nil {
		return err
	}
	if err := g.store.AddMute(ctx, subjectID, targetID, domain.MuteHideFromMe); err != nil {
		g.log.Warn().Err(err).Msg("mute record after block failed")
	}
	g.invalidatePair(ctx, subjectID, targetID)
	return nil
}

// Unblock удаляет ребро блокировки, снимает стоящие за ним opt-out записи
// пары и инвалидирует кэши обоих направлений.
func (g *Gate) Unblock(ctx context.Context, subjectID, targetID string) error {
	if err := g.store.RemoveBlock(ctx, subjectID, targetID); err != nil {
		return err
	}
	if err := g.store.RemoveMutePair(ctx, subjectID, targetID); err != nil {
		g.log.Warn().Err(err).Msg("mute cleanup after unblock failed")
	}
	g.invalidatePair(ctx, subjectID, targetID)
	return nil
}

func (g *Gate) invalidatePair(ctx context.Context, a, b string) {
	g.cache.Expire(ctx, blockKey(a, b))
	g.cache.Expire(ctx, blockKey(b, a))
	g.cache.Expire(ctx, muteKey(a))
	g.cache.Expire(ctx, muteByKey(b))
}

// mutedTargets - кто скрыт для requester (opt-out type=1), с коротким кэшем.
func (g *Gate) mutedTargets(ctx context.Context, requesterID string) (map[string]bool, error) {
	return g.cachedIDSet(ctx, muteKey(requesterID), func() ([]string, error) {
		return g.store.ListMutedTargets(ctx, requesterID)
	})
}

// mutedBy - кто скрыл свои посты от requester (opt-out type=2).
func (g *Gate) mutedBy(ctx context.Context, requesterID string) (map[string]bool, error) {
	return g.cachedIDSet(ctx, muteByKey(requesterID), func() ([]string, error) {
		return g.store.ListMutedBySubjects(ctx, requesterID)
	})
}

func (g *Gate) cachedIDSet(ctx context.Context, key string, load func() ([]string, error)) (map[string]bool, error) {
	if raw, ok := g.cache.Get(ctx, key); ok {
		var ids []string
		if err := json.Unmarshal(raw, &ids); err == nil {
			return toSet(ids), nil
		}
	}
	ids, err := load()
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(ids); err == nil {
		g.cache.Set(ctx, key, raw, muteCacheTTL)
	}
	return toSet(ids), nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// FilterAuthors убирает из списка посты авторов, с которыми у requester
// активная блокировка в любую сторону, скрытых opt-out записями пары и
// забаненных платформой. Роли модератора/владельца/цензора освобождены от
// фильтра целиком. Страница после фильтра может законно стать короче.
func (g *Gate) FilterAuthors(ctx context.Context, requesterID string, role domain.Role, posts []*domain.Post) ([]*domain.Post, error) {
	if requesterID == "" || role.Elevated() {
		return posts, nil
	}

	muted, err := g.mutedTargets(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	mutedBy, err := g.mutedBy(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	bannedIDs, err := g.store.ListBannedUserIDs(ctx)
	if err != nil {
		return nil, err
	}
	banned := toSet(bannedIDs)

	filtered := make([]*domain.Post, 0, len(posts))
	for _, p := range posts {
		if p.AuthorID == requesterID {
			filtered = append(filtered, p)
			continue
		}
		if muted[p.AuthorID] || mutedBy[p.AuthorID] || banned[p.AuthorID] {
			continue
		}
		status, err := g.BlockStatus(ctx, requesterID, p.AuthorID)
		if err != nil {
			return nil, err
		}
		if status != BlockNone {
			continue
		}
		filtered = append(filtered, p)
	}
	return filtered, nil
}
