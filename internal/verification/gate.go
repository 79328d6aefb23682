package verification

import (
	"context"
	"fmt"

	"github.com/UkralStul/social-feed-service/internal/domain"
	"github.com/UkralStul/social-feed-service/internal/provider"
	"github.com/UkralStul/social-feed-service/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultThreshold - сколько различных аккаунтов, кроме автора, должны
// лайкнуть проверочный пост.
const DefaultThreshold = 2

const welcomeMessage = "Поздравляем, верификация пройдена! Все разделы теперь открыты."

// Gate продвигает испытательный аккаунт после того, как его проверочный
// пост набрал достаточно лайков от различных identity. Проверка вызывается
// синхронно из пути лайка.
type Gate struct {
	store     storage.Storage
	notifier  provider.Notifier
	threshold int
	log       zerolog.Logger
}

// NewGate создает гейт верификации.
func NewGate(store storage.Storage, notifier provider.Notifier, log zerolog.Logger) *Gate {
	return &Gate{
		store:     store,
		notifier:  notifier,
		threshold: DefaultThreshold,
		log:       log.With().Str("component", "verification").Logger(),
	}
}

// Evaluate проверяет проверочный пост и при достижении порога запускает
// каскад. Проверка и обновление аккаунта не обёрнуты в одну атомарную
// операцию, поэтому два почти одновременных лайка могут запустить каскад
// дважды; каждый шаг каскада идемпотентен сам по себе:
//   - продвижение аккаунта - compare-and-set, второй вызов no-op;
//   - перевод постов pending -> all-visible повторно ничего не меняет;
//   - приветственное уведомление дедуплицируется стабильным ключом.
func (g *Gate) Evaluate(ctx context.Context, postID string) error {
	post, err := g.store.GetPostByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("verification lookup: %w", err)
	}
	if post.Verification != domain.VerificationPending {
		return nil
	}
	if g.distinctLikers(post) < g.threshold {
		return nil
	}

	promoted, err := g.store.PromoteVerified(ctx, post.AuthorID)
	if err != nil {
		return fmt.Errorf("promote %s: %w", post.AuthorID, err)
	}

	if _, err := g.store.PassPendingPosts(ctx, post.AuthorID); err != nil {
		// аккаунт уже продвинут; неконсистентность восстановима при
		// следующем срабатывании, наружу не отдаём
		g.log.Warn().Err(err).Str("author", post.AuthorID).Msg("pending post flip failed")
	}

	dedupeKey := "verify:" + post.AuthorID
	fresh, err := g.store.AddActivityOnce(ctx, &domain.ActivityRecord{
		Type:      domain.ActivitySystem,
		To:        post.AuthorID,
		Message:   welcomeMessage,
		DedupeKey: dedupeKey,
	})
	if err != nil {
		g.log.Warn().Err(err).Str("author", post.AuthorID).Msg("welcome record failed")
		return nil
	}
	if fresh {
		if err := g.notifier.Enqueue(ctx, provider.Notification{
			To:      post.AuthorID,
			Kind:    domain.ActivitySystem,
			Message: welcomeMessage,
			Key:     dedupeKey,
		}); err != nil {
			g.log.Warn().Err(err).Str("author", post.AuthorID).Msg("welcome notification failed")
		}
	}

	if promoted {
		g.log.Info().Str("author", post.AuthorID).Str("post", post.ID).Msg("account verified")
	}
	return nil
}

// distinctLikers считает различные identity в лайках, исключая автора.
func (g *Gate) distinctLikers(post *domain.Post) int {
	seen := make(map[string]bool, len(post.LikeIDs))
	for _, id := range post.LikeIDs {
		if id != post.AuthorID {
			seen[id] = true
		}
	}
	return len(seen)
}
