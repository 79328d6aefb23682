package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/UkralStul/social-feed-service/internal/domain"
	"github.com/UkralStul/social-feed-service/internal/provider"
	"github.com/UkralStul/social-feed-service/internal/relation"
	"github.com/UkralStul/social-feed-service/internal/storage"
	"github.com/UkralStul/social-feed-service/internal/verification"
	"github.com/rs/zerolog"
)

// riskBlockLevel - с этого уровня риска пост закрыт для реакций.
const riskBlockLevel = 3

// Service - сервис счётчиков вовлечённости: лайки, анлайки и дневные
// зарядки. Счётчики денормализованы; межшаговые сбои после первичной
// мутации логируются и не откатываются (транзакций у хранилища нет).
type Service struct {
	store    storage.Storage
	gate     *relation.Gate
	verifier *verification.Gate
	notifier provider.Notifier
	now      func() time.Time
	log      zerolog.Logger
}

// NewService создает сервис вовлечённости.
func NewService(store storage.Storage, gate *relation.Gate, verifier *verification.Gate, notifier provider.Notifier, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		gate:     gate,
		verifier: verifier,
		notifier: notifier,
		now:      time.Now,
		log:      log.With().Str("component", "engagement").Logger(),
	}
}

// WithClock подменяет источник времени; нужен тестам дневного лимита.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Like ставит лайк посту от имени actor.
//
// Повторный лайк - ConflictError(AlreadyLiked). Активная блокировка между
// actor и автором в любую сторону запрещает операцию (свой пост - нет).
// Первый в истории лайк этой пары на этом посте - факт из журнала, а не из
// текущего likeIds, поэтому он переживает циклы unlike/relike - добавляет
// зарядку автору и кругу и пишет уведомление. Лайк pending-поста синхронно
// дёргает гейт верификации.
func (s *Service) Like(ctx context.Context, postID, actorID string) error {
	post, err := s.store.GetPostByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.IsDeleted {
		return domain.NotFound(domain.CodePostDeleted, "post has been deleted")
	}
	if post.RiskLevel >= riskBlockLevel {
		return domain.Authorization(domain.CodePostRestricted, "post is restricted")
	}
	if actorID != post.AuthorID {
		if err := s.gate.Authorize(ctx, actorID, post.AuthorID); err != nil {
			return err
		}
	}
	if post.LikedBy(actorID) {
		return domain.Conflict(domain.CodeAlreadyLiked, "already liked")
	}

	// Первичная мутация: idempotent set-union + инкремент счётчика.
	if err := s.store.AddLike(ctx, postID, actorID); err != nil {
		return fmt.Errorf("add like: %w", err)
	}

	// Дальше частичные сбои только логируются: первичная мутация прошла.
	s.afterLike(ctx, post, actorID)

	if post.Verification == domain.VerificationPending {
		if err := s.verifier.Evaluate(ctx, postID); err != nil {
			s.log.Warn().Err(err).Str("post", postID).Msg("verification evaluate failed")
		}
	}
	return nil
}

// afterLike начисляет зарядки и пишет уведомление, если это первый в
// истории лайк пары (actor, author) на посте. Стражем первого лайка служит
// сама запись журнала со стабильным ключом: из двух конкурирующих первых
// лайков вставка удаётся ровно одному, и только он начисляет зарядки.
func (s *Service) afterLike(ctx context.Context, post *domain.Post, actorID string) {
	if actorID == post.AuthorID {
		// самолайк разрешён, но зарядок не приносит
		return
	}

	fresh, err := s.store.AddActivityOnce(ctx, &domain.ActivityRecord{
		Type:      domain.ActivityLike,
		PostID:    post.ID,
		From:      actorID,
		To:        post.AuthorID,
		CreatedAt: s.now().UnixMilli(),
		DedupeKey: fmt.Sprintf("like:%s:%s", post.ID, actorID),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("post", post.ID).Msg("like ledger write failed")
		return
	}
	if !fresh {
		// не первый лайк: зарядка уже начислена и не начисляется повторно
		return
	}

	if err := s.store.AddUserCharge(ctx, post.AuthorID, 1); err != nil {
		s.log.Warn().Err(err).Str("author", post.AuthorID).Msg("author charge increment failed")
	}
	if post.CircleID != "" {
		if err := s.store.AddCircleCharge(ctx, post.CircleID, 1); err != nil {
			s.log.Warn().Err(err).Str("circle", post.CircleID).Msg("circle charge increment failed")
		}
	}
	if err := s.notifier.Enqueue(ctx, provider.Notification{
		To:   post.AuthorID,
		Kind: domain.ActivityLike,
		Key:  fmt.Sprintf("like:%s:%s", post.ID, actorID),
	}); err != nil {
		s.log.Warn().Err(err).Str("post", post.ID).Msg("like notification failed")
	}
}

// Unlike снимает лайк. Отсутствующий лайк - ConflictError(AlreadyUnliked).
// Уведомление о лайке отзывается, но зарядки автора и круга намеренно не
// откатываются: они фиксируют "когда-либо оценил", а не текущее состояние.
func (s *Service) Unlike(ctx context.Context, postID, actorID string) error {
	post, err := s.store.GetPostByID(ctx, postID)
	if err != nil {
		return err
	}
	if actorID != post.AuthorID {
		if err := s.gate.Authorize(ctx, actorID, post.AuthorID); err != nil {
			return err
		}
	}
	if !post.LikedBy(actorID) {
		return domain.Conflict(domain.CodeAlreadyUnliked, "not liked")
	}

	if err := s.store.RemoveLike(ctx, postID, actorID); err != nil {
		return fmt.Errorf("remove like: %w", err)
	}

	if err := s.store.RetractLikeRecord(ctx, postID, actorID, post.AuthorID); err != nil {
		s.log.Warn().Err(err).Str("post", postID).Msg("like notification retract failed")
	}
	return nil
}

// Charge - дневная зарядка другого пользователя, отдельное от лайков
// действие. Самому себе нельзя; на упорядоченную пару (actor, target)
// допускается один успех в календарные сутки, накопительный итог растёт
// сквозь дни.
func (s *Service) Charge(ctx context.Context, targetID, actorID string) error {
	if targetID == actorID {
		return domain.Validation(domain.CodeCannotChargeSelf, "cannot charge yourself")
	}
	if _, err := s.store.GetUserByID(ctx, targetID); err != nil {
		return err
	}
	if err := s.gate.Authorize(ctx, actorID, targetID); err != nil {
		return err
	}

	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	existing, err := s.store.FindChargeSince(ctx, actorID, targetID, dayStart.UnixMilli())
	if err != nil {
		return fmt.Errorf("charge ledger lookup: %w", err)
	}
	if existing != nil {
		return domain.Conflict(domain.CodeAlreadyCharged, "already charged today")
	}

	if err := s.store.TouchCharge(ctx, actorID, targetID, now.UnixMilli()); err != nil {
		return fmt.Errorf("charge ledger update: %w", err)
	}

	if err := s.store.AddUserCharge(ctx, targetID, 1); err != nil {
		s.log.Warn().Err(err).Str("target", targetID).Msg("user charge increment failed")
	}
	if err := s.notifier.Enqueue(ctx, provider.Notification{
		To:   targetID,
		Kind: domain.ActivityCharge,
		Key:  fmt.Sprintf("charge:%s:%s:%d", actorID, targetID, dayStart.UnixMilli()),
	}); err != nil {
		s.log.Warn().Err(err).Str("target", targetID).Msg("charge notification failed")
	}
	return nil
}
