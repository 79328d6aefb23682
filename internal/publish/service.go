package publish

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/UkralStul/social-feed-service/internal/domain"
	"github.com/UkralStul/social-feed-service/internal/feed"
	"github.com/UkralStul/social-feed-service/internal/provider"
	"github.com/UkralStul/social-feed-service/internal/storage"
	"github.com/UkralStul/social-feed-service/internal/visibility"
	"github.com/rs/zerolog"
)

const maxContentLength = 2000

// Request - входные данные публикации.
type Request struct {
	AuthorID  string
	CircleID  string
	Content   string
	MediaRefs []string
	Topics    []string
	Mentions  []string
	ProofPost bool // проверочный пост новичка
}

// Service публикует посты: валидация, fail-closed модерация, стартовое
// состояние видимости, сброс голов затронутых лент.
type Service struct {
	store     storage.Storage
	moderator provider.Moderator
	assembler *feed.Assembler
	cfg       feed.Config
	log       zerolog.Logger
}

// NewService создает сервис публикации.
func NewService(store storage.Storage, moderator provider.Moderator, assembler *feed.Assembler, cfg feed.Config, log zerolog.Logger) *Service {
	return &Service{
		store:     store,
		moderator: moderator,
		assembler: assembler,
		cfg:       cfg,
		log:       log.With().Str("component", "publish").Logger(),
	}
}

// Publish создает пост. Испытательный аккаунт может опубликовать только
// проверочный пост; он принудительно уходит в круг новичков в состоянии
// circle-visible-pending. Сбой провайдера модерации отклоняет публикацию,
// а не пропускает её молча.
func (s *Service) Publish(ctx context.Context, req Request) (*domain.Post, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" && len(req.MediaRefs) == 0 {
		return nil, domain.Validation(domain.CodeBadRequest, "post content cannot be empty")
	}
	if len(content) > maxContentLength {
		return nil, domain.Validation(domain.CodeBadRequest, "post content is too long")
	}

	author, err := s.store.GetUserByID(ctx, req.AuthorID)
	if err != nil {
		return nil, err
	}
	switch author.Status {
	case domain.AccountBanned, domain.AccountDeactivated:
		return nil, domain.Authorization(domain.CodeNotPermitted, "account cannot publish")
	case domain.AccountProbationary:
		if !req.ProofPost {
			return nil, domain.Authorization(domain.CodeNotPermitted, "account pending verification")
		}
	}

	// Fail-closed: ошибка модерации отклоняет запись
	ok, err := s.moderator.Review(ctx, content)
	if err != nil {
		return nil, domain.Dependency(domain.CodeModerationFailed, "moderation unavailable").Wrap(err)
	}
	if !ok {
		return nil, domain.Validation(domain.CodeModerationRejected, "content rejected by moderation")
	}

	circleID := req.CircleID
	if req.ProofPost {
		circleID = s.cfg.OnboardingCircleID
	}

	var circle *domain.Circle
	if circleID != "" {
		circle, err = s.store.GetCircleByID(ctx, circleID)
		if err != nil {
			if !isNotFound(err) {
				return nil, err
			}
			// удалённый круг не мешает публикации: видимость по умолчанию
			circle = nil
		}
	}

	post := &domain.Post{
		AuthorID:   req.AuthorID,
		CircleID:   circleID,
		Content:    content,
		MediaRefs:  req.MediaRefs,
		Topics:     req.Topics,
		Mentions:   req.Mentions,
		PublicTime: time.Now().UnixMilli(),
		Visibility: visibility.Initial(circle, req.ProofPost),
	}
	if req.ProofPost {
		post.Verification = domain.VerificationPending
	}

	created, err := s.store.CreatePost(ctx, post)
	if err != nil {
		return nil, err
	}

	// сброс голов затронутых лент, чтобы пост появился без ожидания TTL
	s.assembler.InvalidateHeads(ctx, created)

	s.log.Info().Str("post", created.ID).Str("author", created.AuthorID).
		Int("visibility", int(created.Visibility)).Msg("post published")
	return created, nil
}

func isNotFound(err error) bool {
	var e *domain.Error
	return errors.As(err, &e) && e.Kind == domain.KindNotFound
}
