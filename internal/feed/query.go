package feed

import (
	"context"
	"errors"
	"time"

	"github.com/UkralStul/social-feed-service/internal/domain"
	"github.com/UkralStul/social-feed-service/internal/storage"
	"github.com/UkralStul/social-feed-service/internal/visibility"
)

// Type - источник ленты.
type Type string

const (
	TypeSquare       Type = "square"       // общая лента
	TypeCircle       Type = "circle"       // лента круга
	TypeAnnouncement Type = "announcement" // доска объявлений
	TypeCurated      Type = "curated"      // подборка круга
	TypeProfile      Type = "profile"      // лента профиля
	TypeTopic        Type = "topic"        // лента темы
)

// riskThreshold - посты с riskLevel на уровне и выше не попадают в ленты.
const riskThreshold = 3

// Request - входной запрос ленты. Cursor - publicTime последнего
// виденного элемента; 0 означает первую страницу.
type Request struct {
	Type        Type
	ScopeID     string // circleID, authorID или topic в зависимости от типа
	Cursor      int64
	PageSize    int
	RequesterID string
}

// Config - настройки подсистемы лент.
type Config struct {
	OnboardingCircleID   string
	AnnouncementCircleID string
	HeadTTL              time.Duration // TTL открытой головы ленты
	PageTTL              time.Duration // TTL ограниченных исторических страниц
	DefaultPageSize      int
}

// DefaultConfig - значения, совпадающие с историческими TTL (5 и 50 минут).
func DefaultConfig() Config {
	return Config{
		HeadTTL:         5 * time.Minute,
		PageTTL:         50 * time.Minute,
		DefaultPageSize: 20,
	}
}

// buildQuery собирает фильтр, сортировку и курсор для источника ленты.
// own/follows - вариант профильной выборки, вычисленный в Feed: он же
// входит в ключ кэша, поэтому определяется до чтения кэша.
// Ошибка NotFound по кругу не фатальна: запрос деградирует до фильтра по
// scope id с дефолтной видимостью.
func (a *Assembler) buildQuery(ctx context.Context, req Request, own, follows bool) (storage.PostQuery, error) {
	q := storage.PostQuery{
		MaxRiskLevel: riskThreshold,
		Before:       req.Cursor,
		Limit:        req.PageSize,
	}

	switch req.Type {
	case TypeSquare:
		q.Visibility = visibility.SquareStates()

	case TypeCircle:
		q.CircleID = req.ScopeID
		circle, err := a.store.GetCircleByID(ctx, req.ScopeID)
		if err != nil {
			if !isNotFound(err) {
				return q, err
			}
			// Круг удалён: фильтруем только по scope id, видимость по умолчанию
			circle = nil
		}
		q.Visibility = visibility.CircleStates(circle)
		if req.ScopeID == a.cfg.OnboardingCircleID {
			// круг новичков показывает и посты, ждущие верификации
			q.Visibility = append(q.Visibility, domain.VisibilityCirclePending)
		}

	case TypeAnnouncement:
		q.CircleID = a.cfg.AnnouncementCircleID
		q.Visibility = []domain.VisibilityState{domain.VisibilityAll}
		q.ExcludeForwards = true

	case TypeCurated:
		q.CircleID = req.ScopeID
		q.Visibility = []domain.VisibilityState{domain.VisibilityAll}
		q.PinnedOnly = true
		// закреплённые сверху; при листании сортировка вырождается в publicTime
		q.PinnedFirst = req.Cursor == 0

	case TypeProfile:
		q.AuthorID = req.ScopeID
		q.Visibility = visibility.ProfileStates(own, follows)
		q.PinnedFirst = req.Cursor == 0

	case TypeTopic:
		q.Topic = req.ScopeID
		q.Visibility = visibility.TopicStates()

	default:
		return q, domain.Validation(domain.CodeBadRequest, "unknown feed type "+string(req.Type))
	}

	return q, nil
}

func isNotFound(err error) bool {
	var e *domain.Error
	return errors.As(err, &e) && e.Kind == domain.KindNotFound
}
