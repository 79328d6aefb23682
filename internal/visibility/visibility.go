package visibility

import (
	"context"

	"github.com/UkralStul/social-feed-service/internal/domain"
	"github.com/UkralStul/social-feed-service/internal/relation"
)

// maxVisibleRiskLevel - посты с riskLevel выше недоступны никому, кроме
// модерации. Порог совпадает с фильтром лент.
const maxVisibleRiskLevel = 3

// Initial вычисляет стартовое состояние видимости при публикации.
// Проверочный пост новичка всегда уходит в circle-visible-pending,
// секретный круг - в circle-only, иначе действует дефолт круга.
// Отсутствующий круг деградирует до all-visible.
func Initial(circle *domain.Circle, proofPost bool) domain.VisibilityState {
	if proofPost {
		return domain.VisibilityCirclePending
	}
	if circle == nil {
		return domain.VisibilityAll
	}
	if circle.IsSecret {
		return domain.VisibilityCircleOnly
	}
	if circle.DefaultVisibility != 0 {
		return circle.DefaultVisibility
	}
	return domain.VisibilityAll
}

// Moderated сообщает, скрыт ли пост модерацией: флаг удаления, состояние
// square-hidden/circle-hidden или высокий уровень риска.
func Moderated(p *domain.Post) bool {
	if p.IsDeleted {
		return true
	}
	return p.RiskLevel >= maxVisibleRiskLevel
}

// Checker отвечает на вопрос "видит ли viewer этот пост" для прямых
// запросов деталей. Для fans-only состояние подписки берётся из гейта
// графа отношений.
type Checker struct {
	gate *relation.Gate
}

// NewChecker создает проверку видимости поверх гейта отношений.
func NewChecker(gate *relation.Gate) *Checker {
	return &Checker{gate: gate}
}

// IsVisible реализует машину состояний видимости для одного поста.
// circle-only здесь всегда false: такие посты видны только в контексте
// запроса по кругу, который обходит прямую проверку.
func (c *Checker) IsVisible(ctx context.Context, viewerID string, post *domain.Post) (bool, error) {
	if post.AuthorID == viewerID {
		return !post.IsDeleted, nil
	}
	if Moderated(post) {
		return false, nil
	}

	switch post.Visibility {
	case domain.VisibilityAll, domain.VisibilityHomeOnly, domain.VisibilityTopicOnly:
		return true, nil
	case domain.VisibilitySelfOnly:
		return false, nil
	case domain.VisibilityFansOnly:
		return c.gate.Follows(ctx, viewerID, post.AuthorID)
	case domain.VisibilityCirclePending:
		// проверочные посты видны только внутри круга новичков
		return false, nil
	default:
		// circle-only, circle-hidden, square-hidden
		return false, nil
	}
}

// ProfileStates возвращает множество состояний, видимых в профильной ленте.
// Свой профиль показывает всё, кроме circle-only и pending; чужой - только
// all-visible и home-only (скрытые модерацией состояния посторонним не
// показываются), расширенные fans-only при активной подписке.
func ProfileStates(own, follows bool) []domain.VisibilityState {
	if own {
		return []domain.VisibilityState{
			domain.VisibilityAll,
			domain.VisibilityHomeOnly,
			domain.VisibilitySelfOnly,
			domain.VisibilityCircleHidden,
			domain.VisibilitySquareHidden,
			domain.VisibilityFansOnly,
		}
	}
	states := []domain.VisibilityState{
		domain.VisibilityAll,
		domain.VisibilityHomeOnly,
	}
	if follows {
		states = append(states, domain.VisibilityFansOnly)
	}
	return states
}

// SquareStates - состояния, попадающие в общую ленту.
func SquareStates() []domain.VisibilityState {
	return []domain.VisibilityState{
		domain.VisibilityAll,
		domain.VisibilityCircleHidden,
	}
}

// CircleStates - состояния, видимые в ленте конкретного круга.
func CircleStates(circle *domain.Circle) []domain.VisibilityState {
	if circle == nil {
		return []domain.VisibilityState{domain.VisibilityAll}
	}
	base := circle.DefaultVisibility
	if base == 0 {
		base = domain.VisibilityAll
	}
	return []domain.VisibilityState{base, domain.VisibilitySquareHidden}
}

// TopicStates - состояния, видимые в ленте темы.
func TopicStates() []domain.VisibilityState {
	return []domain.VisibilityState{
		domain.VisibilityAll,
		domain.VisibilityTopicOnly,
	}
}
