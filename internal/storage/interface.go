package storage

import (
	"context"

	"github.com/UkralStul/social-feed-service/internal/domain"
)

// PostQuery - декларативный запрос к коллекции постов. Собирается
// конструктором запросов ленты, исполняется хранилищем. Пагинация только
// курсорная (publicTime < Before), никогда offset-based.
type PostQuery struct {
	CircleID        string
	AuthorID        string
	Topic           string
	Visibility      []domain.VisibilityState
	MaxRiskLevel    int  // 0 - без ограничения; иначе riskLevel < MaxRiskLevel
	ExcludeForwards bool // для доски объявлений: только оригинальные посты
	PinnedOnly      bool // подборка: только отмеченные посты (pinnedTime > 0)
	Before          int64
	PinnedFirst     bool // сортировка pinnedTime desc, затем publicTime desc
	Limit           int
}

// Storage определяет контракт для хранилищ. Бэкенд - документная БД без
// междокументных транзакций: последовательности инкрементов не атомарны,
// частичный сбой оставляет восстановимую, а не атомарную неконсистентность.
type Storage interface {
	// Посты
	CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error)
	GetPostByID(ctx context.Context, id string) (*domain.Post, error)
	QueryPosts(ctx context.Context, q PostQuery) ([]*domain.Post, error)
	CountPosts(ctx context.Context, q PostQuery) (int64, error)

	// Лайки: идемпотентное добавление в множество + инкремент счётчика.
	AddLike(ctx context.Context, postID, actorID string) error
	RemoveLike(ctx context.Context, postID, actorID string) error

	// Модерация и верификация постов
	SetPostVisibility(ctx context.Context, postID string, v domain.VisibilityState) error
	// PassPendingPosts переводит все посты автора из circle-visible-pending в
	// all-visible и ставит verificationState=passed. Возвращает число изменённых.
	PassPendingPosts(ctx context.Context, authorID string) (int64, error)

	// Круги
	GetCircleByID(ctx context.Context, id string) (*domain.Circle, error)
	AddCircleCharge(ctx context.Context, circleID string, delta int64) error
	GetCircleSummaries(ctx context.Context, ids []string) (map[string]*domain.CircleSummary, error)

	// Пользователи
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserSummaries(ctx context.Context, ids []string) (map[string]*domain.UserSummary, error)
	AddUserCharge(ctx context.Context, userID string, delta int64) error
	// PromoteVerified - compare-and-set probationary -> verified на документе
	// пользователя. Возвращает false, если аккаунт уже был верифицирован.
	PromoteVerified(ctx context.Context, userID string) (bool, error)
	ListBannedUserIDs(ctx context.Context) ([]string, error)

	// Рёбра графа отношений
	AddFollow(ctx context.Context, followerID, followeeID string) error
	RemoveFollow(ctx context.Context, followerID, followeeID string) error
	HasFollow(ctx context.Context, followerID, followeeID string) (bool, error)
	AddBlock(ctx context.Context, subjectID, targetID string) error
	RemoveBlock(ctx context.Context, subjectID, targetID string) error
	HasBlock(ctx context.Context, subjectID, targetID string) (bool, error)

	// Opt-out записи, привязанные к паре identity
	AddMute(ctx context.Context, subjectID, targetID string, kind domain.MuteKind) error
	RemoveMutePair(ctx context.Context, subjectID, targetID string) error
	ListMutedTargets(ctx context.Context, subjectID string) ([]string, error)
	ListMutedBySubjects(ctx context.Context, targetID string) ([]string, error)

	// Журнал активности
	// FindLikeRecord ищет запись о первом лайке пары (from, to) на посте.
	// Возвращает (nil, nil), если записи нет.
	FindLikeRecord(ctx context.Context, postID, from, to string) (*domain.ActivityRecord, error)
	RetractLikeRecord(ctx context.Context, postID, from, to string) error
	// FindChargeSince ищет зарядку пары (from, to) не раньше since (epoch ms).
	FindChargeSince(ctx context.Context, from, to string, since int64) (*domain.ActivityRecord, error)
	// TouchCharge обновляет накопительную запись зарядки пары: createdAt=now,
	// chargeTotal+1; создаёт запись, если её ещё нет.
	TouchCharge(ctx context.Context, from, to string, now int64) error
	// AddActivityOnce вставляет запись с дедупликацией по DedupeKey.
	// Возвращает false, если запись с таким ключом уже есть.
	AddActivityOnce(ctx context.Context, rec *domain.ActivityRecord) (bool, error)
}
