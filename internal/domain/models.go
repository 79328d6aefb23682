package domain

import "time"

// VisibilityState - область видимости поста. Числовые значения стабильны,
// они хранятся в документах и не должны меняться.
type VisibilityState int

const (
	VisibilityAll           VisibilityState = 1 // виден везде: лента, профиль, круг
	VisibilityCircleOnly    VisibilityState = 2 // только внутри круга (секретные круги)
	VisibilityHomeOnly      VisibilityState = 3 // только в профиле автора
	VisibilitySelfOnly      VisibilityState = 4 // виден только автору
	VisibilityCirclePending VisibilityState = 5 // проверочный пост новичка, ждёт верификации
	VisibilityCircleHidden  VisibilityState = 6 // скрыт модерацией из круга
	VisibilitySquareHidden  VisibilityState = 7 // скрыт модерацией из общей ленты
	VisibilityTopicOnly     VisibilityState = 8 // виден только в ленте темы
	VisibilityFansOnly      VisibilityState = 9 // виден только подписчикам автора
)

// VerificationState - состояние проверочного поста.
type VerificationState int

const (
	VerificationNone    VerificationState = 0
	VerificationPending VerificationState = 1
	VerificationPassed  VerificationState = 2
)

// AccountStatus - состояние аккаунта.
type AccountStatus int

const (
	AccountProbationary AccountStatus = 0 // новичок, ещё не прошёл верификацию
	AccountVerified     AccountStatus = 1
	AccountDeactivated  AccountStatus = -1
	AccountBanned       AccountStatus = -2
)

// Role - роль аккаунта.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleOwner     Role = "owner"
	RoleCensor    Role = "censor"
)

// Elevated сообщает, освобождена ли роль от фильтрации по графу отношений.
func (r Role) Elevated() bool {
	return r == RoleModerator || r == RoleOwner || r == RoleCensor
}

// Post представляет пост в системе. PublicTime (epoch ms) одновременно
// служит курсором пагинации. LikeCount денормализован и лишь eventually
// consistent с LikeIDs.
type Post struct {
	ID              string            `json:"id" bson:"_id"`
	AuthorID        string            `json:"authorId" bson:"authorId"`
	CircleID        string            `json:"circleId,omitempty" bson:"circleId,omitempty"`
	Content         string            `json:"content" bson:"content"`
	MediaRefs       []string          `json:"mediaRefs,omitempty" bson:"mediaRefs,omitempty"`
	Topics          []string          `json:"topics,omitempty" bson:"topics,omitempty"`
	Mentions        []string          `json:"mentions,omitempty" bson:"mentions,omitempty"`
	PublicTime      int64             `json:"publicTime" bson:"publicTime"`
	PinnedTime      int64             `json:"pinnedTime,omitempty" bson:"pinnedTime,omitempty"`
	Visibility      VisibilityState   `json:"visibility" bson:"visibility"`
	IsDeleted       bool              `json:"isDeleted" bson:"isDeleted"`
	RiskLevel       int               `json:"riskLevel" bson:"riskLevel"`
	LikeIDs         []string          `json:"likeIds" bson:"likeIds"`
	LikeCount       int               `json:"likeCount" bson:"likeCount"`
	CommentCount    int               `json:"commentCount" bson:"commentCount"`
	ForwardOfPostID string            `json:"forwardOfPostId,omitempty" bson:"forwardOfPostId,omitempty"`
	Verification    VerificationState `json:"verificationState" bson:"verificationState"`
}

// LikedBy проверяет наличие identity в списке лайков.
func (p *Post) LikedBy(id string) bool {
	for _, l := range p.LikeIDs {
		if l == id {
			return true
		}
	}
	return false
}

// Circle - сообщество, контейнер для постов.
type Circle struct {
	ID                string          `json:"id" bson:"_id"`
	Title             string          `json:"title" bson:"title"`
	DefaultVisibility VisibilityState `json:"defaultVisibility" bson:"defaultVisibility"`
	IsSecret          bool            `json:"isSecret" bson:"isSecret"`
	MemberCount       int             `json:"memberCount" bson:"memberCount"`
	ChargeCount       int64           `json:"chargeCount" bson:"chargeCount"`
}

// User - аккаунт. ChargeCount - накопленный счётчик зарядок, монотонно
// растёт и не уменьшается при снятии лайка.
type User struct {
	ID          string        `json:"id" bson:"_id"`
	NickName    string        `json:"nickName" bson:"nickName"`
	AvatarURL   string        `json:"avatarUrl,omitempty" bson:"avatarUrl,omitempty"`
	Labels      []string      `json:"labels,omitempty" bson:"labels,omitempty"`
	Status      AccountStatus `json:"status" bson:"status"`
	Role        Role          `json:"role" bson:"role"`
	ChargeCount int64         `json:"chargeCount" bson:"chargeCount"`
	CreatedAt   time.Time     `json:"createdAt" bson:"createdAt"`
}

// UserSummary - усечённые поля автора, которые подмешиваются в страницы ленты.
type UserSummary struct {
	ID        string   `json:"id" bson:"_id"`
	NickName  string   `json:"nickName" bson:"nickName"`
	AvatarURL string   `json:"avatarUrl,omitempty" bson:"avatarUrl,omitempty"`
	Labels    []string `json:"labels,omitempty" bson:"labels,omitempty"`
	Role      Role     `json:"role" bson:"role"`
}

// CircleSummary - усечённые поля круга для страниц ленты.
type CircleSummary struct {
	ID       string `json:"id" bson:"_id"`
	Title    string `json:"title" bson:"title"`
	IsSecret bool   `json:"isSecret" bson:"isSecret"`
}

// FollowEdge - направленное ребро "follower подписан на followee".
// Уникально по паре (follower, followee); отсутствие записи значит
// "отношения нет", а не "заблокирован".
type FollowEdge struct {
	FollowerID string    `json:"followerId" bson:"followerId"`
	FolloweeID string    `json:"followeeId" bson:"followeeId"`
	Status     int       `json:"status" bson:"status"` // 1 - активная подписка
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
}

// BlockEdge - направленное ребро "subject заблокировал target".
type BlockEdge struct {
	SubjectID string    `json:"subjectId" bson:"subjectId"`
	TargetID  string    `json:"targetId" bson:"targetId"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// MuteKind - тип записи "не показывать".
type MuteKind int

const (
	MuteHideFromMe  MuteKind = 1 // subject не хочет видеть посты target
	MuteHideFromHer MuteKind = 2 // subject не хочет, чтобы target видел его посты
)

// MuteEdge - opt-out рекомендаций между парой identity. Снимается при
// разблокировке вместе с ребром блокировки.
type MuteEdge struct {
	SubjectID string    `json:"subjectId" bson:"subjectId"`
	TargetID  string    `json:"targetId" bson:"targetId"`
	Kind      MuteKind  `json:"kind" bson:"kind"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// ActivityType - тип записи в журнале активности.
type ActivityType int

const (
	ActivityLike   ActivityType = 1
	ActivityCharge ActivityType = 2
	ActivitySystem ActivityType = 3
)

// ActivityStatus - статус записи журнала как уведомления.
type ActivityStatus int

const (
	ActivityActive    ActivityStatus = 0
	ActivityRead      ActivityStatus = 1
	ActivityRetracted ActivityStatus = 2
)

// ActivityRecord - запись журнала активности. Журнал служит одновременно
// аудитом "первый ли это лайк" (переживает циклы unlike/relike), дневным
// лимитом зарядок и лентой уведомлений.
type ActivityRecord struct {
	ID          string         `json:"id" bson:"_id"`
	Type        ActivityType   `json:"type" bson:"type"`
	PostID      string         `json:"postId,omitempty" bson:"postId,omitempty"`
	From        string         `json:"from" bson:"from"`
	To          string         `json:"to" bson:"to"`
	Status      ActivityStatus `json:"status" bson:"status"`
	ChargeTotal int64          `json:"chargeTotal,omitempty" bson:"chargeTotal,omitempty"`
	DedupeKey   string         `json:"dedupeKey,omitempty" bson:"dedupeKey,omitempty"`
	Message     string         `json:"message,omitempty" bson:"message,omitempty"`
	CreatedAt   int64          `json:"createdAt" bson:"createdAt"` // epoch ms
}
