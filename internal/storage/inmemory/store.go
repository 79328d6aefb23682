package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/UkralStul/social-feed-service/internal/domain"
	"github.com/UkralStul/social-feed-service/internal/storage"
	"github.com/google/uuid"
)

// Store реализует интерфейс Storage в памяти. Используется в тестах и в
// dev-режиме без внешней БД; семантика операций повторяет документную БД
// (идемпотентный addToSet, инкременты без транзакций).
type Store struct {
	mu       sync.RWMutex
	posts    map[string]*domain.Post
	circles  map[string]*domain.Circle
	users    map[string]*domain.User
	follows  map[string]map[string]bool // map[followerID]map[followeeID]
	blocks   map[string]map[string]bool // map[subjectID]map[targetID]
	mutes    []*domain.MuteEdge
	activity []*domain.ActivityRecord
}

// New создает новый экземпляр in-memory хранилища.
func New() *Store {
	return &Store{
		posts:   make(map[string]*domain.Post),
		circles: make(map[string]*domain.Circle),
		users:   make(map[string]*domain.User),
		follows: make(map[string]map[string]bool),
		blocks:  make(map[string]map[string]bool),
	}
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.PublicTime == 0 {
		post.PublicTime = time.Now().UnixMilli()
	}
	s.posts[post.ID] = post
	return post, nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, domain.NotFound(domain.CodePostNotFound, "post "+id+" not found")
	}
	cp := *post
	cp.LikeIDs = append([]string(nil), post.LikeIDs...)
	return &cp, nil
}

func (s *Store) QueryPosts(ctx context.Context, q storage.PostQuery) ([]*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.Post, 0)
	for _, p := range s.posts {
		if matchPost(p, q) {
			cp := *p
			cp.LikeIDs = append([]string(nil), p.LikeIDs...)
			matched = append(matched, &cp)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if q.PinnedFirst && matched[i].PinnedTime != matched[j].PinnedTime {
			return matched[i].PinnedTime > matched[j].PinnedTime
		}
		return matched[i].PublicTime > matched[j].PublicTime
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (s *Store) CountPosts(ctx context.Context, q storage.PostQuery) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Курсор в подсчёт не входит: клиенту нужен общий размер ленты.
	q.Before = 0
	var n int64
	for _, p := range s.posts {
		if matchPost(p, q) {
			n++
		}
	}
	return n, nil
}

// matchPost применяет фильтры PostQuery к одному документу.
func matchPost(p *domain.Post, q storage.PostQuery) bool {
	if p.IsDeleted {
		return false
	}
	if q.CircleID != "" && p.CircleID != q.CircleID {
		return false
	}
	if q.AuthorID != "" && p.AuthorID != q.AuthorID {
		return false
	}
	if q.Topic != "" && !contains(p.Topics, q.Topic) {
		return false
	}
	if len(q.Visibility) > 0 {
		ok := false
		for _, v := range q.Visibility {
			if p.Visibility == v {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if q.MaxRiskLevel > 0 && p.RiskLevel >= q.MaxRiskLevel {
		return false
	}
	if q.ExcludeForwards && p.ForwardOfPostID != "" {
		return false
	}
	if q.PinnedOnly && p.PinnedTime == 0 {
		return false
	}
	if q.Before > 0 && p.PublicTime >= q.Before {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (s *Store) AddLike(ctx context.Context, postID, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return domain.NotFound(domain.CodePostNotFound, "post "+postID+" not found")
	}
	// addToSet: повторное добавление не меняет ни множество, ни счётчик
	if contains(post.LikeIDs, actorID) {
		return nil
	}
	post.LikeIDs = append(post.LikeIDs, actorID)
	post.LikeCount++
	return nil
}

func (s *Store) RemoveLike(ctx context.Context, postID, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return domain.NotFound(domain.CodePostNotFound, "post "+postID+" not found")
	}
	if !contains(post.LikeIDs, actorID) {
		return nil
	}
	next := make([]string, 0, len(post.LikeIDs)-1)
	for _, l := range post.LikeIDs {
		if l != actorID {
			next = append(next, l)
		}
	}
	post.LikeIDs = next
	if post.LikeCount > 0 {
		post.LikeCount--
	}
	return nil
}

func (s *Store) SetPostVisibility(ctx context.Context, postID string, v domain.VisibilityState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return domain.NotFound(domain.CodePostNotFound, "post "+postID+" not found")
	}
	post.Visibility = v
	return nil
}

func (s *Store) PassPendingPosts(ctx context.Context, authorID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, p := range s.posts {
		if p.AuthorID == authorID && p.Verification == domain.VerificationPending {
			p.Verification = domain.VerificationPassed
			p.Visibility = domain.VisibilityAll
			n++
		}
	}
	return n, nil
}

// === Circle Methods ===

func (s *Store) CreateCircle(ctx context.Context, circle *domain.Circle) (*domain.Circle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if circle.ID == "" {
		circle.ID = uuid.NewString()
	}
	s.circles[circle.ID] = circle
	return circle, nil
}

func (s *Store) GetCircleByID(ctx context.Context, id string) (*domain.Circle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	circle, ok := s.circles[id]
	if !ok {
		return nil, domain.NotFound(domain.CodeCircleNotFound, "circle "+id+" not found")
	}
	cp := *circle
	return &cp, nil
}

func (s *Store) AddCircleCharge(ctx context.Context, circleID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	circle, ok := s.circles[circleID]
	if !ok {
		return domain.NotFound(domain.CodeCircleNotFound, "circle "+circleID+" not found")
	}
	circle.ChargeCount += delta
	return nil
}

func (s *Store) GetCircleSummaries(ctx context.Context, ids []string) (map[string]*domain.CircleSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*domain.CircleSummary, len(ids))
	for _, id := range ids {
		if c, ok := s.circles[id]; ok {
			result[id] = &domain.CircleSummary{ID: c.ID, Title: c.Title, IsSecret: c.IsSecret}
		}
	}
	return result, nil
}

// === User Methods ===

func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, domain.NotFound(domain.CodeUserNotFound, "user "+id+" not found")
	}
	cp := *user
	return &cp, nil
}

func (s *Store) GetUserSummaries(ctx context.Context, ids []string) (map[string]*domain.UserSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*domain.UserSummary, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			result[id] = &domain.UserSummary{
				ID:        u.ID,
				NickName:  u.NickName,
				AvatarURL: u.AvatarURL,
				Labels:    append([]string(nil), u.Labels...),
				Role:      u.Role,
			}
		}
	}
	return result, nil
}

func (s *Store) AddUserCharge(ctx context.Context, userID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return domain.NotFound(domain.CodeUserNotFound, "user "+userID+" not found")
	}
	user.ChargeCount += delta
	return nil
}

func (s *Store) PromoteVerified(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return false, domain.NotFound(domain.CodeUserNotFound, "user "+userID+" not found")
	}
	// compare-and-set: повторный вызов после верификации - no-op
	if user.Status != domain.AccountProbationary {
		return false, nil
	}
	user.Status = domain.AccountVerified
	return true, nil
}

func (s *Store) ListBannedUserIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, u := range s.users {
		if u.Status == domain.AccountBanned {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

// === Relationship Edges ===

func (s *Store) AddFollow(ctx context.Context, followerID, followeeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.follows[followerID] == nil {
		s.follows[followerID] = make(map[string]bool)
	}
	s.follows[followerID][followeeID] = true
	return nil
}

func (s *Store) RemoveFollow(ctx context.Context, followerID, followeeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.follows[followerID], followeeID)
	return nil
}

func (s *Store) HasFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.follows[followerID][followeeID], nil
}

func (s *Store) AddBlock(ctx context.Context, subjectID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blocks[subjectID] == nil {
		s.blocks[subjectID] = make(map[string]bool)
	}
	s.blocks[subjectID][targetID] = true
	return nil
}

func (s *Store) RemoveBlock(ctx context.Context, subjectID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blocks[subjectID], targetID)
	return nil
}

func (s *Store) HasBlock(ctx context.Context, subjectID, targetID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.blocks[subjectID][targetID], nil
}

func (s *Store) AddMute(ctx context.Context, subjectID, targetID string, kind domain.MuteKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.mutes {
		if m.SubjectID == subjectID && m.TargetID == targetID && m.Kind == kind {
			return nil
		}
	}
	s.mutes = append(s.mutes, &domain.MuteEdge{
		SubjectID: subjectID,
		TargetID:  targetID,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *Store) RemoveMutePair(ctx context.Context, subjectID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.mutes[:0]
	for _, m := range s.mutes {
		if m.SubjectID == subjectID && m.TargetID == targetID {
			continue
		}
		next = append(next, m)
	}
	s.mutes = next
	return nil
}

func (s *Store) ListMutedTargets(ctx context.Context, subjectID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, m := range s.mutes {
		if m.SubjectID == subjectID && m.Kind == domain.MuteHideFromMe {
			ids = append(ids, m.TargetID)
		}
	}
	return ids, nil
}

func (s *Store) ListMutedBySubjects(ctx context.Context, targetID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, m := range s.mutes {
		if m.TargetID == targetID && m.Kind == domain.MuteHideFromHer {
			ids = append(ids, m.SubjectID)
		}
	}
	return ids, nil
}

// === Activity Ledger ===

func (s *Store) FindLikeRecord(ctx context.Context, postID, from, to string) (*domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.activity {
		if r.Type == domain.ActivityLike && r.PostID == postID && r.From == from && r.To == to {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) RetractLikeRecord(ctx context.Context, postID, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.activity {
		if r.Type == domain.ActivityLike && r.PostID == postID && r.From == from && r.To == to {
			r.Status = domain.ActivityRetracted
		}
	}
	return nil
}

func (s *Store) FindChargeSince(ctx context.Context, from, to string, since int64) (*domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.activity {
		if r.Type == domain.ActivityCharge && r.From == from && r.To == to && r.CreatedAt >= since {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) TouchCharge(ctx context.Context, from, to string, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.activity {
		if r.Type == domain.ActivityCharge && r.From == from && r.To == to {
			r.CreatedAt = now
			r.Status = domain.ActivityActive
			r.ChargeTotal++
			return nil
		}
	}
	s.activity = append(s.activity, &domain.ActivityRecord{
		ID:          uuid.NewString(),
		Type:        domain.ActivityCharge,
		From:        from,
		To:          to,
		ChargeTotal: 1,
		CreatedAt:   now,
	})
	return nil
}

func (s *Store) AddActivityOnce(ctx context.Context, rec *domain.ActivityRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.activity {
		if r.DedupeKey != "" && r.DedupeKey == rec.DedupeKey {
			return false, nil
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixMilli()
	}
	s.activity = append(s.activity, rec)
	return true, nil
}
