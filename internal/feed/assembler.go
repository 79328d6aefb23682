package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/UkralStul/social-feed-service/internal/cache"
	"github.com/UkralStul/social-feed-service/internal/dataloader"
	"github.com/UkralStul/social-feed-service/internal/domain"
	"github.com/UkralStul/social-feed-service/internal/relation"
	"github.com/UkralStul/social-feed-service/internal/storage"
	"github.com/rs/zerolog"
)

// Item - элемент страницы ленты: пост плюс подмешанные краткие данные
// автора и круга. LikedByViewer вычисляется на каждый запрос и в кэш
// не попадает.
type Item struct {
	Post          *domain.Post          `json:"post"`
	Author        *domain.UserSummary   `json:"author,omitempty"`
	Circle        *domain.CircleSummary `json:"circle,omitempty"`
	LikedByViewer bool                  `json:"likedByViewer"`
}

// Page - страница ленты с непрозрачным курсором.
type Page struct {
	Items      []*Item `json:"items"`
	NextCursor *int64  `json:"nextCursor"`
	TotalCount int64   `json:"totalCount"`
}

// cachedPage - то, что лежит в кэше: страница до фильтрации по графу
// отношений. Фильтр зависит от requester и применяется после чтения,
// иначе один ключ отдавал бы разным людям разный состав. Варианты
// профильной выборки, зависящие от requester, разведены по ключам
// (см. audienceKey).
type cachedPage struct {
	Items      []*Item `json:"items"`
	NextCursor *int64  `json:"nextCursor"`
	TotalCount int64   `json:"totalCount"`
}

// Assembler оркестрирует выдачу ленты: кэш -> запрос -> join -> фильтр по
// графу -> заполнение кэша -> курсор.
type Assembler struct {
	store storage.Storage
	cache cache.Cache
	gate  *relation.Gate
	cfg   Config
	log   zerolog.Logger
}

// NewAssembler создает сборщик лент.
func NewAssembler(store storage.Storage, c cache.Cache, gate *relation.Gate, cfg Config, log zerolog.Logger) *Assembler {
	if cfg.DefaultPageSize == 0 {
		cfg.DefaultPageSize = DefaultConfig().DefaultPageSize
	}
	if cfg.HeadTTL == 0 {
		cfg.HeadTTL = DefaultConfig().HeadTTL
	}
	if cfg.PageTTL == 0 {
		cfg.PageTTL = DefaultConfig().PageTTL
	}
	return &Assembler{
		store: store,
		cache: c,
		gate:  gate,
		cfg:   cfg,
		log:   log.With().Str("component", "feed").Logger(),
	}
}

// audienceKey различает варианты профильной выборки: собственный профиль
// включает self-only, профиль при активной подписке расширен fans-only.
// Кэшировать их под общим со "случайным прохожим" ключом нельзя - страница,
// записанная автором, утекла бы постороннему с тем же курсором.
func audienceKey(own, follows bool) string {
	switch {
	case own:
		return ":own"
	case follows:
		return ":fan"
	default:
		return ""
	}
}

func cacheKey(req Request, own, follows bool) string {
	return fmt.Sprintf("feed:%s:%s:%d%s", req.Type, req.ScopeID, req.Cursor, audienceKey(own, follows))
}

// profileAudience определяет вариант профильной выборки для requester.
// Для остальных типов лент выборка от requester не зависит.
func (a *Assembler) profileAudience(ctx context.Context, req Request) (own, follows bool) {
	if req.Type != TypeProfile || req.RequesterID == "" {
		return false, false
	}
	if req.RequesterID == req.ScopeID {
		return true, false
	}
	follows, err := a.gate.Follows(ctx, req.RequesterID, req.ScopeID)
	if err != nil {
		// деградация как "не подписан": лента сузится, но не упадёт
		a.log.Warn().Err(err).Msg("follow status lookup failed, treating as none")
		return false, false
	}
	return false, follows
}

// Feed возвращает страницу ленты для запроса.
//
// Голова ленты (без курсора) всегда читается мимо кэша: свежесть первой
// страницы важнее экономии запроса. Исторические страницы ограничены
// курсором и читаются из кэша, пока TTL не истёк. Сбой кэша деградирует
// в чтение хранилища и никогда не валит запрос.
func (a *Assembler) Feed(ctx context.Context, req Request) (*Page, error) {
	if req.PageSize <= 0 {
		req.PageSize = a.cfg.DefaultPageSize
	}
	var role domain.Role = domain.RoleUser
	if req.RequesterID != "" {
		if u, err := a.store.GetUserByID(ctx, req.RequesterID); err == nil {
			role = u.Role
		}
	}

	own, follows := a.profileAudience(ctx, req)
	key := cacheKey(req, own, follows)
	if req.Cursor != 0 {
		if raw, ok := a.cache.Get(ctx, key); ok {
			var cached cachedPage
			if err := json.Unmarshal(raw, &cached); err == nil {
				return a.personalize(ctx, req, role, &cached)
			}
			a.log.Warn().Str("key", key).Msg("cache entry unreadable, falling back to store")
		}
	}

	query, err := a.buildQuery(ctx, req, own, follows)
	if err != nil {
		return nil, err
	}

	total, err := a.store.CountPosts(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}
	posts, err := a.store.QueryPosts(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}

	items, err := a.join(ctx, posts)
	if err != nil {
		return nil, err
	}

	cached := &cachedPage{Items: items, TotalCount: total}
	if len(posts) > 0 {
		last := posts[len(posts)-1].PublicTime
		cached.NextCursor = &last
	}

	// Кэшируем только непустые страницы; TTL головы короткий, историческая
	// страница ограничена курсором и живёт дольше.
	if len(items) > 0 {
		ttl := a.cfg.PageTTL
		if req.Cursor == 0 {
			ttl = a.cfg.HeadTTL
		}
		if raw, err := json.Marshal(cached); err == nil {
			a.cache.Set(ctx, key, raw, ttl)
		}
	}

	return a.personalize(ctx, req, role, cached)
}

// join подмешивает краткие данные автора и круга через дата-лоадеры:
// один батч-запрос на страницу вместо N+1.
func (a *Assembler) join(ctx context.Context, posts []*domain.Post) ([]*Item, error) {
	loaders := dataloader.For(ctx)
	if loaders == nil {
		loaders = dataloader.New(a.store)
	}

	items := make([]*Item, 0, len(posts))
	for _, p := range posts {
		item := &Item{Post: p}
		author, err := loaders.LoadAuthor(ctx, p.AuthorID)
		if err != nil {
			return nil, fmt.Errorf("load author %s: %w", p.AuthorID, err)
		}
		item.Author = author
		if p.CircleID != "" {
			circle, err := loaders.LoadCircle(ctx, p.CircleID)
			if err != nil {
				return nil, fmt.Errorf("load circle %s: %w", p.CircleID, err)
			}
			item.Circle = circle
		}
		items = append(items, item)
	}
	return items, nil
}

// personalize применяет пост-фильтр графа отношений и выставляет
// likedByViewer. Данные блокировок живут вне коллекции постов, поэтому
// фильтр выполняется после выборки; страница может законно стать короче
// запрошенной.
func (a *Assembler) personalize(ctx context.Context, req Request, role domain.Role, cached *cachedPage) (*Page, error) {
	posts := make([]*domain.Post, len(cached.Items))
	byID := make(map[string]*Item, len(cached.Items))
	for i, item := range cached.Items {
		posts[i] = item.Post
		byID[item.Post.ID] = item
	}

	visible, err := a.gate.FilterAuthors(ctx, req.RequesterID, role, posts)
	if err != nil {
		return nil, fmt.Errorf("relation filter: %w", err)
	}

	items := make([]*Item, 0, len(visible))
	for _, p := range visible {
		item := byID[p.ID]
		item.LikedByViewer = req.RequesterID != "" && p.LikedBy(req.RequesterID)
		items = append(items, item)
	}

	return &Page{
		Items:      items,
		NextCursor: cached.NextCursor,
		TotalCount: cached.TotalCount,
	}, nil
}

// InvalidateHeads сбрасывает головы лент, затронутых новой публикацией.
func (a *Assembler) InvalidateHeads(ctx context.Context, post *domain.Post) {
	a.cache.Expire(ctx, cacheKey(Request{Type: TypeSquare}, false, false))
	if post.CircleID != "" {
		a.cache.Expire(ctx, cacheKey(Request{Type: TypeCircle, ScopeID: post.CircleID}, false, false))
		if post.CircleID == a.cfg.AnnouncementCircleID {
			a.cache.Expire(ctx, cacheKey(Request{Type: TypeAnnouncement}, false, false))
		}
	}
	// профильная голова хранится в трёх вариантах выборки
	profile := Request{Type: TypeProfile, ScopeID: post.AuthorID}
	a.cache.Expire(ctx, cacheKey(profile, false, false))
	a.cache.Expire(ctx, cacheKey(profile, false, true))
	a.cache.Expire(ctx, cacheKey(profile, true, false))
}
