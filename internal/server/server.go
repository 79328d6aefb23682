package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/UkralStul/social-feed-service/internal/dataloader"
	"github.com/UkralStul/social-feed-service/internal/domain"
	"github.com/UkralStul/social-feed-service/internal/engagement"
	"github.com/UkralStul/social-feed-service/internal/feed"
	"github.com/UkralStul/social-feed-service/internal/provider"
	"github.com/UkralStul/social-feed-service/internal/publish"
	"github.com/UkralStul/social-feed-service/internal/relation"
	"github.com/UkralStul/social-feed-service/internal/storage"
	"github.com/UkralStul/social-feed-service/internal/visibility"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type contextKey string

const identityKey = contextKey("identity")

// Server связывает HTTP-слой с компонентами движка ленты.
type Server struct {
	store      storage.Storage
	assembler  *feed.Assembler
	engagement *engagement.Service
	publisher  *publish.Service
	gate       *relation.Gate
	checker    *visibility.Checker
	auth       provider.Authenticator
	log        zerolog.Logger
}

// New создает HTTP-сервер поверх собранных компонентов.
func New(
	store storage.Storage,
	assembler *feed.Assembler,
	eng *engagement.Service,
	publisher *publish.Service,
	gate *relation.Gate,
	checker *visibility.Checker,
	auth provider.Authenticator,
	log zerolog.Logger,
) *Server {
	return &Server{
		store:      store,
		assembler:  assembler,
		engagement: eng,
		publisher:  publisher,
		gate:       gate,
		checker:    checker,
		auth:       auth,
		log:        log.With().Str("component", "http").Logger(),
	}
}

// Router собирает маршруты сервиса.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(s.requestLogger)
	router.Use(s.authenticate)

	router.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/feed", dataloader.Middleware(s.store, http.HandlerFunc(s.handleFeed)))
		r.Get("/posts/{id}", s.handlePostDetail)
		r.Post("/posts", s.handlePublish)
		r.Put("/posts/{id}/visibility", s.handleSetVisibility)
		r.Post("/posts/{id}/like", s.handleLike)
		r.Delete("/posts/{id}/like", s.handleUnlike)
		r.Post("/users/{id}/charge", s.handleCharge)
		r.Post("/users/{id}/follow", s.handleFollow)
		r.Delete("/users/{id}/follow", s.handleUnfollow)
		r.Post("/users/{id}/block", s.handleBlock)
		r.Delete("/users/{id}/block", s.handleUnblock)
	})
	return router
}

// authenticate резолвит Bearer-токен в identity id. Анонимные запросы
// пропускаются: чтение лент доступно без токена, мутации проверяют
// identity сами.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token == r.Header.Get("Authorization") {
			next.ServeHTTP(w, r)
			return
		}
		id, err := s.auth.Identify(r.Context(), token)
		if err != nil {
			s.writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("reqId", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func identityFrom(ctx context.Context) string {
	id, _ := ctx.Value(identityKey).(string)
	return id
}

func requireIdentity(ctx context.Context) (string, error) {
	id := identityFrom(ctx)
	if id == "" {
		return "", domain.Authorization(domain.CodeNotPermitted, "authentication required")
	}
	return id, nil
}

// === Handlers ===

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := feed.Request{
		Type:        feed.Type(q.Get("type")),
		ScopeID:     q.Get("scopeId"),
		RequesterID: identityFrom(r.Context()),
	}
	if req.Type == "" {
		req.Type = feed.TypeSquare
	}
	if raw := q.Get("cursor"); raw != "" {
		cursor, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || cursor < 0 {
			s.writeError(w, domain.Validation(domain.CodeBadRequest, "cursor must be a timestamp"))
			return
		}
		req.Cursor = cursor
	}
	if raw := q.Get("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 0 {
			s.writeError(w, domain.Validation(domain.CodeBadRequest, "invalid pageSize"))
			return
		}
		req.PageSize = size
	}

	page, err := s.assembler.Feed(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) handlePostDetail(w http.ResponseWriter, r *http.Request) {
	post, err := s.store.GetPostByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	viewerID := identityFrom(r.Context())
	visible, err := s.checker.IsVisible(r.Context(), viewerID, post)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !visible {
		// прямой запрос деталей отвечает явным запретом,
		// в отличие от молчаливого исключения из списков
		s.writeError(w, domain.Authorization(domain.CodeNotPermitted, "post is not visible to you"))
		return
	}
	s.writeJSON(w, http.StatusOK, post)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	authorID, err := requireIdentity(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	var body struct {
		CircleID  string   `json:"circleId"`
		Content   string   `json:"content"`
		MediaRefs []string `json:"mediaRefs"`
		Topics    []string `json:"topics"`
		Mentions  []string `json:"mentions"`
		ProofPost bool     `json:"proofPost"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, domain.Validation(domain.CodeBadRequest, "malformed request body"))
		return
	}

	post, err := s.publisher.Publish(r.Context(), publish.Request{
		AuthorID:  authorID,
		CircleID:  body.CircleID,
		Content:   body.Content,
		MediaRefs: body.MediaRefs,
		Topics:    body.Topics,
		Mentions:  body.Mentions,
		ProofPost: body.ProofPost,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, post)
}

// handleSetVisibility - модераторская ручка: перевод поста в скрытые
// состояния и обратно. Обычным ролям запрещена.
func (s *Server) handleSetVisibility(w http.ResponseWriter, r *http.Request) {
	actorID, err := requireIdentity(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	actor, err := s.store.GetUserByID(r.Context(), actorID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !actor.Role.Elevated() {
		s.writeError(w, domain.Authorization(domain.CodeNotPermitted, "moderation role required"))
		return
	}

	var body struct {
		Visibility domain.VisibilityState `json:"visibility"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, domain.Validation(domain.CodeBadRequest, "malformed request body"))
		return
	}
	if body.Visibility < domain.VisibilityAll || body.Visibility > domain.VisibilityFansOnly {
		s.writeError(w, domain.Validation(domain.CodeBadRequest, "unknown visibility state"))
		return
	}

	postID := chi.URLParam(r, "id")
	if err := s.store.SetPostVisibility(r.Context(), postID, body.Visibility); err != nil {
		s.writeError(w, err)
		return
	}
	// скрытие должно отразиться в лентах без ожидания TTL
	if post, err := s.store.GetPostByID(r.Context(), postID); err == nil {
		s.assembler.InvalidateHeads(r.Context(), post)
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, actorID string) error {
		return s.engagement.Like(ctx, chi.URLParam(r, "id"), actorID)
	})
}

func (s *Server) handleUnlike(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, actorID string) error {
		return s.engagement.Unlike(ctx, chi.URLParam(r, "id"), actorID)
	})
}

func (s *Server) handleCharge(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, actorID string) error {
		return s.engagement.Charge(ctx, chi.URLParam(r, "id"), actorID)
	})
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, actorID string) error {
		return s.gate.Follow(ctx, actorID, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, actorID string) error {
		return s.gate.Unfollow(ctx, actorID, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, actorID string) error {
		return s.gate.Block(ctx, actorID, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, actorID string) error {
		return s.gate.Unblock(ctx, actorID, chi.URLParam(r, "id"))
	})
}

// mutate - общий каркас engagement-ручек: identity обязателен, успех
// отвечает {"ok": true}.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actorID string) error) {
	actorID, err := requireIdentity(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := op(r.Context(), actorID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// === Responses ===

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Code: "Internal", Message: "internal error"}

	var e *domain.Error
	if errors.As(err, &e) {
		body = errorBody{Code: e.Code, Message: e.Message}
		switch e.Kind {
		case domain.KindValidation:
			status = http.StatusBadRequest
		case domain.KindNotFound:
			status = http.StatusNotFound
		case domain.KindAuthorization:
			status = http.StatusForbidden
		case domain.KindConflict:
			status = http.StatusConflict
		case domain.KindDependency:
			status = http.StatusBadGateway
		}
	} else {
		s.log.Error().Err(err).Msg("unhandled error")
	}

	s.writeJSON(w, status, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("response encoding failed")
	}
}
