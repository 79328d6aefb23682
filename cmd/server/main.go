package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/UkralStul/social-feed-service/internal/cache"
	"github.com/UkralStul/social-feed-service/internal/domain"
	"github.com/UkralStul/social-feed-service/internal/engagement"
	"github.com/UkralStul/social-feed-service/internal/feed"
	"github.com/UkralStul/social-feed-service/internal/provider"
	"github.com/UkralStul/social-feed-service/internal/publish"
	"github.com/UkralStul/social-feed-service/internal/relation"
	"github.com/UkralStul/social-feed-service/internal/server"
	"github.com/UkralStul/social-feed-service/internal/storage"
	"github.com/UkralStul/social-feed-service/internal/storage/inmemory"
	mongostore "github.com/UkralStul/social-feed-service/internal/storage/mongo"
	"github.com/UkralStul/social-feed-service/internal/verification"
	"github.com/UkralStul/social-feed-service/internal/visibility"
	"github.com/rs/zerolog"
)

const defaultPort = "8080"

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("LOG_PRETTY") != "" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	storageType := flag.String("storage", "in-memory", "Storage type (in-memory or mongo)")
	flag.Parse()

	log.Info().Str("storage", *storageType).Msg("starting server")

	var store storage.Storage
	cfg := feed.DefaultConfig()

	if *storageType == "mongo" {
		uri := os.Getenv("MONGO_URI")
		if uri == "" {
			log.Fatal().Msg("MONGO_URI must be set for mongo storage")
		}
		dbName := os.Getenv("MONGO_DB")
		if dbName == "" {
			dbName = "feed"
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoStore, err := mongostore.New(ctx, uri, dbName)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mongo")
		}
		store = mongoStore
		cfg.OnboardingCircleID = os.Getenv("ONBOARDING_CIRCLE_ID")
		cfg.AnnouncementCircleID = os.Getenv("ANNOUNCEMENT_CIRCLE_ID")
	} else {
		memStore := inmemory.New()
		// Заполним данными для тестов
		cfg = fillWithMockData(memStore, cfg, log)
		store = memStore
	}

	var c cache.Cache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c = cache.NewRedis(addr, log)
	} else {
		c = cache.NewMemory()
	}

	gate := relation.NewGate(store, c, log)
	checker := visibility.NewChecker(gate)
	assembler := feed.NewAssembler(store, c, gate, cfg, log)
	notifier := provider.LogNotifier{Log: log}
	verifier := verification.NewGate(store, notifier, log)
	eng := engagement.NewService(store, gate, verifier, notifier, log)
	publisher := publish.NewService(store, provider.AllowAllModerator{}, assembler, cfg, log)

	auth := buildAuthenticator()
	srv := server.New(store, assembler, eng, publisher, gate, checker, auth, log)

	log.Info().Str("port", port).Msg("listening")
	if err := http.ListenAndServe(":"+port, srv.Router()); err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

// buildAuthenticator собирает резолвер токенов. AUTH_TOKENS задает пары
// token:userId через запятую; без него токен трактуется как сам id
// (режим для локальной разработки).
func buildAuthenticator() provider.Authenticator {
	raw := os.Getenv("AUTH_TOKENS")
	if raw == "" {
		return provider.PassthroughAuthenticator{}
	}
	tokens := make(provider.StaticAuthenticator)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) == 2 {
			tokens[parts[0]] = parts[1]
		}
	}
	return tokens
}

func fillWithMockData(s *inmemory.Store, cfg feed.Config, log zerolog.Logger) feed.Config {
	ctx := context.Background()
	now := time.Now().UnixMilli()

	// 1. Круги: обычный, доска объявлений и круг новичков.
	circle, err := s.CreateCircle(ctx, &domain.Circle{
		Title:             "Городские истории",
		DefaultVisibility: domain.VisibilityAll,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create circle")
	}
	announcements, err := s.CreateCircle(ctx, &domain.Circle{
		Title:             "Объявления",
		DefaultVisibility: domain.VisibilityAll,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create announcements circle")
	}
	onboarding, err := s.CreateCircle(ctx, &domain.Circle{
		Title:             "Новички",
		DefaultVisibility: domain.VisibilityAll,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create onboarding circle")
	}
	cfg.AnnouncementCircleID = announcements.ID
	cfg.OnboardingCircleID = onboarding.ID

	// 2. Пользователи: верифицированный автор, новичок и модератор.
	author, err := s.CreateUser(ctx, &domain.User{
		ID: "user-1", NickName: "Алиса", Status: domain.AccountVerified, Role: domain.RoleUser,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create user")
	}
	newcomer, err := s.CreateUser(ctx, &domain.User{
		ID: "user-2", NickName: "Боб", Status: domain.AccountProbationary, Role: domain.RoleUser,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create newcomer")
	}
	_, err = s.CreateUser(ctx, &domain.User{
		ID: "mod-1", NickName: "Модератор", Status: domain.AccountVerified, Role: domain.RoleModerator,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create moderator")
	}

	// 3. Посты: обычный в круге и проверочный пост новичка.
	post, err := s.CreatePost(ctx, &domain.Post{
		AuthorID:   author.ID,
		CircleID:   circle.ID,
		Content:    "Первый пост в городских историях.",
		PublicTime: now - 60_000,
		Visibility: domain.VisibilityAll,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create post")
	}
	_, err = s.CreatePost(ctx, &domain.Post{
		AuthorID:     newcomer.ID,
		CircleID:     onboarding.ID,
		Content:      "Привет! Это мой проверочный пост.",
		PublicTime:   now - 30_000,
		Visibility:   domain.VisibilityCirclePending,
		Verification: domain.VerificationPending,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create pending post")
	}

	log.Info().
		Str("circleId", circle.ID).
		Str("postId", post.ID).
		Msg("mock data filled successfully")
	return cfg
}
