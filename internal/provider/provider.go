package provider

import (
	"context"
	"sync"

	"github.com/UkralStul/social-feed-service/internal/domain"
	"github.com/rs/zerolog"
)

// Authenticator превращает токен вызывающего в непрозрачный стабильный
// identity id. Формат токена - деталь провайдера, внутри сервиса он не
// разбирается.
type Authenticator interface {
	Identify(ctx context.Context, token string) (string, error)
}

// Notification - сообщение для fire-and-forget доставки.
type Notification struct {
	To      string
	Kind    domain.ActivityType
	Message string
	Key     string // стабильный ключ дедупликации
}

// Notifier принимает сообщения в очередь доставки. Вызовы никогда не
// ожидаются ради корректности: сбой доставки логируется и не влияет на
// результат операции.
type Notifier interface {
	Enqueue(ctx context.Context, n Notification) error
}

// Moderator - бинарный гейт контента перед публикацией. Отказоустойчивость
// fail-closed: ошибка провайдера отклоняет публикацию, а не пропускает её.
type Moderator interface {
	Review(ctx context.Context, content string) (bool, error)
}

// StaticAuthenticator - карта token -> identity для dev-режима и тестов.
type StaticAuthenticator map[string]string

func (a StaticAuthenticator) Identify(_ context.Context, token string) (string, error) {
	id, ok := a[token]
	if !ok {
		return "", domain.Authorization(domain.CodeNotPermitted, "unknown token")
	}
	return id, nil
}

// PassthroughAuthenticator трактует сам токен как identity id.
// Используется, пока реальный провайдер аутентификации не подключен.
type PassthroughAuthenticator struct{}

func (PassthroughAuthenticator) Identify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.Authorization(domain.CodeNotPermitted, "missing token")
	}
	return token, nil
}

// LogNotifier пишет уведомления в лог вместо внешней очереди.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Enqueue(_ context.Context, msg Notification) error {
	n.Log.Info().
		Str("to", msg.To).
		Int("kind", int(msg.Kind)).
		Str("key", msg.Key).
		Msg("notification enqueued")
	return nil
}

// RecordingNotifier накапливает уведомления в памяти; используется тестами.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *RecordingNotifier) Enqueue(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

// Sent возвращает снимок отправленных уведомлений.
func (n *RecordingNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

// AllowAllModerator пропускает любой контент. Годится только для dev/тестов.
type AllowAllModerator struct{}

func (AllowAllModerator) Review(context.Context, string) (bool, error) { return true, nil }
