package dataloader

import (
	"context"
	"net/http"
	"time"

	"github.com/UkralStul/social-feed-service/internal/domain"
	"github.com/UkralStul/social-feed-service/internal/storage"
	"github.com/graph-gophers/dataloader"
)

type contextKey string

const key = contextKey("dataloaders")

// Loaders содержит все дата-лоадеры приложения. Сборщик ленты подмешивает
// в страницу краткие данные автора и круга; лоадеры схлопывают эти
// выборки в один батч-запрос к хранилищу на страницу.
type Loaders struct {
	AuthorByID *dataloader.Loader
	CircleByID *dataloader.Loader
}

// New создает лоадеры поверх хранилища.
func New(store storage.Storage) *Loaders {
	authorBatch := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]string, len(keys))
		for i, k := range keys {
			ids[i] = k.String()
		}

		// Один запрос к хранилищу на весь батч
		summaries, err := store.GetUserSummaries(ctx, ids)
		if err != nil {
			return errResults(len(keys), err)
		}

		// Результаты в том же порядке, что и ключи
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			results[i] = &dataloader.Result{Data: summaries[id]}
		}
		return results
	}

	circleBatch := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]string, len(keys))
		for i, k := range keys {
			ids[i] = k.String()
		}

		summaries, err := store.GetCircleSummaries(ctx, ids)
		if err != nil {
			return errResults(len(keys), err)
		}

		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			results[i] = &dataloader.Result{Data: summaries[id]}
		}
		return results
	}

	return &Loaders{
		AuthorByID: dataloader.NewBatchedLoader(authorBatch, dataloader.WithWait(time.Millisecond*1)),
		CircleByID: dataloader.NewBatchedLoader(circleBatch, dataloader.WithWait(time.Millisecond*1)),
	}
}

func errResults(n int, err error) []*dataloader.Result {
	// В случае ошибки возвращаем ее для всех ключей
	results := make([]*dataloader.Result, n)
	for i := range results {
		results[i] = &dataloader.Result{Error: err}
	}
	return results
}

// Middleware для внедрения лоадеров в контекст запроса. Лоадеры живут один
// запрос, поэтому их кэш не успевает протухнуть.
func Middleware(store storage.Storage, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), key, New(store))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// For извлекает лоадеры из контекста; nil, если middleware не отработал.
func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(key).(*Loaders)
	return loaders
}

// LoadAuthor возвращает краткие данные автора через лоадер.
func (l *Loaders) LoadAuthor(ctx context.Context, id string) (*domain.UserSummary, error) {
	v, err := l.AuthorByID.Load(ctx, dataloader.StringKey(id))()
	if err != nil {
		return nil, err
	}
	summary, _ := v.(*domain.UserSummary)
	return summary, nil
}

// LoadCircle возвращает краткие данные круга через лоадер.
func (l *Loaders) LoadCircle(ctx context.Context, id string) (*domain.CircleSummary, error) {
	v, err := l.CircleByID.Load(ctx, dataloader.StringKey(id))()
	if err != nil {
		return nil, err
	}
	summary, _ := v.(*domain.CircleSummary)
	return summary, nil
}
