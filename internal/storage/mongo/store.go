package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UkralStul/social-feed-service/internal/domain"
	"github.com/UkralStul/social-feed-service/internal/storage"
	"github.com/google/uuid"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store реализует интерфейс Storage с использованием MongoDB.
type Store struct {
	posts    *mongo.Collection
	circles  *mongo.Collection
	users    *mongo.Collection
	follows  *mongo.Collection
	blocks   *mongo.Collection
	mutes    *mongo.Collection
	activity *mongo.Collection
}

// New создает новый экземпляр хранилища MongoDB.
func New(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := client.Database(dbName)
	s := &Store{
		posts:    db.Collection("posts"),
		circles:  db.Collection("circles"),
		users:    db.Collection("users"),
		follows:  db.Collection("follows"),
		blocks:   db.Collection("blocks"),
		mutes:    db.Collection("mutes"),
		activity: db.Collection("activity"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

// ensureIndexes создает индексы под запросы лент и графа отношений.
func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.posts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "circleId", Value: 1}, {Key: "publicTime", Value: -1}}},
		{Keys: bson.D{{Key: "authorId", Value: 1}, {Key: "publicTime", Value: -1}}},
		{Keys: bson.D{{Key: "topics", Value: 1}, {Key: "publicTime", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.follows.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "followerId", Value: 1}, {Key: "followeeId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = s.blocks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "subjectId", Value: 1}, {Key: "targetId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	// Частичный уникальный индекс: дедупликация только у записей с ключом.
	_, err = s.activity.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "dedupeKey", Value: 1}},
		Options: options.Index().SetUnique(true).
			SetPartialFilterExpression(bson.M{"dedupeKey": bson.M{"$type": "string"}}),
	})
	return err
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.LikeIDs == nil {
		post.LikeIDs = []string{}
	}
	if _, err := s.posts.InsertOne(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	var post domain.Post
	err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NotFound(domain.CodePostNotFound, "post "+id+" not found")
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// postFilter переводит PostQuery в фильтр документов.
func postFilter(q storage.PostQuery) bson.M {
	filter := bson.M{}
	if q.CircleID != "" {
		filter["circleId"] = q.CircleID
	}
	if q.AuthorID != "" {
		filter["authorId"] = q.AuthorID
	}
	if q.Topic != "" {
		filter["topics"] = q.Topic
	}
	if len(q.Visibility) > 0 {
		filter["visibility"] = bson.M{"$in": q.Visibility}
	}
	if q.MaxRiskLevel > 0 {
		filter["riskLevel"] = bson.M{"$lt": q.MaxRiskLevel}
	}
	if q.ExcludeForwards {
		filter["forwardOfPostId"] = bson.M{"$in": bson.A{nil, ""}}
	}
	if q.PinnedOnly {
		filter["pinnedTime"] = bson.M{"$gt": 0}
	}
	if q.Before > 0 {
		filter["publicTime"] = bson.M{"$lt": q.Before}
	}
	filter["isDeleted"] = false
	return filter
}

func (s *Store) QueryPosts(ctx context.Context, q storage.PostQuery) ([]*domain.Post, error) {
	sort := bson.D{{Key: "publicTime", Value: -1}}
	if q.PinnedFirst {
		sort = bson.D{{Key: "pinnedTime", Value: -1}, {Key: "publicTime", Value: -1}}
	}
	opts := options.Find().SetSort(sort)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.posts.Find(ctx, postFilter(q), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	posts := make([]*domain.Post, 0)
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *Store) CountPosts(ctx context.Context, q storage.PostQuery) (int64, error) {
	// Курсор в подсчёт не входит: клиенту нужен общий размер ленты.
	q.Before = 0
	return s.posts.CountDocuments(ctx, postFilter(q))
}

func (s *Store) AddLike(ctx context.Context, postID, actorID string) error {
	// Фильтр по likeIds делает инкремент счётчика условным: повторный
	// лайк не меняет ни множество, ни счётчик.
	res, err := s.posts.UpdateOne(ctx,
		bson.M{"_id": postID, "likeIds": bson.M{"$ne": actorID}},
		bson.M{"$push": bson.M{"likeIds": actorID}, "$inc": bson.M{"likeCount": 1}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return s.ensurePostExists(ctx, postID)
	}
	return nil
}

func (s *Store) RemoveLike(ctx context.Context, postID, actorID string) error {
	res, err := s.posts.UpdateOne(ctx,
		bson.M{"_id": postID, "likeIds": actorID},
		bson.M{"$pull": bson.M{"likeIds": actorID}, "$inc": bson.M{"likeCount": -1}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return s.ensurePostExists(ctx, postID)
	}
	return nil
}

// ensurePostExists различает "пост не найден" и "условие не совпало".
func (s *Store) ensurePostExists(ctx context.Context, postID string) error {
	n, err := s.posts.CountDocuments(ctx, bson.M{"_id": postID})
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound(domain.CodePostNotFound, "post "+postID+" not found")
	}
	return nil
}

func (s *Store) SetPostVisibility(ctx context.Context, postID string, v domain.VisibilityState) error {
	res, err := s.posts.UpdateOne(ctx,
		bson.M{"_id": postID},
		bson.M{"$set": bson.M{"visibility": v}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.NotFound(domain.CodePostNotFound, "post "+postID+" not found")
	}
	return nil
}

func (s *Store) PassPendingPosts(ctx context.Context, authorID string) (int64, error) {
	res, err := s.posts.UpdateMany(ctx,
		bson.M{"authorId": authorID, "verificationState": domain.VerificationPending},
		bson.M{"$set": bson.M{
			"visibility":        domain.VisibilityAll,
			"verificationState": domain.VerificationPassed,
		}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// === Circle Methods ===

func (s *Store) CreateCircle(ctx context.Context, circle *domain.Circle) (*domain.Circle, error) {
	if circle.ID == "" {
		circle.ID = uuid.NewString()
	}
	if _, err := s.circles.InsertOne(ctx, circle); err != nil {
		return nil, err
	}
	return circle, nil
}

func (s *Store) GetCircleByID(ctx context.Context, id string) (*domain.Circle, error) {
	var circle domain.Circle
	err := s.circles.FindOne(ctx, bson.M{"_id": id}).Decode(&circle)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NotFound(domain.CodeCircleNotFound, "circle "+id+" not found")
	}
	if err != nil {
		return nil, err
	}
	return &circle, nil
}

func (s *Store) AddCircleCharge(ctx context.Context, circleID string, delta int64) error {
	res, err := s.circles.UpdateOne(ctx,
		bson.M{"_id": circleID},
		bson.M{"$inc": bson.M{"chargeCount": delta}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.NotFound(domain.CodeCircleNotFound, "circle "+circleID+" not found")
	}
	return nil
}

func (s *Store) GetCircleSummaries(ctx context.Context, ids []string) (map[string]*domain.CircleSummary, error) {
	cursor, err := s.circles.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	result := make(map[string]*domain.CircleSummary, len(ids))
	for cursor.Next(ctx) {
		var summary domain.CircleSummary
		if err := cursor.Decode(&summary); err != nil {
			return nil, err
		}
		result[summary.ID] = &summary
	}
	return result, cursor.Err()
}

// === User Methods ===

func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if _, err := s.users.InsertOne(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NotFound(domain.CodeUserNotFound, "user "+id+" not found")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserSummaries(ctx context.Context, ids []string) (map[string]*domain.UserSummary, error) {
	cursor, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	result := make(map[string]*domain.UserSummary, len(ids))
	for cursor.Next(ctx) {
		var summary domain.UserSummary
		if err := cursor.Decode(&summary); err != nil {
			return nil, err
		}
		result[summary.ID] = &summary
	}
	return result, cursor.Err()
}

func (s *Store) AddUserCharge(ctx context.Context, userID string, delta int64) error {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$inc": bson.M{"chargeCount": delta}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.NotFound(domain.CodeUserNotFound, "user "+userID+" not found")
	}
	return nil
}

func (s *Store) PromoteVerified(ctx context.Context, userID string) (bool, error) {
	// compare-and-set на документе: фильтр по статусу гарантирует, что
	// при гонке продвижение сработает ровно один раз.
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID, "status": domain.AccountProbationary},
		bson.M{"$set": bson.M{"status": domain.AccountVerified}},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		n, err := s.users.CountDocuments(ctx, bson.M{"_id": userID})
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, domain.NotFound(domain.CodeUserNotFound, "user "+userID+" not found")
		}
		return false, nil
	}
	return true, nil
}

func (s *Store) ListBannedUserIDs(ctx context.Context) ([]string, error) {
	cursor, err := s.users.Find(ctx,
		bson.M{"status": domain.AccountBanned},
		options.Find().SetProjection(bson.M{"_id": 1}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cursor.Err()
}

// === Relation Graph Methods ===

func (s *Store) AddFollow(ctx context.Context, followerID, followeeID string) error {
	_, err := s.follows.UpdateOne(ctx,
		bson.M{"followerId": followerID, "followeeId": followeeID},
		bson.M{"$setOnInsert": bson.M{"status": 1, "createdAt": time.Now()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *Store) RemoveFollow(ctx context.Context, followerID, followeeID string) error {
	_, err := s.follows.DeleteOne(ctx, bson.M{"followerId": followerID, "followeeId": followeeID})
	return err
}

func (s *Store) HasFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	n, err := s.follows.CountDocuments(ctx, bson.M{"followerId": followerID, "followeeId": followeeID})
	return n > 0, err
}

func (s *Store) AddBlock(ctx context.Context, subjectID, targetID string) error {
	_, err := s.blocks.UpdateOne(ctx,
		bson.M{"subjectId": subjectID, "targetId": targetID},
		bson.M{"$setOnInsert": bson.M{"createdAt": time.Now()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *Store) RemoveBlock(ctx context.Context, subjectID, targetID string) error {
	_, err := s.blocks.DeleteOne(ctx, bson.M{"subjectId": subjectID, "targetId": targetID})
	return err
}

func (s *Store) HasBlock(ctx context.Context, subjectID, targetID string) (bool, error) {
	n, err := s.blocks.CountDocuments(ctx, bson.M{"subjectId": subjectID, "targetId": targetID})
	return n > 0, err
}

// === Mute Methods ===

func (s *Store) AddMute(ctx context.Context, subjectID, targetID string, kind domain.MuteKind) error {
	_, err := s.mutes.UpdateOne(ctx,
		bson.M{"subjectId": subjectID, "targetId": targetID, "kind": kind},
		bson.M{"$setOnInsert": bson.M{"createdAt": time.Now()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *Store) RemoveMutePair(ctx context.Context, subjectID, targetID string) error {
	_, err := s.mutes.DeleteMany(ctx, bson.M{"subjectId": subjectID, "targetId": targetID})
	return err
}

func (s *Store) ListMutedTargets(ctx context.Context, subjectID string) ([]string, error) {
	return s.muteIDs(ctx,
		bson.M{"subjectId": subjectID, "kind": domain.MuteHideFromMe},
		"targetId",
	)
}

func (s *Store) ListMutedBySubjects(ctx context.Context, targetID string) ([]string, error) {
	return s.muteIDs(ctx,
		bson.M{"targetId": targetID, "kind": domain.MuteHideFromHer},
		"subjectId",
	)
}

func (s *Store) muteIDs(ctx context.Context, filter bson.M, field string) ([]string, error) {
	cursor, err := s.mutes.Find(ctx, filter, options.Find().SetProjection(bson.M{field: 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		if id, ok := doc[field].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, cursor.Err()
}

// === Activity Methods ===

func (s *Store) FindLikeRecord(ctx context.Context, postID, from, to string) (*domain.ActivityRecord, error) {
	var rec domain.ActivityRecord
	err := s.activity.FindOne(ctx, bson.M{
		"type":   domain.ActivityLike,
		"postId": postID,
		"from":   from,
		"to":     to,
	}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) RetractLikeRecord(ctx context.Context, postID, from, to string) error {
	_, err := s.activity.UpdateMany(ctx,
		bson.M{
			"type":   domain.ActivityLike,
			"postId": postID,
			"from":   from,
			"to":     to,
			"status": domain.ActivityActive,
		},
		bson.M{"$set": bson.M{"status": domain.ActivityRetracted}},
	)
	return err
}

func (s *Store) FindChargeSince(ctx context.Context, from, to string, since int64) (*domain.ActivityRecord, error) {
	var rec domain.ActivityRecord
	err := s.activity.FindOne(ctx, bson.M{
		"type":      domain.ActivityCharge,
		"from":      from,
		"to":        to,
		"createdAt": bson.M{"$gte": since},
	}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) TouchCharge(ctx context.Context, from, to string, now int64) error {
	// Накопительная запись пары: createdAt сдвигается на сейчас,
	// chargeTotal растёт. Upsert создаёт запись при первой зарядке.
	_, err := s.activity.UpdateOne(ctx,
		bson.M{"type": domain.ActivityCharge, "from": from, "to": to},
		bson.M{
			"$set":         bson.M{"createdAt": now},
			"$inc":         bson.M{"chargeTotal": 1},
			"$setOnInsert": bson.M{"_id": uuid.NewString(), "status": domain.ActivityActive},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *Store) AddActivityOnce(ctx context.Context, rec *domain.ActivityRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	res, err := s.activity.UpdateOne(ctx,
		bson.M{"dedupeKey": rec.DedupeKey},
		bson.M{"$setOnInsert": rec},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return res.UpsertedCount > 0, nil
}
