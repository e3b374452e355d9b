package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"relaybot/internal/model"
	logx "relaybot/pkg/logx"
)

const (
	colPosts        = "posts"
	colSchedules    = "schedules"
	colStates       = "conversation_states"
	colDestinations = "destinations"
	colSettings     = "settings"

	footerDocID = "footer"
)

type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    logx.Logger
}

func openMongo(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	dbName := cfg.Database
	if dbName == "" {
		dbName = "relaybot"
	}
	s := &mongoStore{client: client, db: client.Database(dbName), log: log}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	log.Info("storage: mongo connected", logx.String("database", dbName))
	return s, nil
}

func (s *mongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(colPosts).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.db.Collection(colSchedules).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		{Keys: bson.D{{Key: "is_active", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.db.Collection(colStates).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "last_activity_at", Value: 1}}},
	})
	return err
}

func (s *mongoStore) SavePost(ctx context.Context, p *model.Post) error {
	_, err := s.db.Collection(colPosts).ReplaceOne(ctx,
		bson.M{"_id": p.ID}, p, options.Replace().SetUpsert(true))
	return err
}

func (s *mongoStore) PostsByOwner(ctx context.Context, ownerID int64) ([]model.Post, error) {
	cur, err := s.db.Collection(colPosts).Find(ctx,
		bson.M{"owner_id": ownerID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []model.Post
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *mongoStore) PostsByIDs(ctx context.Context, ids []string) ([]model.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.db.Collection(colPosts).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var found []model.Post
	if err := cur.All(ctx, &found); err != nil {
		return nil, err
	}
	byID := make(map[string]model.Post, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]model.Post, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *mongoStore) DeletePost(ctx context.Context, id string, ownerID int64) error {
	res, err := s.db.Collection(colPosts).DeleteOne(ctx, bson.M{"_id": id, "owner_id": ownerID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoStore) SaveSchedule(ctx context.Context, sc *model.Schedule) error {
	_, err := s.db.Collection(colSchedules).ReplaceOne(ctx,
		bson.M{"_id": sc.ID}, sc, options.Replace().SetUpsert(true))
	return err
}

func (s *mongoStore) SchedulesByOwner(ctx context.Context, ownerID int64) ([]model.Schedule, error) {
	cur, err := s.db.Collection(colSchedules).Find(ctx,
		bson.M{"owner_id": ownerID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []model.Schedule
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *mongoStore) ActiveSchedules(ctx context.Context) ([]model.Schedule, error) {
	cur, err := s.db.Collection(colSchedules).Find(ctx,
		bson.M{"is_active": true},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []model.Schedule
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *mongoStore) SetLastExecuted(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.Collection(colSchedules).UpdateOne(ctx,
		bson.M{"_id": id}, bson.M{"$set": bson.M{"last_executed_at": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoStore) ToggleSchedule(ctx context.Context, id string, ownerID int64) (bool, error) {
	// Single round trip: flip via aggregation pipeline update and read back.
	var updated model.Schedule
	err := s.db.Collection(colSchedules).FindOneAndUpdate(ctx,
		bson.M{"_id": id, "owner_id": ownerID},
		mongo.Pipeline{
			{{Key: "$set", Value: bson.M{"is_active": bson.M{"$not": "$is_active"}}}},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err == mongo.ErrNoDocuments {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return updated.IsActive, nil
}

func (s *mongoStore) DeleteSchedule(ctx context.Context, id string, ownerID int64) error {
	res, err := s.db.Collection(colSchedules).DeleteOne(ctx, bson.M{"_id": id, "owner_id": ownerID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoStore) PutState(ctx context.Context, st *model.ConvState) error {
	_, err := s.db.Collection(colStates).ReplaceOne(ctx,
		bson.M{"_id": st.OwnerID}, st, options.Replace().SetUpsert(true))
	return err
}

func (s *mongoStore) GetState(ctx context.Context, ownerID int64) (*model.ConvState, error) {
	var st model.ConvState
	err := s.db.Collection(colStates).FindOne(ctx, bson.M{"_id": ownerID}).Decode(&st)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *mongoStore) ClearState(ctx context.Context, ownerID int64) error {
	_, err := s.db.Collection(colStates).DeleteOne(ctx, bson.M{"_id": ownerID})
	return err
}

func (s *mongoStore) DeleteIdleStates(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.Collection(colStates).DeleteMany(ctx,
		bson.M{"last_activity_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (s *mongoStore) AddDestination(ctx context.Context, id int64) error {
	_, err := s.db.Collection(colDestinations).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$setOnInsert": bson.M{"added_at": time.Now()}},
		options.Update().SetUpsert(true))
	return err
}

func (s *mongoStore) RemoveDestination(ctx context.Context, id int64) error {
	res, err := s.db.Collection(colDestinations).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoStore) Destinations(ctx context.Context) ([]model.Destination, error) {
	cur, err := s.db.Collection(colDestinations).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "added_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []model.Destination
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *mongoStore) Footer(ctx context.Context) (string, error) {
	var doc struct {
		Text string `bson:"text"`
	}
	err := s.db.Collection(colSettings).FindOne(ctx, bson.M{"_id": footerDocID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return doc.Text, nil
}

func (s *mongoStore) SetFooter(ctx context.Context, text string) error {
	_, err := s.db.Collection(colSettings).UpdateOne(ctx,
		bson.M{"_id": footerDocID},
		bson.M{"$set": bson.M{"text": text, "updated_at": time.Now()}},
		options.Update().SetUpsert(true))
	return err
}

func (s *mongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
