package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo keeps the catalog in four collections: movies, series,
// episodes and operators. Uniqueness of every id and of episode
// (series, season, number) is enforced by indexes, not by this code.
type Mongo struct {
	client    *mongo.Client
	movies    *mongo.Collection
	series    *mongo.Collection
	episodes  *mongo.Collection
	operators *mongo.Collection
}

func NewMongo(ctx context.Context, uri, dbName string) (*Mongo, error) {
	if uri == "" {
		return nil, errors.New("mongodb uri is empty")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	db := client.Database(dbName)
	m := &Mongo{
		client:    client,
		movies:    db.Collection("movies"),
		series:    db.Collection("series"),
		episodes:  db.Collection("episodes"),
		operators: db.Collection("operators"),
	}
	_, _ = m.episodes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "series_id", Value: 1}, {Key: "season", Value: 1}, {Key: "number", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return m, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrConflict
	default:
		return err
	}
}

func (m *Mongo) CreateMovie(ctx context.Context, mv *Movie) error {
	mv.UpdatedAt = time.Now()
	_, err := m.movies.InsertOne(ctx, mv)
	return mapErr(err)
}

func (m *Mongo) Movie(ctx context.Context, id string) (*Movie, error) {
	var mv Movie
	if err := m.movies.FindOne(ctx, bson.M{"_id": id}).Decode(&mv); err != nil {
		return nil, mapErr(err)
	}
	return &mv, nil
}

func (m *Mongo) UpdateMovie(ctx context.Context, mv *Movie) error {
	mv.UpdatedAt = time.Now()
	res, err := m.movies.ReplaceOne(ctx, bson.M{"_id": mv.ID}, mv)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) DeleteMovie(ctx context.Context, id string) error {
	res, err := m.movies.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return mapErr(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) CreateSeries(ctx context.Context, s *Series) error {
	s.UpdatedAt = time.Now()
	_, err := m.series.InsertOne(ctx, s)
	return mapErr(err)
}

func (m *Mongo) Series(ctx context.Context, id string) (*Series, error) {
	var s Series
	if err := m.series.FindOne(ctx, bson.M{"_id": id}).Decode(&s); err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (m *Mongo) UpdateSeries(ctx context.Context, s *Series) error {
	s.UpdatedAt = time.Now()
	res, err := m.series.ReplaceOne(ctx, bson.M{"_id": s.ID}, s)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) DeleteSeries(ctx context.Context, id string) error {
	if _, err := m.episodes.DeleteMany(ctx, bson.M{"series_id": id}); err != nil {
		return mapErr(err)
	}
	res, err := m.series.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return mapErr(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) AddSeason(ctx context.Context, seriesID string, season Season) error {
	// The $ne guard keeps (series, number) unique; Mongo cannot put a
	// unique index on members of an embedded array.
	res, err := m.series.UpdateOne(ctx,
		bson.M{"_id": seriesID, "seasons.number": bson.M{"$ne": season.Number}},
		bson.M{
			"$push": bson.M{"seasons": bson.M{"$each": []Season{season}, "$sort": bson.M{"number": 1}}},
			"$set":  bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		s, err := m.Series(ctx, seriesID)
		if err != nil {
			return err
		}
		if s.Season(season.Number) != nil {
			return fmt.Errorf("season %d: %w", season.Number, ErrConflict)
		}
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) DeleteSeason(ctx context.Context, seriesID string, number int) error {
	if _, err := m.episodes.DeleteMany(ctx, bson.M{"series_id": seriesID, "season": number}); err != nil {
		return mapErr(err)
	}
	res, err := m.series.UpdateOne(ctx,
		bson.M{"_id": seriesID},
		bson.M{
			"$pull": bson.M{"seasons": bson.M{"number": number}},
			"$set":  bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) CreateEpisode(ctx context.Context, e *Episode) error {
	_, err := m.episodes.InsertOne(ctx, e)
	return mapErr(err)
}

func (m *Mongo) Episode(ctx context.Context, id string) (*Episode, error) {
	var e Episode
	if err := m.episodes.FindOne(ctx, bson.M{"_id": id}).Decode(&e); err != nil {
		return nil, mapErr(err)
	}
	return &e, nil
}

func (m *Mongo) SeasonEpisodes(ctx context.Context, seriesID string, season int) ([]Episode, error) {
	opts := options.Find().SetSort(bson.D{{Key: "number", Value: 1}})
	cur, err := m.episodes.Find(ctx, bson.M{"series_id": seriesID, "season": season}, opts)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cur.Close(ctx)
	var eps []Episode
	if err := cur.All(ctx, &eps); err != nil {
		return nil, mapErr(err)
	}
	return eps, nil
}

func (m *Mongo) DeleteEpisode(ctx context.Context, id string) error {
	res, err := m.episodes.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return mapErr(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) Operator(ctx context.Context, userID int64) (*Operator, error) {
	var op Operator
	if err := m.operators.FindOne(ctx, bson.M{"_id": userID}).Decode(&op); err != nil {
		return nil, mapErr(err)
	}
	return &op, nil
}

func (m *Mongo) SaveOperator(ctx context.Context, op *Operator) error {
	op.UpdatedAt = time.Now()
	_, err := m.operators.UpdateOne(ctx,
		bson.M{"_id": op.UserID},
		bson.M{"$set": bson.M{
			"can_upload": op.CanUpload,
			"is_admin":   op.IsAdmin,
			"updated_at": op.UpdatedAt,
		}},
		options.Update().SetUpsert(true),
	)
	return mapErr(err)
}

func (m *Mongo) AddUploads(ctx context.Context, userID int64, n int) error {
	_, err := m.operators.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$inc": bson.M{"uploads": n},
			"$set": bson.M{"updated_at": time.Now()},
		},
	)
	return mapErr(err)
}

// recentRow pairs a list entry with its timestamp so rows from several
// collections can be merged by recency.
type recentRow struct {
	item ListItem
	at   time.Time
}

// mergeRecent orders rows newest first and keeps the top limit entries.
func mergeRecent(rows []recentRow, limit int) []ListItem {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].at.After(rows[j].at) })
	if len(rows) > limit {
		rows = rows[:limit]
	}
	items := make([]ListItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.item)
	}
	return items
}

func (m *Mongo) ListRecent(ctx context.Context, limit int) ([]ListItem, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}).SetLimit(int64(limit))
	rows := make([]recentRow, 0, 2*limit)

	cur, err := m.movies.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, mapErr(err)
	}
	for cur.Next(ctx) {
		var mv Movie
		if err := cur.Decode(&mv); err != nil {
			continue
		}
		rows = append(rows, recentRow{
			item: ListItem{ID: mv.ID, Kind: "movie", Title: mv.Title, Year: mv.Year},
			at:   mv.UpdatedAt,
		})
	}
	_ = cur.Close(ctx)

	cur, err = m.series.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, mapErr(err)
	}
	for cur.Next(ctx) {
		var s Series
		if err := cur.Decode(&s); err != nil {
			continue
		}
		rows = append(rows, recentRow{
			item: ListItem{ID: s.ID, Kind: s.Category, Title: s.Title, Year: s.Year},
			at:   s.UpdatedAt,
		})
	}
	_ = cur.Close(ctx)

	return mergeRecent(rows, limit), nil
}
