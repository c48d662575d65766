// Package mongostore implements database.Store on MongoDB. Accounts keep
// their monthly usage embedded in the account document so a single
// FindOneAndUpdate can roll over and meter in one atomic step.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"bytebuddy/internal/database"
	"bytebuddy/internal/usage"
)

// Collection name constants.
const (
	colAccounts  = "accounts"
	colNotes     = "notes"
	colQuestions = "questions"
	colQuizzes   = "quizzes"
	colHabits    = "habit_entries"
)

var _ database.Store = (*Store)(nil)

// Store implements database.Store using MongoDB
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB and verifies the primary is reachable
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}
	return New(client, dbName), nil
}

// New wraps an existing client
func New(client *mongo.Client, dbName string) *Store {
	return &Store{client: client, db: client.Database(dbName)}
}

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongostore: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) accounts() *mongo.Collection { return s.db.Collection(colAccounts) }

// ==================== Accounts ====================

func (s *Store) CreateAccount(ctx context.Context, acct *database.Account) error {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	acct.Prepare(time.Now())

	_, err := s.accounts().InsertOne(ctx, toAccountModel(acct))
	if mongo.IsDuplicateKeyError(err) {
		return database.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("mongostore: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (*database.Account, error) {
	return s.findAccount(ctx, bson.M{"_id": id})
}

func (s *Store) GetAccountByLogin(ctx context.Context, login string) (*database.Account, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	return s.findAccount(ctx, bson.M{"$or": bson.A{
		bson.M{"email": login},
		bson.M{"username_lower": login},
	}})
}

func (s *Store) findAccount(ctx context.Context, filter bson.M) (*database.Account, error) {
	var m accountModel
	err := s.accounts().FindOne(ctx, filter).Decode(&m)
	if isNoDocuments(err) {
		return nil, database.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get account: %w", err)
	}
	return fromAccountModel(&m), nil
}

func (s *Store) UpdateSubscription(ctx context.Context, id string, tier usage.Tier, expiresAt *time.Time) error {
	set := bson.M{"subscription": string(tier), "updated_at": time.Now().UTC()}
	update := bson.M{"$set": set}
	if expiresAt != nil {
		set["subscription_expiry"] = expiresAt.UTC()
	} else {
		update["$unset"] = bson.M{"subscription_expiry": ""}
	}
	return s.updateAccount(ctx, id, "update subscription", update)
}

func (s *Store) SetAccountActive(ctx context.Context, id string, active bool) error {
	return s.updateAccount(ctx, id, "set account active",
		bson.M{"$set": bson.M{"is_active": active, "updated_at": time.Now().UTC()}})
}

func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.updateAccount(ctx, id, "update password",
		bson.M{"$set": bson.M{"password_hash": passwordHash, "updated_at": time.Now().UTC()}})
}

func (s *Store) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return s.updateAccount(ctx, id, "update last login",
		bson.M{"$set": bson.M{"last_login": at.UTC(), "last_activity": at.UTC()}})
}

func (s *Store) TouchActivity(ctx context.Context, id string, at time.Time) error {
	return s.updateAccount(ctx, id, "update last activity",
		bson.M{"$set": bson.M{"last_activity": at.UTC()}})
}

func (s *Store) updateAccount(ctx context.Context, id, op string, update bson.M) error {
	res, err := s.accounts().UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("mongostore: %s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return database.ErrAccountNotFound
	}
	return nil
}

// ==================== Usage ====================

// consumeFilter matches the account only when the rolled-over counter plus
// one stays within the limit for the stored subscription tier.
func consumeFilter(accountID string, req database.UsageRequest) bson.M {
	counter := "$monthly_usage.counters." + string(req.Feature)
	current := bson.M{"$cond": bson.A{
		bson.M{"$eq": bson.A{"$monthly_usage.month", string(req.Period)}},
		bson.M{"$ifNull": bson.A{counter, 0}},
		0,
	}}
	limit := bson.M{"$switch": bson.M{
		"branches": bson.A{
			bson.M{"case": bson.M{"$eq": bson.A{"$subscription", string(usage.TierFree)}}, "then": req.Limits.Free},
			bson.M{"case": bson.M{"$eq": bson.A{"$subscription", string(usage.TierPremium)}}, "then": req.Limits.Premium},
			bson.M{"case": bson.M{"$eq": bson.A{"$subscription", string(usage.TierEnterprise)}}, "then": req.Limits.Enterprise},
		},
		"default": -1,
	}}
	return bson.M{
		"_id":   accountID,
		"$expr": bson.M{"$lte": bson.A{bson.M{"$add": bson.A{current, 1}}, limit}},
	}
}

// consumeUpdate resets the embedded ledger for a new month, then increments
// the requested counter.
func consumeUpdate(req database.UsageRequest, now time.Time) mongo.Pipeline {
	field := "monthly_usage.counters." + string(req.Feature)
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"monthly_usage": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$monthly_usage.month", string(req.Period)}},
				"$monthly_usage",
				bson.M{"$literal": bson.M{"month": string(req.Period), "counters": zeroCounters()}},
			}},
		}}},
		{{Key: "$set", Value: bson.M{
			field:        bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$" + field, 0}}, int64(1)}},
			"updated_at": now.UTC(),
		}}},
	}
}

func (s *Store) ConsumeUsage(ctx context.Context, accountID string, req database.UsageRequest) (*database.UsageResult, error) {
	if !req.Feature.Valid() {
		return nil, fmt.Errorf("mongostore: unknown feature %q", req.Feature)
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"subscription": 1, "monthly_usage": 1})

	var m accountModel
	err := s.accounts().FindOneAndUpdate(ctx, consumeFilter(accountID, req), consumeUpdate(req, now), opts).Decode(&m)
	if err == nil {
		return &database.UsageResult{Tier: usage.Tier(m.Subscription), Ledger: fromUsageModel(m.MonthlyUsage)}, nil
	}
	if !isNoDocuments(err) {
		return nil, fmt.Errorf("mongostore: consume usage: %w", err)
	}

	res, err := s.RolloverUsage(ctx, accountID, req.Period)
	if err != nil {
		return nil, err
	}
	return res, database.ErrLimitReached
}

func (s *Store) RolloverUsage(ctx context.Context, accountID string, period usage.Period) (*database.UsageResult, error) {
	_, err := s.accounts().UpdateOne(ctx,
		bson.M{"_id": accountID, "monthly_usage.month": bson.M{"$ne": string(period)}},
		bson.M{"$set": bson.M{
			"monthly_usage": usageModel{Month: string(period), Counters: zeroCounters()},
			"updated_at":    time.Now().UTC(),
		}},
	)
	if err != nil {
		return nil, fmt.Errorf("mongostore: roll over usage: %w", err)
	}

	var m accountModel
	err = s.accounts().FindOne(ctx, bson.M{"_id": accountID},
		options.FindOne().SetProjection(bson.M{"subscription": 1, "monthly_usage": 1}),
	).Decode(&m)
	if isNoDocuments(err) {
		return nil, database.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: read usage: %w", err)
	}
	return &database.UsageResult{Tier: usage.Tier(m.Subscription), Ledger: fromUsageModel(m.MonthlyUsage)}, nil
}

// ==================== Tool records ====================

func (s *Store) CreateNote(ctx context.Context, note *database.Note) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.Collection(colNotes).InsertOne(ctx, toNoteModel(note)); err != nil {
		return fmt.Errorf("mongostore: create note: %w", err)
	}
	return nil
}

func (s *Store) ListNotes(ctx context.Context, accountID string, limit int) ([]*database.Note, error) {
	if limit <= 0 {
		limit = 20
	}
	cur, err := s.db.Collection(colNotes).Find(ctx,
		bson.M{"account_id": accountID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("mongostore: list notes: %w", err)
	}
	var models []noteModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongostore: decode notes: %w", err)
	}
	notes := make([]*database.Note, len(models))
	for i := range models {
		notes[i] = fromNoteModel(&models[i])
	}
	return notes, nil
}

func (s *Store) CreateQuestion(ctx context.Context, q *database.Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	m := &questionModel{
		ID: q.ID, AccountID: q.AccountID, Question: q.Question, Subject: q.Subject, Topic: q.Topic,
		Difficulty: q.Difficulty, ImageURL: q.ImageURL, Solution: q.Solution, IsSolved: q.IsSolved,
		CreatedAt: q.CreatedAt,
	}
	if _, err := s.db.Collection(colQuestions).InsertOne(ctx, m); err != nil {
		return fmt.Errorf("mongostore: create question: %w", err)
	}
	return nil
}

func (s *Store) CreateQuiz(ctx context.Context, quiz *database.Quiz) error {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.Collection(colQuizzes).InsertOne(ctx, toQuizModel(quiz)); err != nil {
		return fmt.Errorf("mongostore: create quiz: %w", err)
	}
	return nil
}

func (s *Store) GetQuiz(ctx context.Context, accountID, quizID string) (*database.Quiz, error) {
	var m quizModel
	err := s.db.Collection(colQuizzes).FindOne(ctx, bson.M{"_id": quizID, "account_id": accountID}).Decode(&m)
	if isNoDocuments(err) {
		return nil, database.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get quiz: %w", err)
	}
	return fromQuizModel(&m), nil
}

func (s *Store) SaveQuizResult(ctx context.Context, quiz *database.Quiz) error {
	res, err := s.db.Collection(colQuizzes).UpdateOne(ctx,
		bson.M{"_id": quiz.ID, "account_id": quiz.AccountID},
		bson.M{"$set": bson.M{
			"questions":    quiz.Questions,
			"score":        quiz.Score,
			"time_taken":   quiz.TimeTaken,
			"completed_at": quiz.CompletedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("mongostore: save quiz result: %w", err)
	}
	if res.MatchedCount == 0 {
		return database.ErrRecordNotFound
	}
	return nil
}

func (s *Store) UpsertHabitEntry(ctx context.Context, entry *database.HabitEntry) (bool, error) {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	m := habitModel{
		ID: entry.AccountID + ":" + entry.Day, AccountID: entry.AccountID, Day: entry.Day,
		Mood: entry.Mood, Productivity: entry.Productivity, StudyHours: entry.StudyHours,
		Notes: entry.Notes, RecordedAt: entry.RecordedAt,
	}
	res, err := s.db.Collection(colHabits).ReplaceOne(ctx, bson.M{"_id": m.ID}, m, options.Replace().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("mongostore: upsert habit entry: %w", err)
	}
	return res.UpsertedCount > 0, nil
}

func (s *Store) ListHabitDays(ctx context.Context, accountID string) ([]string, error) {
	cur, err := s.db.Collection(colHabits).Find(ctx,
		bson.M{"account_id": accountID},
		options.Find().SetSort(bson.D{{Key: "day", Value: -1}}).SetProjection(bson.M{"day": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongostore: list habit days: %w", err)
	}
	var models []habitModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongostore: decode habit days: %w", err)
	}
	days := make([]string, len(models))
	for i, m := range models {
		days[i] = m.Day
	}
	return days, nil
}

func (s *Store) GetStudyProfile(ctx context.Context, accountID string) (*database.StudyProfile, error) {
	var m accountModel
	err := s.accounts().FindOne(ctx, bson.M{"_id": accountID},
		options.FindOne().SetProjection(bson.M{"tools_data": 1}),
	).Decode(&m)
	if isNoDocuments(err) {
		return nil, database.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get study profile: %w", err)
	}
	return toProfile(accountID, m.ToolsData), nil
}

func (s *Store) AddFavoriteTopic(ctx context.Context, accountID, topic string) error {
	return s.updateAccount(ctx, accountID, "add favorite topic",
		bson.M{"$addToSet": bson.M{"tools_data.favorite_topics": topic}})
}

func (s *Store) AddWeakAreas(ctx context.Context, accountID string, areas []string) ([]string, error) {
	if len(areas) == 0 {
		p, err := s.GetStudyProfile(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return p.WeakAreas, nil
	}
	var m accountModel
	err := s.accounts().FindOneAndUpdate(ctx,
		bson.M{"_id": accountID},
		bson.M{"$addToSet": bson.M{"tools_data.weak_areas": bson.M{"$each": areas}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After).SetProjection(bson.M{"tools_data": 1}),
	).Decode(&m)
	if isNoDocuments(err) {
		return nil, database.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: add weak areas: %w", err)
	}
	return nonNil(m.ToolsData.WeakAreas), nil
}

func (s *Store) SaveCareerProfile(ctx context.Context, accountID string, skills, targetRoles []string) error {
	return s.updateAccount(ctx, accountID, "save career profile", bson.M{"$set": bson.M{
		"tools_data.skills":       nonNil(skills),
		"tools_data.target_roles": nonNil(targetRoles),
	}})
}

func (s *Store) GetActivityStats(ctx context.Context, accountID string) (*database.ActivityStats, error) {
	filter := bson.M{"account_id": accountID}
	stats := &database.ActivityStats{}

	counts := []struct {
		col string
		dst *int
	}{
		{colNotes, &stats.NoteCount},
		{colQuestions, &stats.QuestionCount},
		{colQuizzes, &stats.QuizCount},
		{colHabits, &stats.HabitDays},
	}
	for _, c := range counts {
		n, err := s.db.Collection(c.col).CountDocuments(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("mongostore: count %s: %w", c.col, err)
		}
		*c.dst = int(n)
	}

	cur, err := s.db.Collection(colQuizzes).Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"account_id": accountID, "score": bson.M{"$ne": nil}}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "avg": bson.M{"$avg": "$score"}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("mongostore: average score: %w", err)
	}
	var rows []struct {
		Avg float64 `bson:"avg"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("mongostore: decode average score: %w", err)
	}
	if len(rows) > 0 {
		stats.AverageScore = rows[0].Avg
	}
	return stats, nil
}

func toProfile(accountID string, m toolsDataModel) *database.StudyProfile {
	return &database.StudyProfile{
		AccountID:      accountID,
		FavoriteTopics: nonNil(m.FavoriteTopics),
		WeakAreas:      nonNil(m.WeakAreas),
		Skills:         nonNil(m.Skills),
		TargetRoles:    nonNil(m.TargetRoles),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "username_lower", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colNotes: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colQuestions: {
			{Keys: bson.D{{Key: "account_id", Value: 1}}},
		},
		colQuizzes: {
			{Keys: bson.D{{Key: "account_id", Value: 1}}},
		},
		colHabits: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "day", Value: -1}}},
		},
	}
}
