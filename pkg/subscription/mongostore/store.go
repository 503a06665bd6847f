package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	mongopkg "github.com/dmitrymomot/planskit/pkg/mongo"
	"github.com/dmitrymomot/planskit/pkg/subscription"
)

// Collection names.
const (
	colPlans         = "plans"
	colSubscriptions = "plan_subscriptions"
	colUsages        = "plan_subscription_usages"
)

var _ subscription.Repository = (*Store)(nil)

// Store is a subscription.Repository backed by MongoDB. Features are embedded
// in plan documents; usage lives in its own collection keyed by subscription.
type Store struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Store {
	if db == nil {
		panic("mongostore: database is required")
	}
	return &Store{db: db}
}

// Open connects with cfg, ensures indexes on cfg.Database and returns the store.
func Open(ctx context.Context, cfg mongopkg.Config) (*Store, error) {
	db, err := mongopkg.ConnectDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Client().Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	return s, nil
}

// Migrate creates the indexes the queries rely on. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range indexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongostore: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Database returns the underlying database.
func (s *Store) Database() *mongo.Database { return s.db }

// Ping reports whether the primary answers.
func (s *Store) Ping(ctx context.Context) error {
	return mongopkg.Ping(ctx, s.db.Client())
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

func (s *Store) plans() *mongo.Collection         { return s.db.Collection(colPlans) }
func (s *Store) subscriptions() *mongo.Collection { return s.db.Collection(colSubscriptions) }
func (s *Store) usages() *mongo.Collection        { return s.db.Collection(colUsages) }

// ==================== Plans ====================

func (s *Store) FindPlan(ctx context.Context, id string) (*subscription.Plan, error) {
	var m planModel
	if err := s.plans().FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, subscription.ErrPlanNotFound
		}
		return nil, fmt.Errorf("mongostore: find plan: %w", err)
	}
	return fromPlanModel(&m)
}

func (s *Store) SavePlan(ctx context.Context, plan *subscription.Plan) error {
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now
	for i := range plan.Features {
		if plan.Features[i].ID == uuid.Nil {
			plan.Features[i].ID = uuid.New()
		}
		plan.Features[i].PlanID = plan.ID
	}

	m, err := toPlanModel(plan)
	if err != nil {
		return err
	}
	_, err = s.plans().ReplaceOne(ctx, bson.M{"_id": m.ID}, m, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: save plan: %w", err)
	}
	return nil
}

func (s *Store) DeletePlan(ctx context.Context, id string, at time.Time) error {
	res, err := s.plans().UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"deleted_at": at, "updated_at": at}})
	if err != nil {
		return fmt.Errorf("mongostore: delete plan: %w", err)
	}
	if res.MatchedCount == 0 {
		return subscription.ErrPlanNotFound
	}
	return nil
}

// ==================== Subscriptions ====================

func (s *Store) FindActiveSubscription(ctx context.Context, owner subscription.Owner, now time.Time) (*subscription.PlanSubscription, error) {
	filter := bson.M{
		"owner_type": owner.Type,
		"owner_id":   owner.ID,
		"active":     true,
		"starts_on":  bson.M{"$lte": now},
		"expires_on": bson.M{"$gt": now},
	}
	var m subscriptionModel
	err := s.subscriptions().
		FindOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "starts_on", Value: -1}})).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("mongostore: find active subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) ListSubscriptions(ctx context.Context, owner subscription.Owner) ([]subscription.PlanSubscription, error) {
	cur, err := s.subscriptions().Find(ctx,
		bson.M{"owner_type": owner.Type, "owner_id": owner.ID},
		options.Find().SetSort(bson.D{{Key: "starts_on", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: list subscriptions: %w", err)
	}

	var models []subscriptionModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongostore: list subscriptions: %w", err)
	}

	subs := make([]subscription.PlanSubscription, 0, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, nil
}

func (s *Store) GetSubscription(ctx context.Context, id uuid.UUID) (*subscription.PlanSubscription, error) {
	var m subscriptionModel
	if err := s.subscriptions().FindOne(ctx, bson.M{"_id": id.String()}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("mongostore: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) SaveSubscription(ctx context.Context, sub *subscription.PlanSubscription) error {
	m, err := toSubscriptionModel(sub)
	if err != nil {
		return err
	}
	_, err = s.subscriptions().ReplaceOne(ctx, bson.M{"_id": m.ID}, m, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: save subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes the document and then its usage records.
func (s *Store) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	res, err := s.subscriptions().DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("mongostore: delete subscription: %w", err)
	}
	if res.DeletedCount == 0 {
		return subscription.ErrSubscriptionNotFound
	}
	if _, err := s.usages().DeleteMany(ctx, bson.M{"subscription_id": id.String()}); err != nil {
		return fmt.Errorf("mongostore: delete subscription usage: %w", err)
	}
	return nil
}

func (s *Store) ListRenewalCandidates(ctx context.Context, asOf time.Time) ([]subscription.Owner, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{
			{Key: "owner_type", Value: 1},
			{Key: "owner_id", Value: 1},
			{Key: "starts_on", Value: -1},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "type", Value: "$owner_type"}, {Key: "id", Value: "$owner_id"}}},
			{Key: "active", Value: bson.D{{Key: "$first", Value: "$active"}}},
			{Key: "is_recurring", Value: bson.D{{Key: "$first", Value: "$is_recurring"}}},
			{Key: "expires_on", Value: bson.D{{Key: "$first", Value: "$expires_on"}}},
			{Key: "cancelled_on", Value: bson.D{{Key: "$first", Value: "$cancelled_on"}}},
		}}},
		{{Key: "$match", Value: bson.D{
			{Key: "cancelled_on", Value: nil},
			{Key: "$or", Value: bson.A{
				bson.D{{Key: "active", Value: false}},
				bson.D{{Key: "is_recurring", Value: true}, {Key: "expires_on", Value: bson.D{{Key: "$lte", Value: asOf}}}},
			}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id.type", Value: 1}, {Key: "_id.id", Value: 1}}}},
	}

	cur, err := s.subscriptions().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongostore: list renewal candidates: %w", err)
	}

	var rows []struct {
		Owner struct {
			Type string `bson:"type"`
			ID   string `bson:"id"`
		} `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("mongostore: list renewal candidates: %w", err)
	}

	owners := make([]subscription.Owner, len(rows))
	for i, r := range rows {
		owners[i] = subscription.NewOwner(r.Owner.Type, r.Owner.ID)
	}
	return owners, nil
}

// ==================== Usage ====================

func (s *Store) FindUsage(ctx context.Context, subscriptionID uuid.UUID, code string) (*subscription.UsageRecord, error) {
	var m usageModel
	err := s.usages().FindOne(ctx, bson.M{"subscription_id": subscriptionID.String(), "code": code}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subscription.ErrUsageNotFound
		}
		return nil, fmt.Errorf("mongostore: find usage: %w", err)
	}
	return fromUsageModel(&m)
}

func (s *Store) SaveUsage(ctx context.Context, usage *subscription.UsageRecord) error {
	n, err := s.subscriptions().CountDocuments(ctx, bson.M{"_id": usage.SubscriptionID.String()})
	if err != nil {
		return fmt.Errorf("mongostore: check usage subscription: %w", err)
	}
	if n == 0 {
		return subscription.ErrSubscriptionNotFound
	}

	m, err := toUsageModel(usage)
	if err != nil {
		return err
	}
	filter := bson.M{"subscription_id": m.SubscriptionID, "code": m.Code}
	update := bson.M{
		"$set":         bson.M{"used": m.Used, "updated_at": m.UpdatedAt},
		"$setOnInsert": bson.M{"_id": m.ID, "created_at": m.CreatedAt},
	}
	if _, err := s.usages().UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return fmt.Errorf("mongostore: save usage: %w", err)
	}
	return nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSubscriptions: {
			{Keys: bson.D{{Key: "owner_type", Value: 1}, {Key: "owner_id", Value: 1}, {Key: "starts_on", Value: -1}}},
			{Keys: bson.D{{Key: "plan_id", Value: 1}}},
		},
		colUsages: {
			{
				Keys:    bson.D{{Key: "subscription_id", Value: 1}, {Key: "code", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
