package repository

import (
	"context"
	"fmt"

	"github.com/hilthontt/haven/internal/persistence/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the unique indexes the circle and game session repositories rely on
// for join code, channel and quota uniqueness and for one open session per circle.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	circles := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "join_code", Value: 1}},
			Options: options.Index().SetName("join_code_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "channel_name", Value: 1}},
			Options: options.Index().SetName("channel_name_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "quota_holder", Value: 1}},
			Options: options.Index().SetName("quota_holder_unique").SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "created_at", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "host_id", Value: 1}},
		},
	}
	if _, err := database.Collection(db.CirclesCollection).Indexes().CreateMany(ctx, circles); err != nil {
		return fmt.Errorf("failed to create circle indexes: %w", err)
	}

	sessions := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "open_room_id", Value: 1}},
			Options: options.Index().SetName("open_room_unique").SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "room_id", Value: 1}},
		},
	}
	if _, err := database.Collection(db.GameSessionsCollection).Indexes().CreateMany(ctx, sessions); err != nil {
		return fmt.Errorf("failed to create game session indexes: %w", err)
	}

	return nil
}
