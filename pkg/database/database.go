package database

import (
	"context"
	"time"

	"github.com/travigo/livebus/pkg/util"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoInstance struct {
	Client   *mongo.Client
	Database *mongo.Database
}

const defaultMongoConnectionString = "mongodb://localhost:27017/"
const defaultMongoDatabase = "livebus"

// Configured reports whether a MongoDB connection has been set in the
// environment
func Configured() bool {
	return util.GetEnvironmentVariables()["TRAVIGO_MONGODB_CONNECTION"] != ""
}

func Connect(ctx context.Context) (*MongoInstance, error) {
	connectionString := defaultMongoConnectionString
	dbName := defaultMongoDatabase

	env := util.GetEnvironmentVariables()

	if env["TRAVIGO_MONGODB_CONNECTION"] != "" {
		connectionString = env["TRAVIGO_MONGODB_CONNECTION"]
	}

	if env["TRAVIGO_MONGODB_DATABASE"] != "" {
		dbName = env["TRAVIGO_MONGODB_DATABASE"]
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, err
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, err
	}

	instance := &MongoInstance{
		Client:   client,
		Database: client.Database(dbName),
	}

	instance.createIndexes(ctx)

	return instance, nil
}

func (m *MongoInstance) GetCollection(collectionName string) *mongo.Collection {
	return m.Database.Collection(collectionName)
}

func (m *MongoInstance) Disconnect(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
