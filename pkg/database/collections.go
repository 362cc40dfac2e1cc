package database

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (m *MongoInstance) createIndexes(ctx context.Context) {
	m.createRoutesIndexes(ctx)
	m.createVehiclesIndexes(ctx)
}

func (m *MongoInstance) createRoutesIndexes(ctx context.Context) {
	routesCollection := m.GetCollection("routes")
	routesIndex := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "stops.id", Value: 1}},
		},
	}

	opts := options.CreateIndexes()
	_, err := routesCollection.Indexes().CreateMany(ctx, routesIndex, opts)
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}

func (m *MongoInstance) createVehiclesIndexes(ctx context.Context) {
	vehiclesCollection := m.GetCollection("vehicles")
	vehiclesIndex := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "route", Value: 1}},
		},
	}

	opts := options.CreateIndexes()
	_, err := vehiclesCollection.Indexes().CreateMany(ctx, vehiclesIndex, opts)
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}
