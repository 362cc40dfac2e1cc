package routedata

import (
	"context"

	"github.com/travigo/livebus/pkg/ctdf"
	"github.com/travigo/livebus/pkg/database"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LoadMongo reads the routes and vehicles collections
func LoadMongo(ctx context.Context, instance *database.MongoInstance) (*Catalog, error) {
	var routes []ctdf.Route
	routesCursor, err := instance.GetCollection("routes").Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	if err := routesCursor.All(ctx, &routes); err != nil {
		return nil, err
	}

	var vehicles []ctdf.Vehicle
	vehiclesCursor, err := instance.GetCollection("vehicles").Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	if err := vehiclesCursor.All(ctx, &vehicles); err != nil {
		return nil, err
	}

	return New(routes, vehicles)
}

// StoreMongo upserts every route and vehicle of the catalog
func StoreMongo(ctx context.Context, instance *database.MongoInstance, catalog *Catalog) error {
	var routeOperations []mongo.WriteModel
	for _, route := range catalog.Routes() {
		routeOperations = append(routeOperations, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"id": route.PrimaryIdentifier}).
			SetReplacement(route).
			SetUpsert(true))
	}

	var vehicleOperations []mongo.WriteModel
	for _, vehicle := range catalog.Vehicles() {
		vehicleOperations = append(vehicleOperations, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"id": vehicle.PrimaryIdentifier}).
			SetReplacement(vehicle).
			SetUpsert(true))
	}

	if len(routeOperations) > 0 {
		if _, err := instance.GetCollection("routes").BulkWrite(ctx, routeOperations, options.BulkWrite().SetOrdered(false)); err != nil {
			return err
		}
	}
	if len(vehicleOperations) > 0 {
		if _, err := instance.GetCollection("vehicles").BulkWrite(ctx, vehicleOperations, options.BulkWrite().SetOrdered(false)); err != nil {
			return err
		}
	}

	return nil
}
