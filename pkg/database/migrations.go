package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"medidispatch/pkg/logger"
)

type Migration struct {
	Version     int
	Description string
	Up          func(*mongo.Database) error
	Down        func(*mongo.Database) error
}

type Migrator struct {
	db         *mongo.Database
	migrations []Migration
	logger     *logger.Logger
}

func NewMigrator(db *mongo.Database, log *logger.Logger) *Migrator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Migrator{
		db:         db,
		migrations: getMigrations(),
		logger:     log.WithComponent("migrator"),
	}
}

func (m *Migrator) Up() error {
	// Create migrations collection if it doesn't exist
	err := m.createMigrationsCollection()
	if err != nil {
		return err
	}

	// Get current version
	currentVersion, err := m.getCurrentVersion()
	if err != nil {
		return err
	}

	// Run migrations
	for _, migration := range m.migrations {
		if migration.Version > currentVersion {
			m.logger.Infof("Running migration %d: %s", migration.Version, migration.Description)

			err := migration.Up(m.db)
			if err != nil {
				return fmt.Errorf("migration %d failed: %w", migration.Version, err)
			}

			err = m.updateVersion(migration.Version)
			if err != nil {
				return fmt.Errorf("failed to update migration version: %w", err)
			}

			m.logger.Infof("Migration %d completed successfully", migration.Version)
		}
	}

	return nil
}

func (m *Migrator) Down(targetVersion int) error {
	currentVersion, err := m.getCurrentVersion()
	if err != nil {
		return err
	}

	for i := len(m.migrations) - 1; i >= 0; i-- {
		migration := m.migrations[i]
		if migration.Version <= currentVersion && migration.Version > targetVersion {
			m.logger.Infof("Reverting migration %d: %s", migration.Version, migration.Description)

			err := migration.Down(m.db)
			if err != nil {
				return fmt.Errorf("migration %d rollback failed: %w", migration.Version, err)
			}

			previousVersion := targetVersion
			if i > 0 {
				previousVersion = m.migrations[i-1].Version
			}

			err = m.updateVersion(previousVersion)
			if err != nil {
				return fmt.Errorf("failed to update migration version: %w", err)
			}

			m.logger.Infof("Migration %d reverted successfully", migration.Version)
		}
	}

	return nil
}

func (m *Migrator) createMigrationsCollection() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	collections, err := m.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return err
	}

	for _, name := range collections {
		if name == collectionMigrations {
			return nil
		}
	}

	return m.db.CreateCollection(ctx, collectionMigrations)
}

func (m *Migrator) getCurrentVersion() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result struct {
		Version int `bson:"version"`
	}

	err := m.db.Collection(collectionMigrations).FindOne(ctx, bson.D{}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, err
	}

	return result.Version, nil
}

func (m *Migrator) updateVersion(version int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := m.db.Collection(collectionMigrations).ReplaceOne(
		ctx,
		bson.D{},
		bson.D{{Key: "version", Value: version}, {Key: "updated_at", Value: time.Now()}},
		options.Replace().SetUpsert(true),
	)

	return err
}

func getMigrations() []Migration {
	return []Migration{
		indexMigration(1, "Create calls indexes", CollectionCalls, createCallsIndexes),
		indexMigration(2, "Create transports indexes", CollectionTransports, createTransportsIndexes),
		indexMigration(3, "Create vehicles indexes", CollectionVehicles, createVehiclesIndexes),
		indexMigration(4, "Create drivers indexes", CollectionDrivers, createDriversIndexes),
		indexMigration(5, "Create dispatch operators indexes", CollectionOperators, createOperatorsIndexes),
		indexMigration(6, "Create routes indexes", CollectionRoutes, createRoutesIndexes),
		indexMigration(7, "Create traffic alerts indexes", CollectionTrafficAlerts, createTrafficAlertsIndexes),
		indexMigration(8, "Create audit logs indexes", CollectionAuditLogs, createAuditLogsIndexes),
	}
}

// indexMigration builds a migration whose rollback drops the collection's
// secondary indexes and keeps the documents.
func indexMigration(version int, description, collection string, up func(*mongo.Database) error) Migration {
	return Migration{
		Version:     version,
		Description: description,
		Up:          up,
		Down: func(db *mongo.Database) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_, err := db.Collection(collection).Indexes().DropAll(ctx)
			return err
		},
	}
}

func createIndexes(db *mongo.Database, collection string, indexes []mongo.IndexModel) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := db.Collection(collection).Indexes().CreateMany(ctx, indexes)
	return err
}

func createCallsIndexes(db *mongo.Database) error {
	return createIndexes(db, CollectionCalls, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "emergency.priority", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "dispatch.vehicle_id", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
}

func createTransportsIndexes(db *mongo.Database) error {
	return createIndexes(db, CollectionTransports, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "scheduling.scheduled_at", Value: 1}}},
		{Keys: bson.D{{Key: "dispatch.vehicle_id", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
}

func createVehiclesIndexes(db *mongo.Database) error {
	return createIndexes(db, CollectionVehicles, []mongo.IndexModel{
		{Keys: bson.D{{Key: "available", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "vehicle_number", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "current_assignment.entity_id", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
}

func createDriversIndexes(db *mongo.Database) error {
	return createIndexes(db, CollectionDrivers, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "assigned_vehicle_id", Value: 1}}},
		{Keys: bson.D{{Key: "license.number", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "current_assignment.entity_id", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
}

func createOperatorsIndexes(db *mongo.Database) error {
	return createIndexes(db, CollectionOperators, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "deleted", Value: 1}}},
	})
}

func createRoutesIndexes(db *mongo.Database) error {
	return createIndexes(db, CollectionRoutes, []mongo.IndexModel{
		{Keys: bson.D{{Key: "entity_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
}

func createTrafficAlertsIndexes(db *mongo.Database) error {
	return createIndexes(db, CollectionTrafficAlerts, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
		{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
	})
}

func createAuditLogsIndexes(db *mongo.Database) error {
	return createIndexes(db, CollectionAuditLogs, []mongo.IndexModel{
		{Keys: bson.D{{Key: "entity_type", Value: 1}, {Key: "entity_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
	})
}
