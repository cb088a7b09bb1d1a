package db

import (
	"context"

	"go.uber.org/zap"
)

func (d *DB) Seed(ctx context.Context, log *zap.Logger) error {
	logger := log.With(zap.String("method", "Seed"))
	logger.Info("Seeding database")

	// Code systems and their concepts arrive through the import operation;
	// there is nothing to seed beyond what migrations create.

	logger.Info("Database seeding completed")
	return nil
}
