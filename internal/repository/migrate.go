package repository

import "gorm.io/gorm"

// AutoMigrate creates the schema for local development and tests.
// Production schemas are managed by cmd/migrator.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&resourceModel{}, &reservationModel{}, &outboxModel{})
}
