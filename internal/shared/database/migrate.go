package database

import (
	"gorm.io/gorm"

	"oneflow/internal/identity"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&identity.Identity{},
	)
}
