package model

import "gorm.io/gorm"

// AutoMigrate runs GORM auto-migration for all models and creates custom indexes.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&UserRecord{}); err != nil {
		return err
	}

	for _, stmt := range []string{
		// One active record per user_id; soft-deleted rows keep their id.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_users_user_id_active " +
			"ON users (user_id) WHERE is_deleted = false",

		// One active record per provider link.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_users_external_provider_id " +
			"ON users (external_provider_id) WHERE external_provider_id <> '' AND is_deleted = false",

		// Case-insensitive unique email for active users when email is not empty.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower_active " +
			"ON users ((lower(email))) WHERE is_deleted = false AND email <> ''",
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
