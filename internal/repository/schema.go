package repository

import "gorm.io/gorm"

// Entities lists every table owned by the service, parents first.
func Entities() []interface{} {
	return []interface{}{
		&SmtpAccountEntity{},
		&UserSmtpAssignmentEntity{},
		&ContactEntity{},
		&CampaignEntity{},
		&CampaignRecipientEntity{},
		&EmailLogEntity{},
		&LinkClickEntity{},
		&NotificationEntity{},
	}
}

// AutoMigrate creates the schema with gorm. Production databases are migrated
// with the goose files under migrations/; this is for sqlite test databases.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Entities()...)
}
