package models

import (
	"log"

	"github.com/habitaflow/rentals_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Agency{}, &Property{}, &User{},
		&Inspection{}, &InspectionItem{},
		&InspectionSignatureLink{},
		&InspectionAudit{},
		&NotificationOutbox{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
