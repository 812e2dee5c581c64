// seed-demo provisions a local development dataset: an admin user, an
// inspector, one agency, one property with owner and tenant, and a draft
// move-in inspection with a few items.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-demo
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/habitaflow/rentals_backend/config"
	"github.com/habitaflow/rentals_backend/models"
	"github.com/habitaflow/rentals_backend/utils"
	"github.com/shopspring/decimal"
)

const (
	adminEmail     = "admin@habitaflow.example"
	adminPassword  = "habitaflow-admin"
	inspectorEmail = "inspector@habitaflow.example"
)

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fatal("database not initialized (config.GetDB returned nil). Set DB_* env vars.")
	}
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "Seed")

	admin, err := models.CreateUser(ctx, &models.NewUser{
		Name:     "Habitaflow Admin",
		Email:    adminEmail,
		Password: adminPassword,
		Role:     "admin",
	})
	if err != nil && !errors.Is(err, utils.ErrConflict) {
		fatal("failed to create admin: %v", err)
	}
	if admin != nil {
		fmt.Printf("Created admin user %s (id=%d)\n", adminEmail, admin.ID)
	}

	agency, err := models.CreateAgency(ctx, &models.NewAgency{
		Name:  "Agence Demo",
		Email: "contact@agence-demo.example",
	})
	if err != nil {
		fatal("failed to create agency: %v", err)
	}

	inspector, err := models.CreateUser(ctx, &models.NewUser{
		Name:     "Ines Perez",
		Email:    inspectorEmail,
		Password: "habitaflow-inspector",
		Role:     "inspector",
		AgencyId: &agency.ID,
	})
	if err != nil {
		fatal("failed to create inspector: %v", err)
	}

	ownerName := "Martin Caron"
	ownerEmail := "martin.caron@example.com"
	tenantName := "Lea Fontaine"
	tenantEmail := "lea.fontaine@example.com"
	property, err := models.CreateProperty(ctx, &models.NewProperty{
		Reference:   "DEMO-APT-12",
		Address:     "12 rue des Lilas",
		City:        "Lyon",
		PostalCode:  "69003",
		OwnerName:   &ownerName,
		OwnerEmail:  &ownerEmail,
		TenantName:  &tenantName,
		TenantEmail: &tenantEmail,
		AgencyId:    &agency.ID,
	})
	if err != nil {
		fatal("failed to create property: %v", err)
	}

	repairCost := decimal.NewFromFloat(120.50)
	inspection, err := models.CreateInspection(ctx, &models.NewInspection{
		Type:        models.InspectionTypeMoveIn,
		PropertyId:  property.ID,
		AgencyId:    &agency.ID,
		InspectorId: inspector.ID,
		ScheduledAt: time.Now().UTC().AddDate(0, 0, 7),
		Notes:       "Demo move-in inspection",
		Items: []models.NewInspectionItem{
			{Room: "Living room", Label: "Parquet floor", Condition: models.ItemConditionGood},
			{Room: "Kitchen", Label: "Oven", Condition: models.ItemConditionWorn, Comment: "Door hinge loose"},
			{Room: "Bathroom", Label: "Sink", Condition: models.ItemConditionDamaged, NeedsRepair: utils.NewTrue(),
				RepairDescription: "Cracked basin", RepairCostEst: &repairCost},
		},
	})
	if err != nil {
		fatal("failed to create inspection: %v", err)
	}

	fmt.Printf("Seeded agency=%d property=%d inspector=%d inspection=%d token=%s\n",
		agency.ID, property.ID, inspector.ID, inspection.ID, inspection.PublicToken)
}
