package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"oneflow/internal/identity"
	"oneflow/internal/shared/config"
	"oneflow/internal/shared/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type Seeder struct {
	db *database.DB
}

func main() {
	fmt.Println("🌱 Starting OneFlow Database Seeder...")

	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{db: db}

	fmt.Println("\n🧹 Cleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}
	fmt.Println("✅ Database cleaned successfully")

	fmt.Println("\n🌱 Seeding database...")
	if err := seeder.SeedIdentities(); err != nil {
		log.Fatalf("Failed to seed identities: %v", err)
	}
	fmt.Println("✅ Database seeded successfully")

	fmt.Println("\n🎉 Seeding completed! Database is ready for testing.")
}

// CleanDatabase truncates all tables and flushes the redis cache so cached
// identity reads never outlive the rows they mirror.
func (s *Seeder) CleanDatabase() error {
	if err := s.db.PostgreSQL.Exec("TRUNCATE TABLE identities RESTART IDENTITY CASCADE").Error; err != nil {
		return fmt.Errorf("failed to truncate identities: %w", err)
	}

	if err := s.db.Redis.FlushDB(context.Background()).Err(); err != nil {
		log.Printf("Warning: Failed to clear Redis cache: %v", err)
	}

	return nil
}

// SeedIdentities creates one fixture identity per role, plus one deactivated
// account for exercising the denied-login and denied-refresh paths. All
// fixtures share the password "qwerty".
func (s *Seeder) SeedIdentities() error {
	fmt.Println("  👤 Seeding identities...")

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("qwerty"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	rate := func(v float64) *float64 { return &v }

	identitiesData := []struct {
		name       string
		email      string
		role       identity.Role
		hourlyRate *float64
		active     bool
	}{
		{"Ada Admin", "admin@oneflow.dev", identity.RoleAdmin, nil, true},
		{"Priya Manager", "pm@oneflow.dev", identity.RoleProjectManager, rate(95.0), true},
		{"Tomás Member", "member@oneflow.dev", identity.RoleTeamMember, rate(60.0), true},
		{"Fay Finance", "finance@oneflow.dev", identity.RoleFinance, nil, true},
		{"Gone Goner", "inactive@oneflow.dev", identity.RoleTeamMember, rate(55.0), false},
	}

	for _, data := range identitiesData {
		id := identity.Identity{
			ID:           uuid.New(),
			Email:        data.email,
			Name:         data.name,
			PasswordHash: string(hashedPassword),
			Role:         data.role,
			HourlyRate:   data.hourlyRate,
			Active:       data.active,
			CreatedAt:    time.Now(),
		}

		if err := s.db.PostgreSQL.Create(&id).Error; err != nil {
			return fmt.Errorf("failed to create identity %s: %w", data.email, err)
		}

		fmt.Printf("    ✅ Created identity: %s (%s)\n", id.Email, id.Role)
	}

	return nil
}
