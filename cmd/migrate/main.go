package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	if len(os.Args) < 2 {
		fmt.Println("Usage: go run main.go [drop|up|seed]")
		os.Exit(1)
	}

	command := os.Args[1]

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "drop":
		if err := dropTables(ctx, conn); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("✅ All tables dropped successfully")

	case "up":
		if err := createTables(ctx, conn); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("✅ All tables created successfully")

	case "seed":
		if err := seedData(ctx, conn); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		fmt.Println("✅ Data seeded successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Usage: go run main.go [drop|up|seed]")
		os.Exit(1)
	}
}

func dropTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		`DROP TABLE IF EXISTS response_log CASCADE`,
		`DROP TABLE IF EXISTS responses CASCADE`,
		`DROP TABLE IF EXISTS events CASCADE`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
		fmt.Printf("  Dropped: %s\n", query)
	}

	return nil
}

func createTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		// Events are stored document-style: candidate slots and the
		// participant roster live in JSONB alongside lifecycle flags.
		`CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			description TEXT,
			created_by VARCHAR(255) NOT NULL,
			time_slots JSONB NOT NULL DEFAULT '[]'::jsonb,
			participants JSONB NOT NULL DEFAULT '[]'::jsonb,
			is_active BOOLEAN DEFAULT true,
			is_completed BOOLEAN DEFAULT false,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,

		// One row per (event, participant, slot); repeat submissions
		// update in place.
		`CREATE TABLE IF NOT EXISTS responses (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			event_id UUID REFERENCES events(id) ON DELETE CASCADE,
			participant_name VARCHAR(255) NOT NULL,
			time_slot_id VARCHAR(255) NOT NULL,
			available BOOLEAN NOT NULL,
			updated_at TIMESTAMP DEFAULT NOW(),
			UNIQUE(event_id, participant_name, time_slot_id)
		)`,

		// Append-only audit trail of every submission.
		`CREATE TABLE IF NOT EXISTS response_log (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			event_id UUID REFERENCES events(id) ON DELETE CASCADE,
			participant_name VARCHAR(255) NOT NULL,
			time_slot_id VARCHAR(255) NOT NULL,
			available BOOLEAN NOT NULL,
			recorded_at TIMESTAMP DEFAULT NOW()
		)`,

		// Create indexes
		`CREATE INDEX IF NOT EXISTS idx_events_active ON events(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_responses_event_id ON responses(event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_response_log_event_id ON response_log(event_id)`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
		fmt.Printf("  Created: %s\n", getTableName(query))
	}

	return nil
}

func seedData(ctx context.Context, conn *pgx.Conn) error {
	query := `
		INSERT INTO events (id, title, description, created_by, time_slots, participants) VALUES
		(
			'00000000-0000-0000-0000-000000000001',
			'Friday game night',
			'Board games and snacks',
			'Ana',
			'[
				{"id": "seed-slot-1", "date": "2026-09-04", "time": "all-day"},
				{"id": "seed-slot-2", "date": "2026-09-05", "time": "all-day"},
				{"id": "seed-slot-3", "date": "2026-09-11", "time": "all-day"}
			]'::jsonb,
			'[]'::jsonb
		)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			time_slots = EXCLUDED.time_slots,
			updated_at = NOW()
	`

	if _, err := conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to seed events: %w", err)
	}

	fmt.Println("  Seeded 1 event with 3 candidate dates")

	return nil
}

func getTableName(query string) string {
	if len(query) > 50 {
		return query[:50] + "..."
	}
	return query
}
