package main

import (
	"fmt"
	"log"

	"golang-mq-relay/internal/adapters/db/postgres"
	"golang-mq-relay/internal/adapters/queue/rabbitmq"
	"golang-mq-relay/internal/config"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	if conf.JournalDatabaseURL == "" {
		log.Fatal("❌ JOURNAL_DATABASE_URL is not set")
	}

	fmt.Println("🔗 Connecting to database...")
	fmt.Println("DSN:", rabbitmq.SanitizeURL(conf.JournalDatabaseURL))

	journal, err := postgres.NewJournal(conf.JournalDatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect: %v", err)
	}
	defer journal.Close()

	fmt.Println("✅ Connected to database")
	fmt.Println("🔄 Running migrations...")

	if err := journal.Migrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	fmt.Println("✅ Migration complete!")
	fmt.Println("🎉 Journal ready: table observations")
}
