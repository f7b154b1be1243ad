package main

import (
	"fmt"
	"log"
	"time"

	"gvteway/internal/events"
	"gvteway/internal/memberships"
	"gvteway/internal/shared/config"
	"gvteway/internal/shared/database"
	"gvteway/internal/users"
	"gvteway/internal/waitlist"

	"github.com/google/uuid"
)

type Seeder struct {
	db *database.DB

	userIDs       []uuid.UUID
	tierIDs       map[int]uuid.UUID
	eventID       uuid.UUID
	ticketTypeIDs []uuid.UUID
}

func main() {
	fmt.Println("Starting GVTEWAY database seeder...")

	cfg := config.Load()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{
		db:      db,
		tierIDs: make(map[int]uuid.UUID),
	}

	fmt.Println("Cleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}

	fmt.Println("Seeding database...")
	if err := seeder.SeedAll(); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}

	fmt.Println("Seeding completed.")
}

// CleanDatabase truncates all tables in dependency order
func (s *Seeder) CleanDatabase() error {
	tables := []string{
		"notifications",
		"event_waitlist",
		"ticket_types",
		"events",
		"user_memberships",
		"membership_tiers",
		"users",
	}

	for _, table := range tables {
		if err := s.db.GetPostgreSQL().Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}
	return nil
}

func (s *Seeder) SeedAll() error {
	if err := s.seedUsers(); err != nil {
		return err
	}
	if err := s.seedMemberships(); err != nil {
		return err
	}
	if err := s.seedEvents(); err != nil {
		return err
	}
	return s.seedWaitlist()
}

func (s *Seeder) seedUsers() error {
	seedUsers := []users.User{
		{FirstName: "Ava", LastName: "Admin", Email: "admin@gvteway.com", Role: users.RoleAdmin},
		{FirstName: "Noah", LastName: "Rivera", Email: "noah@example.com", Role: users.RoleUser},
		{FirstName: "Mia", LastName: "Chen", Email: "mia@example.com", Role: users.RoleUser},
		{FirstName: "Liam", LastName: "Okafor", Email: "liam@example.com", Role: users.RoleUser},
		{FirstName: "Zoe", LastName: "Martins", Email: "zoe@example.com", Role: users.RoleUser},
	}

	for i := range seedUsers {
		if err := s.db.GetPostgreSQL().Create(&seedUsers[i]).Error; err != nil {
			return fmt.Errorf("failed to seed user %s: %w", seedUsers[i].Email, err)
		}
		s.userIDs = append(s.userIDs, seedUsers[i].ID)
	}

	fmt.Printf("  seeded %d users\n", len(seedUsers))
	return nil
}

func (s *Seeder) seedMemberships() error {
	tiers := []memberships.MembershipTier{
		{Name: "Extra", TierLevel: 1},
		{Name: "Main", TierLevel: 2},
		{Name: "First Class", TierLevel: 3},
		{Name: "Business", TierLevel: 4},
	}

	for i := range tiers {
		if err := s.db.GetPostgreSQL().Create(&tiers[i]).Error; err != nil {
			return fmt.Errorf("failed to seed tier %s: %w", tiers[i].Name, err)
		}
		s.tierIDs[tiers[i].TierLevel] = tiers[i].ID
	}

	// Give the non-admin users ascending tiers; the last one stays
	// without a membership (tier 0)
	assignments := map[int]int{1: 1, 2: 2, 3: 4}
	for userIdx, tierLevel := range assignments {
		membership := memberships.UserMembership{
			UserID:   s.userIDs[userIdx],
			TierID:   s.tierIDs[tierLevel],
			Status:   memberships.MembershipStatusActive,
			StartsAt: time.Now().UTC(),
		}
		if err := s.db.GetPostgreSQL().Create(&membership).Error; err != nil {
			return fmt.Errorf("failed to seed membership: %w", err)
		}
	}

	fmt.Printf("  seeded %d tiers, %d memberships\n", len(tiers), len(assignments))
	return nil
}

func (s *Seeder) seedEvents() error {
	event := events.Event{
		Title:       "Midnight Circuit Tour",
		Description: "One-night arena show.",
		VenueName:   "Harbor Arena",
		StartsAt:    time.Now().UTC().Add(45 * 24 * time.Hour),
		Status:      events.EventStatusPublished,
	}
	if err := s.db.GetPostgreSQL().Create(&event).Error; err != nil {
		return fmt.Errorf("failed to seed event: %w", err)
	}
	s.eventID = event.ID

	ticketTypes := []events.TicketType{
		{EventID: event.ID, Name: "General Admission", Price: 79, Quantity: 500},
		{EventID: event.ID, Name: "VIP", Price: 249, Quantity: 50},
	}
	for i := range ticketTypes {
		if err := s.db.GetPostgreSQL().Create(&ticketTypes[i]).Error; err != nil {
			return fmt.Errorf("failed to seed ticket type: %w", err)
		}
		s.ticketTypeIDs = append(s.ticketTypeIDs, ticketTypes[i].ID)
	}

	fmt.Printf("  seeded 1 event, %d ticket types\n", len(ticketTypes))
	return nil
}

// seedWaitlist creates a small queue on the VIP ticket type with
// entries that joined at different times
func (s *Seeder) seedWaitlist() error {
	now := time.Now().UTC()
	vip := s.ticketTypeIDs[1]

	seedEntries := []struct {
		userIdx  int
		tier     int
		joinedAt time.Time
	}{
		{1, 1, now.Add(-20 * 24 * time.Hour)},
		{2, 2, now.Add(-10 * 24 * time.Hour)},
		{3, 4, now.Add(-2 * 24 * time.Hour)},
		{4, 0, now.Add(-30 * 24 * time.Hour)},
	}

	for _, se := range seedEntries {
		entry := waitlist.WaitlistEntry{
			EventID:        s.eventID,
			UserID:         s.userIDs[se.userIdx],
			TicketTypeID:   vip,
			MembershipTier: se.tier,
			PriorityScore:  waitlist.CalculatePriorityScore(se.tier, se.joinedAt, now),
			Status:         waitlist.WaitlistStatusWaiting,
			CreatedAt:      se.joinedAt,
		}
		if err := s.db.GetPostgreSQL().Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to seed waitlist entry: %w", err)
		}
	}

	fmt.Printf("  seeded %d waitlist entries\n", len(seedEntries))
	return nil
}
