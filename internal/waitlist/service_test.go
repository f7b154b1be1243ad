package waitlist

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"gvteway/internal/clock"

	"github.com/google/uuid"
)

// fakeRepository is an in-memory Repository honoring the same atomic
// semantics as the PostgreSQL implementation: duplicate active triples
// are rejected on insert and UpdateStatus is a compare-and-swap.
type fakeRepository struct {
	entries []*WaitlistEntry

	// beforeUpdateStatus, when set, runs before each UpdateStatus call.
	// Tests use it to simulate a concurrent writer racing the service.
	beforeUpdateStatus func(id uuid.UUID)

	// casLosses forces that many UpdateStatus calls to lose their
	// compare-and-swap without touching the entry.
	casLosses int
}

func (r *fakeRepository) find(id uuid.UUID) *WaitlistEntry {
	for _, e := range r.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (r *fakeRepository) InsertEntry(ctx context.Context, entry *WaitlistEntry) error {
	for _, e := range r.entries {
		if e.EventID == entry.EventID && e.UserID == entry.UserID && e.TicketTypeID == entry.TicketTypeID &&
			(e.Status == WaitlistStatusWaiting || e.Status == WaitlistStatusNotified) {
			return ErrAlreadyOnWaitlist
		}
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	stored := *entry
	r.entries = append(r.entries, &stored)
	return nil
}

func (r *fakeRepository) FindActiveEntry(ctx context.Context, eventID, userID, ticketTypeID uuid.UUID) (*WaitlistEntry, error) {
	for _, e := range r.entries {
		if e.EventID == eventID && e.UserID == userID && e.TicketTypeID == ticketTypeID &&
			(e.Status == WaitlistStatusWaiting || e.Status == WaitlistStatusNotified) {
			copied := *e
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeRepository) FindEntry(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	if e := r.find(id); e != nil {
		copied := *e
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeRepository) ListByStatus(ctx context.Context, eventID, ticketTypeID uuid.UUID, status WaitlistStatus, limit int) ([]WaitlistEntry, error) {
	var matched []*WaitlistEntry
	for _, e := range r.entries {
		if e.EventID == eventID && e.TicketTypeID == ticketTypeID && e.Status == status {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].PriorityScore != matched[j].PriorityScore {
			return matched[i].PriorityScore > matched[j].PriorityScore
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]WaitlistEntry, len(matched))
	for i, e := range matched {
		out[i] = *e
	}
	return out, nil
}

func (r *fakeRepository) CountByStatus(ctx context.Context, eventID, ticketTypeID uuid.UUID, status WaitlistStatus) (int64, error) {
	var count int64
	for _, e := range r.entries {
		if e.EventID == eventID && e.TicketTypeID == ticketTypeID && e.Status == status {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepository) CountWaitingWithHigherPriority(ctx context.Context, eventID, ticketTypeID uuid.UUID, score int) (int64, error) {
	var count int64
	for _, e := range r.entries {
		if e.EventID == eventID && e.TicketTypeID == ticketTypeID &&
			e.Status == WaitlistStatusWaiting && e.PriorityScore > score {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to WaitlistStatus, fields map[string]interface{}) error {
	if r.beforeUpdateStatus != nil {
		r.beforeUpdateStatus(id)
	}
	if r.casLosses > 0 {
		r.casLosses--
		return ErrConcurrentModification
	}
	e := r.find(id)
	if e == nil || e.Status != from {
		return ErrConcurrentModification
	}
	e.Status = to
	if v, ok := fields["notified_at"].(time.Time); ok {
		e.NotifiedAt = &v
	}
	if v, ok := fields["expires_at"].(time.Time); ok {
		e.ExpiresAt = &v
	}
	if v, ok := fields["purchased_at"].(time.Time); ok {
		e.PurchasedAt = &v
	}
	return nil
}

func (r *fakeRepository) UpdatePriorityScore(ctx context.Context, id uuid.UUID, score int) error {
	e := r.find(id)
	if e == nil {
		return ErrEntryNotFound
	}
	e.PriorityScore = score
	return nil
}

func (r *fakeRepository) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	for i, e := range r.entries {
		if e.ID == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeRepository) ListExpiredNotified(ctx context.Context, now time.Time, limit int) ([]WaitlistEntry, error) {
	var out []WaitlistEntry
	for _, e := range r.entries {
		if e.Status == WaitlistStatusNotified && e.ExpiresAt != nil && e.ExpiresAt.Before(now) {
			out = append(out, *e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeRepository) DeleteExpiredBefore(ctx context.Context, eventID uuid.UUID, cutoff time.Time) (int64, error) {
	return r.deleteWhere(func(e *WaitlistEntry) bool {
		return e.EventID == eventID && e.Status == WaitlistStatusExpired && e.CreatedAt.Before(cutoff)
	}), nil
}

func (r *fakeRepository) DeletePurchasedBefore(ctx context.Context, eventID uuid.UUID, cutoff time.Time) (int64, error) {
	return r.deleteWhere(func(e *WaitlistEntry) bool {
		return e.EventID == eventID && e.Status == WaitlistStatusPurchased &&
			e.PurchasedAt != nil && e.PurchasedAt.Before(cutoff)
	}), nil
}

func (r *fakeRepository) deleteWhere(match func(*WaitlistEntry) bool) int64 {
	var kept []*WaitlistEntry
	var removed int64
	for _, e := range r.entries {
		if match(e) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return removed
}

func (r *fakeRepository) EventsDueForCleanup(ctx context.Context, expiredCutoff, purchasedCutoff time.Time) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, e := range r.entries {
		due := (e.Status == WaitlistStatusExpired && e.CreatedAt.Before(expiredCutoff)) ||
			(e.Status == WaitlistStatusPurchased && e.PurchasedAt != nil && e.PurchasedAt.Before(purchasedCutoff))
		if !due {
			continue
		}
		if _, ok := seen[e.EventID]; ok {
			continue
		}
		seen[e.EventID] = struct{}{}
		out = append(out, e.EventID)
	}
	return out, nil
}

func (r *fakeRepository) AggregateStats(ctx context.Context, eventID uuid.UUID) (map[WaitlistStatus]int, map[int]int, error) {
	byStatus := make(map[WaitlistStatus]int)
	byTier := make(map[int]int)
	for _, e := range r.entries {
		if e.EventID != eventID {
			continue
		}
		byStatus[e.Status]++
		byTier[e.MembershipTier]++
	}
	return byStatus, byTier, nil
}

func (r *fakeRepository) ListNotifiedHistory(ctx context.Context, eventID uuid.UUID) ([]WaitlistEntry, error) {
	var out []WaitlistEntry
	for _, e := range r.entries {
		if e.EventID == eventID && e.NotifiedAt != nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

type fakeGateway struct {
	sent    []TicketsAvailableNotification
	failFor map[uuid.UUID]error // keyed by user id
}

func (g *fakeGateway) SendTicketsAvailable(ctx context.Context, n TicketsAvailableNotification) error {
	if err, ok := g.failFor[n.UserID]; ok {
		return err
	}
	g.sent = append(g.sent, n)
	return nil
}

type fakeTierLookup struct {
	tiers map[uuid.UUID]int
	err   error
}

func (f *fakeTierLookup) GetActiveTier(ctx context.Context, userID uuid.UUID) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.tiers[userID], nil
}

type fakeCatalog struct {
	err error
}

func (f *fakeCatalog) ResolveTitles(ctx context.Context, eventID, ticketTypeID uuid.UUID) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	return "Midnight Circuit Tour", "VIP", nil
}

type serviceFixture struct {
	repo    *fakeRepository
	gateway *fakeGateway
	tiers   *fakeTierLookup
	catalog *fakeCatalog
	now     time.Time
	service Service
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:    &fakeRepository{},
		gateway: &fakeGateway{},
		tiers:   &fakeTierLookup{tiers: make(map[uuid.UUID]int)},
		catalog: &fakeCatalog{},
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.service = NewService(f.repo, f.gateway, f.tiers, f.catalog, clock.NewFixed(f.now), nil, nil)
	return f
}

func (f *serviceFixture) addEntry(eventID, userID, ticketTypeID uuid.UUID, tier, score int, status WaitlistStatus, createdAt time.Time) *WaitlistEntry {
	entry := &WaitlistEntry{
		ID:             uuid.New(),
		EventID:        eventID,
		UserID:         userID,
		TicketTypeID:   ticketTypeID,
		MembershipTier: tier,
		PriorityScore:  score,
		Status:         status,
		CreatedAt:      createdAt,
	}
	f.repo.entries = append(f.repo.entries, entry)
	return entry
}

func timePtr(t time.Time) *time.Time { return &t }

func TestJoinWaitlist(t *testing.T) {
	eventID := uuid.New()
	ticketTypeID := uuid.New()

	t.Run("assigns score from tier and computes position", func(t *testing.T) {
		f := newFixture(t)
		f.addEntry(eventID, uuid.New(), ticketTypeID, 4, 56, WaitlistStatusWaiting, f.now.Add(-time.Hour))
		f.addEntry(eventID, uuid.New(), ticketTypeID, 1, 14, WaitlistStatusWaiting, f.now.Add(-time.Hour))

		userID := uuid.New()
		f.tiers.tiers[userID] = 2

		resp, err := f.service.JoinWaitlist(context.Background(), eventID, userID, ticketTypeID)
		if err != nil {
			t.Fatalf("JoinWaitlist failed: %v", err)
		}
		if resp.PriorityScore != 28 {
			t.Errorf("priority score = %d, want 28", resp.PriorityScore)
		}
		if resp.Position != 2 {
			t.Errorf("position = %d, want 2", resp.Position)
		}

		stored := f.repo.find(resp.EntryID)
		if stored == nil {
			t.Fatal("entry not persisted")
		}
		if stored.Status != WaitlistStatusWaiting {
			t.Errorf("status = %s, want WAITING", stored.Status)
		}
		if stored.MembershipTier != 2 {
			t.Errorf("membership tier snapshot = %d, want 2", stored.MembershipTier)
		}
	})

	t.Run("rejects duplicate active entry", func(t *testing.T) {
		f := newFixture(t)
		userID := uuid.New()

		if _, err := f.service.JoinWaitlist(context.Background(), eventID, userID, ticketTypeID); err != nil {
			t.Fatalf("first join failed: %v", err)
		}
		if _, err := f.service.JoinWaitlist(context.Background(), eventID, userID, ticketTypeID); !errors.Is(err, ErrAlreadyOnWaitlist) {
			t.Errorf("second join error = %v, want ErrAlreadyOnWaitlist", err)
		}
	})

	t.Run("notified entry still blocks rejoining", func(t *testing.T) {
		f := newFixture(t)
		userID := uuid.New()
		e := f.addEntry(eventID, userID, ticketTypeID, 0, 0, WaitlistStatusNotified, f.now.Add(-time.Hour))
		e.NotifiedAt = timePtr(f.now.Add(-time.Minute))

		if _, err := f.service.JoinWaitlist(context.Background(), eventID, userID, ticketTypeID); !errors.Is(err, ErrAlreadyOnWaitlist) {
			t.Errorf("join error = %v, want ErrAlreadyOnWaitlist", err)
		}
	})

	t.Run("purchased entry allows rejoining", func(t *testing.T) {
		f := newFixture(t)
		userID := uuid.New()
		f.addEntry(eventID, userID, ticketTypeID, 0, 0, WaitlistStatusPurchased, f.now.Add(-48*time.Hour))

		if _, err := f.service.JoinWaitlist(context.Background(), eventID, userID, ticketTypeID); err != nil {
			t.Errorf("rejoin after purchase failed: %v", err)
		}
	})

	t.Run("tier lookup failure falls back to tier zero", func(t *testing.T) {
		f := newFixture(t)
		f.tiers.err = errors.New("membership store down")

		resp, err := f.service.JoinWaitlist(context.Background(), eventID, uuid.New(), ticketTypeID)
		if err != nil {
			t.Fatalf("JoinWaitlist failed: %v", err)
		}
		if resp.PriorityScore != 0 {
			t.Errorf("priority score = %d, want 0", resp.PriorityScore)
		}
	})
}

func TestLeaveWaitlist(t *testing.T) {
	eventID := uuid.New()
	ticketTypeID := uuid.New()

	t.Run("removes own waiting entry", func(t *testing.T) {
		f := newFixture(t)
		userID := uuid.New()
		e := f.addEntry(eventID, userID, ticketTypeID, 1, 14, WaitlistStatusWaiting, f.now)

		if err := f.service.LeaveWaitlist(context.Background(), e.ID, userID); err != nil {
			t.Fatalf("LeaveWaitlist failed: %v", err)
		}
		if f.repo.find(e.ID) != nil {
			t.Error("entry still present after leave")
		}
	})

	t.Run("unknown entry", func(t *testing.T) {
		f := newFixture(t)
		if err := f.service.LeaveWaitlist(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, ErrEntryNotFound) {
			t.Errorf("error = %v, want ErrEntryNotFound", err)
		}
	})

	t.Run("someone else's entry", func(t *testing.T) {
		f := newFixture(t)
		e := f.addEntry(eventID, uuid.New(), ticketTypeID, 1, 14, WaitlistStatusWaiting, f.now)

		if err := f.service.LeaveWaitlist(context.Background(), e.ID, uuid.New()); !errors.Is(err, ErrForbidden) {
			t.Errorf("error = %v, want ErrForbidden", err)
		}
		if f.repo.find(e.ID) == nil {
			t.Error("entry was deleted despite ownership mismatch")
		}
	})

	t.Run("notified entry cannot leave", func(t *testing.T) {
		f := newFixture(t)
		userID := uuid.New()
		e := f.addEntry(eventID, userID, ticketTypeID, 1, 14, WaitlistStatusNotified, f.now)

		if err := f.service.LeaveWaitlist(context.Background(), e.ID, userID); !errors.Is(err, ErrInvalidState) {
			t.Errorf("error = %v, want ErrInvalidState", err)
		}
	})
}

func TestGetPosition(t *testing.T) {
	eventID := uuid.New()
	ticketTypeID := uuid.New()

	t.Run("reflects strictly higher scores", func(t *testing.T) {
		f := newFixture(t)
		userID := uuid.New()
		f.addEntry(eventID, uuid.New(), ticketTypeID, 4, 56, WaitlistStatusWaiting, f.now)
		f.addEntry(eventID, userID, ticketTypeID, 2, 28, WaitlistStatusWaiting, f.now)
		f.addEntry(eventID, uuid.New(), ticketTypeID, 2, 28, WaitlistStatusWaiting, f.now)
		f.addEntry(eventID, uuid.New(), ticketTypeID, 0, 0, WaitlistStatusWaiting, f.now)

		pos, err := f.service.GetPosition(context.Background(), userID, eventID, ticketTypeID)
		if err != nil {
			t.Fatalf("GetPosition failed: %v", err)
		}
		if pos == nil {
			t.Fatal("position is nil for a waiting user")
		}
		if pos.Position != 2 {
			t.Errorf("position = %d, want 2", pos.Position)
		}
		if pos.Total != 4 {
			t.Errorf("total = %d, want 4", pos.Total)
		}
	})

	t.Run("nil when not on the waitlist", func(t *testing.T) {
		f := newFixture(t)
		pos, err := f.service.GetPosition(context.Background(), uuid.New(), eventID, ticketTypeID)
		if err != nil {
			t.Fatalf("GetPosition failed: %v", err)
		}
		if pos != nil {
			t.Errorf("position = %+v, want nil", pos)
		}
	})

	t.Run("nil once notified", func(t *testing.T) {
		f := newFixture(t)
		userID := uuid.New()
		f.addEntry(eventID, userID, ticketTypeID, 1, 14, WaitlistStatusNotified, f.now)

		pos, err := f.service.GetPosition(context.Background(), userID, eventID, ticketTypeID)
		if err != nil {
			t.Fatalf("GetPosition failed: %v", err)
		}
		if pos != nil {
			t.Errorf("position = %+v, want nil for notified entry", pos)
		}
	})
}

func TestNotifyWaitlist(t *testing.T) {
	eventID := uuid.New()
	ticketTypeID := uuid.New()

	t.Run("notifies top entries in priority order", func(t *testing.T) {
		f := newFixture(t)
		top := f.addEntry(eventID, uuid.New(), ticketTypeID, 4, 86, WaitlistStatusWaiting, f.now.Add(-30*24*time.Hour))
		second := f.addEntry(eventID, uuid.New(), ticketTypeID, 3, 42, WaitlistStatusWaiting, f.now)
		third := f.addEntry(eventID, uuid.New(), ticketTypeID, 1, 14, WaitlistStatusWaiting, f.now)

		result, err := f.service.NotifyWaitlist(context.Background(), eventID, ticketTypeID, 2)
		if err != nil {
			t.Fatalf("NotifyWaitlist failed: %v", err)
		}
		if result.Notified != 2 || result.Delivered != 2 || result.Skipped != 0 {
			t.Errorf("result = %+v, want 2 notified, 2 delivered, 0 skipped", result)
		}

		if got := f.repo.find(top.ID).Status; got != WaitlistStatusNotified {
			t.Errorf("top entry status = %s, want NOTIFIED", got)
		}
		if got := f.repo.find(second.ID).Status; got != WaitlistStatusNotified {
			t.Errorf("second entry status = %s, want NOTIFIED", got)
		}
		if got := f.repo.find(third.ID).Status; got != WaitlistStatusWaiting {
			t.Errorf("third entry status = %s, want WAITING", got)
		}

		notified := f.repo.find(top.ID)
		if notified.NotifiedAt == nil || !notified.NotifiedAt.Equal(f.now) {
			t.Errorf("notified_at = %v, want %v", notified.NotifiedAt, f.now)
		}
		wantExpiry := f.now.Add(NotifyWindowDuration)
		if notified.ExpiresAt == nil || !notified.ExpiresAt.Equal(wantExpiry) {
			t.Errorf("expires_at = %v, want %v", notified.ExpiresAt, wantExpiry)
		}

		if len(f.gateway.sent) != 2 {
			t.Fatalf("gateway received %d notifications, want 2", len(f.gateway.sent))
		}
		if f.gateway.sent[0].EntryID != top.ID || f.gateway.sent[1].EntryID != second.ID {
			t.Error("notifications not dispatched in priority order")
		}
		if f.gateway.sent[0].EventTitle != "Midnight Circuit Tour" || f.gateway.sent[0].TicketTypeName != "VIP" {
			t.Errorf("notification titles = %q/%q", f.gateway.sent[0].EventTitle, f.gateway.sent[0].TicketTypeName)
		}
	})

	t.Run("equal scores break ties by join time", func(t *testing.T) {
		f := newFixture(t)
		later := f.addEntry(eventID, uuid.New(), ticketTypeID, 2, 28, WaitlistStatusWaiting, f.now.Add(-time.Hour))
		earlier := f.addEntry(eventID, uuid.New(), ticketTypeID, 2, 28, WaitlistStatusWaiting, f.now.Add(-2*time.Hour))

		result, err := f.service.NotifyWaitlist(context.Background(), eventID, ticketTypeID, 1)
		if err != nil {
			t.Fatalf("NotifyWaitlist failed: %v", err)
		}
		if result.Notified != 1 {
			t.Fatalf("notified = %d, want 1", result.Notified)
		}
		if got := f.repo.find(earlier.ID).Status; got != WaitlistStatusNotified {
			t.Errorf("earlier joiner status = %s, want NOTIFIED", got)
		}
		if got := f.repo.find(later.ID).Status; got != WaitlistStatusWaiting {
			t.Errorf("later joiner status = %s, want WAITING", got)
		}
	})

	t.Run("count beyond queue notifies everyone waiting", func(t *testing.T) {
		f := newFixture(t)
		f.addEntry(eventID, uuid.New(), ticketTypeID, 1, 14, WaitlistStatusWaiting, f.now)
		f.addEntry(eventID, uuid.New(), ticketTypeID, 0, 0, WaitlistStatusWaiting, f.now)

		result, err := f.service.NotifyWaitlist(context.Background(), eventID, ticketTypeID, 10)
		if err != nil {
			t.Fatalf("NotifyWaitlist failed: %v", err)
		}
		if result.Notified != 2 {
			t.Errorf("notified = %d, want 2", result.Notified)
		}
	})

	t.Run("empty queue is a no-op", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.service.NotifyWaitlist(context.Background(), eventID, ticketTypeID, 5)
		if err != nil {
			t.Fatalf("NotifyWaitlist failed: %v", err)
		}
		if result.Notified != 0 || len(f.gateway.sent) != 0 {
			t.Errorf("result = %+v with %d sent, want nothing", result, len(f.gateway.sent))
		}
	})

	t.Run("skips entries modified between selection and transition", func(t *testing.T) {
		f := newFixture(t)
		racing := f.addEntry(eventID, uuid.New(), ticketTypeID, 4, 56, WaitlistStatusWaiting, f.now)
		stable := f.addEntry(eventID, uuid.New(), ticketTypeID, 1, 14, WaitlistStatusWaiting, f.now)

		// A concurrent leave deletes the top entry right before its CAS.
		f.repo.beforeUpdateStatus = func(id uuid.UUID) {
			if id == racing.ID {
				f.repo.beforeUpdateStatus = nil
				_ = f.repo.DeleteEntry(context.Background(), racing.ID)
			}
		}

		result, err := f.service.NotifyWaitlist(context.Background(), eventID, ticketTypeID, 2)
		if err != nil {
			t.Fatalf("NotifyWaitlist failed: %v", err)
		}
		if result.Skipped != 1 {
			t.Errorf("skipped = %d, want 1", result.Skipped)
		}
		if result.Notified != 1 {
			t.Errorf("notified = %d, want 1", result.Notified)
		}
		if got := f.repo.find(stable.ID).Status; got != WaitlistStatusNotified {
			t.Errorf("stable entry status = %s, want NOTIFIED", got)
		}
	})

	t.Run("delivery failure keeps the transition", func(t *testing.T) {
		f := newFixture(t)
		unreachable := uuid.New()
		f.gateway.failFor = map[uuid.UUID]error{unreachable: errors.New("smtp refused")}

		failed := f.addEntry(eventID, unreachable, ticketTypeID, 4, 56, WaitlistStatusWaiting, f.now)
		f.addEntry(eventID, uuid.New(), ticketTypeID, 1, 14, WaitlistStatusWaiting, f.now)

		result, err := f.service.NotifyWaitlist(context.Background(), eventID, ticketTypeID, 2)
		if err != nil {
			t.Fatalf("NotifyWaitlist failed: %v", err)
		}
		if result.Notified != 2 {
			t.Errorf("notified = %d, want 2", result.Notified)
		}
		if result.Delivered != 1 {
			t.Errorf("delivered = %d, want 1", result.Delivered)
		}
		if len(result.DeliveryFailures) != 1 || result.DeliveryFailures[0].UserID != unreachable {
			t.Errorf("delivery failures = %+v", result.DeliveryFailures)
		}
		if got := f.repo.find(failed.ID).Status; got != WaitlistStatusNotified {
			t.Errorf("failed delivery entry status = %s, want NOTIFIED", got)
		}
	})

	t.Run("missing gateway still reserves inventory", func(t *testing.T) {
		f := newFixture(t)
		f.service = NewService(f.repo, nil, f.tiers, f.catalog, clock.NewFixed(f.now), nil, nil)
		e := f.addEntry(eventID, uuid.New(), ticketTypeID, 2, 28, WaitlistStatusWaiting, f.now)

		result, err := f.service.NotifyWaitlist(context.Background(), eventID, ticketTypeID, 1)
		if err != nil {
			t.Fatalf("NotifyWaitlist failed: %v", err)
		}
		if result.Notified != 1 || result.Delivered != 0 || len(result.DeliveryFailures) != 1 {
			t.Errorf("result = %+v, want 1 notified, 0 delivered, 1 failure", result)
		}
		if got := f.repo.find(e.ID).Status; got != WaitlistStatusNotified {
			t.Errorf("entry status = %s, want NOTIFIED", got)
		}
	})

	t.Run("unresolvable titles use placeholders", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.err = errors.New("event deleted")
		f.addEntry(eventID, uuid.New(), ticketTypeID, 2, 28, WaitlistStatusWaiting, f.now)

		result, err := f.service.NotifyWaitlist(context.Background(), eventID, ticketTypeID, 1)
		if err != nil {
			t.Fatalf("NotifyWaitlist failed: %v", err)
		}
		if result.Delivered != 1 {
			t.Fatalf("delivered = %d, want 1", result.Delivered)
		}
		if f.gateway.sent[0].EventTitle != "your event" || f.gateway.sent[0].TicketTypeName != "your ticket" {
			t.Errorf("placeholder titles = %q/%q", f.gateway.sent[0].EventTitle, f.gateway.sent[0].TicketTypeName)
		}
	})
}

func TestMarkPurchased(t *testing.T) {
	eventID := uuid.New()
	ticketTypeID := uuid.New()

	t.Run("converts a notified entry", func(t *testing.T) {
		f := newFixture(t)
		userID := uuid.New()
		e := f.addEntry(eventID, userID, ticketTypeID, 2, 28, WaitlistStatusNotified, f.now.Add(-time.Hour))
		e.NotifiedAt = timePtr(f.now.Add(-time.Hour))
		e.ExpiresAt = timePtr(f.now.Add(23 * time.Hour))

		if err := f.service.MarkPurchased(context.Background(), userID, eventID, ticketTypeID); err != nil {
			t.Fatalf("MarkPurchased failed: %v", err)
		}

		stored := f.repo.find(e.ID)
		if stored.Status != WaitlistStatusPurchased {
			t.Errorf("status = %s, want PURCHASED", stored.Status)
		}
		if stored.PurchasedAt == nil || !stored.PurchasedAt.Equal(f.now) {
			t.Errorf("purchased_at = %v, want %v", stored.PurchasedAt, f.now)
		}
	})

	t.Run("no-op while still waiting", func(t *testing.T) {
		f := newFixture(t)
		userID := uuid.New()
		e := f.addEntry(eventID, userID, ticketTypeID, 2, 28, WaitlistStatusWaiting, f.now)

		if err := f.service.MarkPurchased(context.Background(), userID, eventID, ticketTypeID); err != nil {
			t.Fatalf("MarkPurchased failed: %v", err)
		}
		if got := f.repo.find(e.ID).Status; got != WaitlistStatusWaiting {
			t.Errorf("status = %s, want WAITING", got)
		}
	})

	t.Run("no-op without an entry", func(t *testing.T) {
		f := newFixture(t)
		if err := f.service.MarkPurchased(context.Background(), uuid.New(), eventID, ticketTypeID); err != nil {
			t.Errorf("MarkPurchased failed: %v", err)
		}
	})

	t.Run("gives up after repeated races", func(t *testing.T) {
		f := newFixture(t)
		userID := uuid.New()
		f.addEntry(eventID, userID, ticketTypeID, 2, 28, WaitlistStatusNotified, f.now)

		// The entry stays NOTIFIED so every re-read selects it again,
		// but each CAS attempt loses to a simulated concurrent writer.
		f.repo.casLosses = maxCASRetries

		err := f.service.MarkPurchased(context.Background(), userID, eventID, ticketTypeID)
		if !errors.Is(err, ErrConcurrentModification) {
			t.Errorf("error = %v, want ErrConcurrentModification", err)
		}
	})
}

func TestExpireNotifications(t *testing.T) {
	eventID := uuid.New()
	ticketTypeID := uuid.New()

	t.Run("expires only lapsed windows and is idempotent", func(t *testing.T) {
		f := newFixture(t)

		lapsed1 := f.addEntry(eventID, uuid.New(), ticketTypeID, 2, 28, WaitlistStatusNotified, f.now.Add(-26*time.Hour))
		lapsed1.NotifiedAt = timePtr(f.now.Add(-26 * time.Hour))
		lapsed1.ExpiresAt = timePtr(f.now.Add(-2 * time.Hour))

		lapsed2 := f.addEntry(eventID, uuid.New(), ticketTypeID, 1, 14, WaitlistStatusNotified, f.now.Add(-25*time.Hour))
		lapsed2.NotifiedAt = timePtr(f.now.Add(-25 * time.Hour))
		lapsed2.ExpiresAt = timePtr(f.now.Add(-time.Hour))

		open := f.addEntry(eventID, uuid.New(), ticketTypeID, 3, 42, WaitlistStatusNotified, f.now.Add(-time.Hour))
		open.NotifiedAt = timePtr(f.now.Add(-time.Hour))
		open.ExpiresAt = timePtr(f.now.Add(23 * time.Hour))

		waiting := f.addEntry(eventID, uuid.New(), ticketTypeID, 0, 0, WaitlistStatusWaiting, f.now)

		expired, err := f.service.ExpireNotifications(context.Background())
		if err != nil {
			t.Fatalf("ExpireNotifications failed: %v", err)
		}
		if expired != 2 {
			t.Errorf("expired = %d, want 2", expired)
		}
		if got := f.repo.find(lapsed1.ID).Status; got != WaitlistStatusExpired {
			t.Errorf("lapsed entry status = %s, want EXPIRED", got)
		}
		if got := f.repo.find(open.ID).Status; got != WaitlistStatusNotified {
			t.Errorf("open window status = %s, want NOTIFIED", got)
		}
		if got := f.repo.find(waiting.ID).Status; got != WaitlistStatusWaiting {
			t.Errorf("waiting entry status = %s, want WAITING", got)
		}

		again, err := f.service.ExpireNotifications(context.Background())
		if err != nil {
			t.Fatalf("second sweep failed: %v", err)
		}
		if again != 0 {
			t.Errorf("second sweep expired = %d, want 0", again)
		}
	})

	t.Run("does not spin when every CAS loses", func(t *testing.T) {
		f := newFixture(t)
		e := f.addEntry(eventID, uuid.New(), ticketTypeID, 2, 28, WaitlistStatusNotified, f.now.Add(-26*time.Hour))
		e.ExpiresAt = timePtr(f.now.Add(-time.Hour))

		f.repo.casLosses = 5

		expired, err := f.service.ExpireNotifications(context.Background())
		if err != nil {
			t.Fatalf("ExpireNotifications failed: %v", err)
		}
		if expired != 0 {
			t.Errorf("expired = %d, want 0", expired)
		}
		if f.repo.casLosses != 4 {
			t.Errorf("CAS attempted %d times, want 1 (no re-spin on the same batch)", 5-f.repo.casLosses)
		}
	})
}

func TestCleanupWaitlist(t *testing.T) {
	eventID := uuid.New()
	ticketTypeID := uuid.New()

	f := newFixture(t)

	oldExpired := f.addEntry(eventID, uuid.New(), ticketTypeID, 0, 0, WaitlistStatusExpired, f.now.Add(-31*24*time.Hour))
	recentExpired := f.addEntry(eventID, uuid.New(), ticketTypeID, 0, 0, WaitlistStatusExpired, f.now.Add(-10*24*time.Hour))

	oldPurchased := f.addEntry(eventID, uuid.New(), ticketTypeID, 2, 28, WaitlistStatusPurchased, f.now.Add(-20*24*time.Hour))
	oldPurchased.PurchasedAt = timePtr(f.now.Add(-8 * 24 * time.Hour))
	recentPurchased := f.addEntry(eventID, uuid.New(), ticketTypeID, 2, 28, WaitlistStatusPurchased, f.now.Add(-20*24*time.Hour))
	recentPurchased.PurchasedAt = timePtr(f.now.Add(-2 * 24 * time.Hour))

	waiting := f.addEntry(eventID, uuid.New(), ticketTypeID, 1, 14, WaitlistStatusWaiting, f.now.Add(-60*24*time.Hour))

	result, err := f.service.CleanupWaitlist(context.Background(), eventID)
	if err != nil {
		t.Fatalf("CleanupWaitlist failed: %v", err)
	}
	if result.ExpiredRemoved != 1 {
		t.Errorf("expired removed = %d, want 1", result.ExpiredRemoved)
	}
	if result.CompletedRemoved != 1 {
		t.Errorf("completed removed = %d, want 1", result.CompletedRemoved)
	}

	if f.repo.find(oldExpired.ID) != nil {
		t.Error("expired entry past retention survived cleanup")
	}
	if f.repo.find(recentExpired.ID) == nil {
		t.Error("recent expired entry was removed")
	}
	if f.repo.find(oldPurchased.ID) != nil {
		t.Error("purchased entry past retention survived cleanup")
	}
	if f.repo.find(recentPurchased.ID) == nil {
		t.Error("recent purchased entry was removed")
	}
	if f.repo.find(waiting.ID) == nil {
		t.Error("waiting entry was removed regardless of age")
	}
}

func TestReorderPriorities(t *testing.T) {
	eventID := uuid.New()
	ticketTypeID := uuid.New()

	f := newFixture(t)

	// Joined 15 days ago with the score computed at join time; the
	// recency component has since grown.
	stale := f.addEntry(eventID, uuid.New(), ticketTypeID, 2, 28, WaitlistStatusWaiting, f.now.Add(-15*24*time.Hour))
	current := f.addEntry(eventID, uuid.New(), ticketTypeID, 1, 14, WaitlistStatusWaiting, f.now)
	notified := f.addEntry(eventID, uuid.New(), ticketTypeID, 4, 56, WaitlistStatusNotified, f.now.Add(-20*24*time.Hour))

	updated, err := f.service.ReorderPriorities(context.Background(), eventID, ticketTypeID)
	if err != nil {
		t.Fatalf("ReorderPriorities failed: %v", err)
	}
	if updated != 1 {
		t.Errorf("updated = %d, want 1", updated)
	}
	if got := f.repo.find(stale.ID).PriorityScore; got != 43 {
		t.Errorf("recomputed score = %d, want 43", got)
	}
	if got := f.repo.find(current.ID).PriorityScore; got != 14 {
		t.Errorf("already-current score changed to %d", got)
	}
	if got := f.repo.find(notified.ID).PriorityScore; got != 56 {
		t.Errorf("notified entry score changed to %d", got)
	}
}

func TestBatchJoin(t *testing.T) {
	eventID := uuid.New()
	ticketTypeID := uuid.New()

	f := newFixture(t)
	userA := uuid.New()
	userB := uuid.New()
	f.tiers.tiers[userA] = 3

	requests := []BatchJoinItem{
		{EventID: eventID, UserID: userA, TicketTypeID: ticketTypeID},
		{EventID: eventID, UserID: userB, TicketTypeID: ticketTypeID},
		{EventID: eventID, UserID: userA, TicketTypeID: ticketTypeID}, // duplicate
	}

	result, err := f.service.BatchJoin(context.Background(), requests)
	if err != nil {
		t.Fatalf("BatchJoin failed: %v", err)
	}
	if result.Successful != 2 {
		t.Errorf("successful = %d, want 2", result.Successful)
	}
	if result.Failed != 1 {
		t.Errorf("failed = %d, want 1", result.Failed)
	}
	if len(result.Results) != 3 {
		t.Fatalf("results length = %d, want 3", len(result.Results))
	}
	if !result.Results[0].Success || result.Results[0].PriorityScore != 42 {
		t.Errorf("first result = %+v, want success with score 42", result.Results[0])
	}
	if result.Results[2].Success || result.Results[2].Error == "" {
		t.Errorf("duplicate result = %+v, want failure with error", result.Results[2])
	}
}

func TestGetStats(t *testing.T) {
	eventID := uuid.New()
	ticketTypeID := uuid.New()

	f := newFixture(t)
	f.addEntry(eventID, uuid.New(), ticketTypeID, 2, 28, WaitlistStatusWaiting, f.now)
	f.addEntry(eventID, uuid.New(), ticketTypeID, 2, 28, WaitlistStatusWaiting, f.now)
	f.addEntry(eventID, uuid.New(), ticketTypeID, 4, 56, WaitlistStatusNotified, f.now)
	f.addEntry(eventID, uuid.New(), ticketTypeID, 0, 0, WaitlistStatusPurchased, f.now)
	f.addEntry(uuid.New(), uuid.New(), ticketTypeID, 0, 0, WaitlistStatusWaiting, f.now) // other event

	stats, err := f.service.GetStats(context.Background(), eventID)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Total != 4 {
		t.Errorf("total = %d, want 4", stats.Total)
	}
	if stats.Waiting != 2 || stats.Notified != 1 || stats.Purchased != 1 || stats.Expired != 0 {
		t.Errorf("status counts = %+v", stats)
	}
	if stats.ByTier[2] != 2 || stats.ByTier[4] != 1 || stats.ByTier[0] != 1 {
		t.Errorf("tier counts = %v", stats.ByTier)
	}
}

func TestGetConversionRate(t *testing.T) {
	eventID := uuid.New()
	ticketTypeID := uuid.New()

	t.Run("rate and average convert time", func(t *testing.T) {
		f := newFixture(t)

		fast := f.addEntry(eventID, uuid.New(), ticketTypeID, 2, 28, WaitlistStatusPurchased, f.now.Add(-48*time.Hour))
		fast.NotifiedAt = timePtr(f.now.Add(-10 * time.Hour))
		fast.PurchasedAt = timePtr(f.now.Add(-8 * time.Hour))

		slow := f.addEntry(eventID, uuid.New(), ticketTypeID, 1, 14, WaitlistStatusPurchased, f.now.Add(-48*time.Hour))
		slow.NotifiedAt = timePtr(f.now.Add(-10 * time.Hour))
		slow.PurchasedAt = timePtr(f.now.Add(-6 * time.Hour))

		lapsed := f.addEntry(eventID, uuid.New(), ticketTypeID, 0, 0, WaitlistStatusExpired, f.now.Add(-72*time.Hour))
		lapsed.NotifiedAt = timePtr(f.now.Add(-48 * time.Hour))

		pending := f.addEntry(eventID, uuid.New(), ticketTypeID, 3, 42, WaitlistStatusNotified, f.now.Add(-time.Hour))
		pending.NotifiedAt = timePtr(f.now.Add(-time.Hour))

		f.addEntry(eventID, uuid.New(), ticketTypeID, 0, 0, WaitlistStatusWaiting, f.now) // never notified

		conv, err := f.service.GetConversionRate(context.Background(), eventID)
		if err != nil {
			t.Fatalf("GetConversionRate failed: %v", err)
		}
		if conv.TotalNotified != 4 {
			t.Errorf("total notified = %d, want 4", conv.TotalNotified)
		}
		if conv.TotalPurchased != 2 {
			t.Errorf("total purchased = %d, want 2", conv.TotalPurchased)
		}
		if conv.ConversionRate != 50 {
			t.Errorf("conversion rate = %v, want 50", conv.ConversionRate)
		}
		// fast converted in 2h, slow in 4h
		if conv.AverageTimeToConvertHours != 3 {
			t.Errorf("average convert hours = %v, want 3", conv.AverageTimeToConvertHours)
		}
	})

	t.Run("rate rounds to one decimal", func(t *testing.T) {
		f := newFixture(t)
		for i := 0; i < 3; i++ {
			e := f.addEntry(eventID, uuid.New(), ticketTypeID, 0, 0, WaitlistStatusExpired, f.now.Add(-72*time.Hour))
			e.NotifiedAt = timePtr(f.now.Add(-48 * time.Hour))
		}
		bought := f.addEntry(eventID, uuid.New(), ticketTypeID, 0, 0, WaitlistStatusPurchased, f.now.Add(-72*time.Hour))
		bought.NotifiedAt = timePtr(f.now.Add(-48 * time.Hour))
		bought.PurchasedAt = timePtr(f.now.Add(-47 * time.Hour))

		conv, err := f.service.GetConversionRate(context.Background(), eventID)
		if err != nil {
			t.Fatalf("GetConversionRate failed: %v", err)
		}
		if conv.ConversionRate != 25 {
			t.Errorf("conversion rate = %v, want 25", conv.ConversionRate)
		}

		// 1 of 3 notified converts to 33.3 after rounding
		f2 := newFixture(t)
		for i := 0; i < 2; i++ {
			e := f2.addEntry(eventID, uuid.New(), ticketTypeID, 0, 0, WaitlistStatusExpired, f2.now.Add(-72*time.Hour))
			e.NotifiedAt = timePtr(f2.now.Add(-48 * time.Hour))
		}
		b2 := f2.addEntry(eventID, uuid.New(), ticketTypeID, 0, 0, WaitlistStatusPurchased, f2.now.Add(-72*time.Hour))
		b2.NotifiedAt = timePtr(f2.now.Add(-48 * time.Hour))
		b2.PurchasedAt = timePtr(f2.now.Add(-47 * time.Hour))

		conv2, err := f2.service.GetConversionRate(context.Background(), eventID)
		if err != nil {
			t.Fatalf("GetConversionRate failed: %v", err)
		}
		if conv2.ConversionRate != 33.3 {
			t.Errorf("conversion rate = %v, want 33.3", conv2.ConversionRate)
		}
	})

	t.Run("zero notified reports zero rate", func(t *testing.T) {
		f := newFixture(t)
		f.addEntry(eventID, uuid.New(), ticketTypeID, 0, 0, WaitlistStatusWaiting, f.now)

		conv, err := f.service.GetConversionRate(context.Background(), eventID)
		if err != nil {
			t.Fatalf("GetConversionRate failed: %v", err)
		}
		if conv.TotalNotified != 0 || conv.ConversionRate != 0 {
			t.Errorf("conversion = %+v, want zeros", conv)
		}
	})
}
