package data

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "nested", "relay.db"))
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRuleRepo_Keywords(t *testing.T) {
	ctx := context.Background()
	r := NewRuleRepo(openTestDB(t))

	rule := &domain.KeywordRule{Word: "taksi kerak", Category: domain.KeywordForce, OwnerID: "ou_admin"}
	if err := r.AddKeyword(ctx, rule); err != nil {
		t.Fatalf("AddKeyword failed: %v", err)
	}
	if rule.ID == 0 {
		t.Error("Expected id to be set")
	}

	dup := &domain.KeywordRule{Word: "taksi kerak", Category: domain.KeywordForce}
	if err := r.AddKeyword(ctx, dup); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}

	// same word in another category is a different rule
	other := &domain.KeywordRule{Word: "taksi kerak", Category: domain.KeywordExclude}
	if err := r.AddKeyword(ctx, other); err != nil {
		t.Fatalf("AddKeyword in other category failed: %v", err)
	}

	force, err := r.ListKeywords(ctx, domain.KeywordForce)
	if err != nil {
		t.Fatalf("ListKeywords failed: %v", err)
	}
	if len(force) != 1 || force[0].OwnerID != "ou_admin" {
		t.Errorf("Expected 1 force rule owned by ou_admin, got %+v", force)
	}

	all, _ := r.ListKeywords(ctx, "")
	if len(all) != 2 {
		t.Errorf("Expected 2 rules, got %d", len(all))
	}

	if err := r.RemoveKeyword(ctx, rule.ID); err != nil {
		t.Fatalf("RemoveKeyword failed: %v", err)
	}
	if err := r.RemoveKeyword(ctx, rule.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRuleRepo_BlockAndSettings(t *testing.T) {
	ctx := context.Background()
	r := NewRuleRepo(openTestDB(t))

	if err := r.Block(ctx, &domain.BlockEntry{UserID: "ou_spam", BlockedBy: "ou_admin", Reason: "spam"}); err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	// blocking again replaces the entry
	if err := r.Block(ctx, &domain.BlockEntry{UserID: "ou_spam", BlockedBy: "ou_admin2"}); err != nil {
		t.Fatalf("Block again failed: %v", err)
	}

	list, err := r.ListBlocked(ctx)
	if err != nil {
		t.Fatalf("ListBlocked failed: %v", err)
	}
	if len(list) != 1 || list[0].BlockedBy != "ou_admin2" {
		t.Errorf("Expected one entry blocked by ou_admin2, got %+v", list)
	}

	if err := r.Unblock(ctx, "ou_spam"); err != nil {
		t.Fatalf("Unblock failed: %v", err)
	}
	if err := r.Unblock(ctx, "ou_spam"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if v, _ := r.GetSetting(ctx, "classifier_prompt"); v != "" {
		t.Errorf("Expected empty setting, got %q", v)
	}
	r.SetSetting(ctx, "classifier_prompt", "custom")
	if v, _ := r.GetSetting(ctx, "classifier_prompt"); v != "custom" {
		t.Errorf("Expected 'custom', got %q", v)
	}
	r.SetSetting(ctx, "classifier_prompt", "")
	if v, _ := r.GetSetting(ctx, "classifier_prompt"); v != "" {
		t.Errorf("Expected setting deleted, got %q", v)
	}
}

func TestRoomRepo_Registry(t *testing.T) {
	ctx := context.Background()
	r := NewRoomRepo(openTestDB(t))

	added, err := r.UpsertSource(ctx, &domain.SourceRoom{RoomID: "oc_src", Title: "Old", Active: true})
	if err != nil || !added {
		t.Fatalf("Expected new source, got added=%v err=%v", added, err)
	}
	added, err = r.UpsertSource(ctx, &domain.SourceRoom{RoomID: "oc_src", Title: "New"})
	if err != nil || added {
		t.Fatalf("Expected existing source, got added=%v err=%v", added, err)
	}

	r.AddRoom(ctx, domain.RoomDestination, "oc_dst")
	r.AddRoom(ctx, domain.RoomDestination, "oc_dst")
	r.AddRoom(ctx, domain.RoomMonitored, "oc_mon")

	reg, err := r.Registry(ctx)
	if err != nil {
		t.Fatalf("Registry failed: %v", err)
	}
	if len(reg.Sources) != 1 || reg.Sources[0].Title != "New" || !reg.Sources[0].Active {
		t.Errorf("Expected active source titled New, got %+v", reg.Sources)
	}
	if len(reg.Destinations) != 1 || reg.Destinations[0] != "oc_dst" {
		t.Errorf("Expected one destination, got %v", reg.Destinations)
	}
	if !reg.IsWatched("oc_mon") {
		t.Error("Expected monitored room to be watched")
	}

	if err := r.SetSourceActive(ctx, "oc_src", false); err != nil {
		t.Fatalf("SetSourceActive failed: %v", err)
	}
	reg, _ = r.Registry(ctx)
	if reg.IsWatched("oc_src") {
		t.Error("Expected inactive source not to be watched")
	}

	if err := r.SetSourceActive(ctx, "oc_missing", true); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := r.RemoveRoom(ctx, domain.RoomMonitored, "oc_dst"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for wrong kind, got %v", err)
	}
	if err := r.RemoveRoom(ctx, domain.RoomDestination, "oc_dst"); err != nil {
		t.Errorf("RemoveRoom failed: %v", err)
	}
}

func TestQuotaRepo_ReserveStopsAtMax(t *testing.T) {
	ctx := context.Background()
	q := NewQuotaRepo(openTestDB(t))

	for i := 1; i <= 3; i++ {
		ok, n, err := q.Reserve(ctx, "ou_a", "2026-03-10", 3)
		if err != nil || !ok || n != i {
			t.Fatalf("Reserve %d: expected ok with count %d, got ok=%v n=%d err=%v", i, i, ok, n, err)
		}
	}
	ok, n, err := q.Reserve(ctx, "ou_a", "2026-03-10", 3)
	if err != nil || ok || n != 3 {
		t.Errorf("Expected exhausted at 3, got ok=%v n=%d err=%v", ok, n, err)
	}

	// another day starts over
	ok, n, _ = q.Reserve(ctx, "ou_a", "2026-03-11", 3)
	if !ok || n != 1 {
		t.Errorf("Expected fresh counter next day, got ok=%v n=%d", ok, n)
	}

	if n, _ := q.Count(ctx, "ou_b", "2026-03-10"); n != 0 {
		t.Errorf("Expected 0 for unknown user, got %d", n)
	}

	removed, err := q.Cleanup(ctx, "2026-03-11")
	if err != nil || removed != 1 {
		t.Errorf("Expected 1 row removed, got %d err=%v", removed, err)
	}
}

func TestQuotaRepo_ConcurrentReserve(t *testing.T) {
	ctx := context.Background()
	q := NewQuotaRepo(openTestDB(t))

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := q.Reserve(ctx, "ou_a", "2026-03-10", 3)
			if err != nil {
				t.Errorf("Reserve failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 3 {
		t.Errorf("Expected exactly 3 reservations, got %d", accepted)
	}
}

func TestOrderRepo_SaveListCleanup(t *testing.T) {
	ctx := context.Background()
	r := NewOrderRepo(openTestDB(t))

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"o1", "o2", "o3"} {
		o := &domain.OrderRecord{
			ID: id, UserID: "ou_a", Text: "Toshkentdan Samarqandga", RoomID: "oc_src",
			Intent: domain.IntentRiderOrder, Delivered: 2,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if id == "o2" {
			o.Phone = "+998901234567"
		}
		if err := r.SaveOrder(ctx, o); err != nil {
			t.Fatalf("SaveOrder failed: %v", err)
		}
	}

	recent, err := r.RecentOrders(ctx, 2)
	if err != nil {
		t.Fatalf("RecentOrders failed: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "o3" || recent[1].ID != "o2" {
		t.Fatalf("Expected o3, o2, got %+v", recent)
	}
	if recent[1].Phone != "+998901234567" || recent[0].Phone != "" {
		t.Errorf("Expected phone only on o2, got %q / %q", recent[1].Phone, recent[0].Phone)
	}
	if recent[0].Intent != domain.IntentRiderOrder {
		t.Errorf("Expected intent rider-order, got %s", recent[0].Intent)
	}

	removed, err := r.CleanupOrders(ctx, base.Add(90*time.Minute))
	if err != nil || removed != 2 {
		t.Errorf("Expected 2 removed, got %d err=%v", removed, err)
	}
}

func TestStatsRepo_Upsert(t *testing.T) {
	ctx := context.Background()
	s := NewStatsRepo(openTestDB(t))

	s.AddStats(ctx, "2026-03-10", domain.StatsDelta{Processed: 1})
	s.AddStats(ctx, "2026-03-10", domain.StatsDelta{Processed: 1, Filtered: 1})
	s.AddStats(ctx, "2026-03-11", domain.StatsDelta{Processed: 1, Forwarded: 1})

	day, err := s.StatsFor(ctx, "2026-03-10")
	if err != nil {
		t.Fatalf("StatsFor failed: %v", err)
	}
	if day.Processed != 2 || day.Filtered != 1 || day.Forwarded != 0 {
		t.Errorf("Unexpected day stats: %+v", day)
	}

	empty, _ := s.StatsFor(ctx, "2026-01-01")
	if empty.Processed != 0 {
		t.Errorf("Expected zero stats for empty day, got %+v", empty)
	}

	total, _ := s.TotalStats(ctx)
	if total.Processed != 3 || total.Forwarded != 1 || total.Filtered != 1 {
		t.Errorf("Unexpected totals: %+v", total)
	}
}

func TestCooldownRepo_Sweep(t *testing.T) {
	c := NewCooldownRepo()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	c.Touch("ou_a", base)
	c.Touch("ou_b", base.Add(time.Minute))

	if last, ok := c.Last("ou_a"); !ok || !last.Equal(base) {
		t.Errorf("Expected last of ou_a at base, got %v %v", last, ok)
	}
	if n := c.Sweep(base.Add(30 * time.Second)); n != 1 {
		t.Errorf("Expected 1 swept, got %d", n)
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 remaining, got %d", c.Len())
	}
	if _, ok := c.Last("ou_a"); ok {
		t.Error("Expected ou_a to be swept")
	}
}
