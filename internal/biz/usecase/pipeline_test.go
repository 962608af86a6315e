package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
)

func TestPipeline_ScenarioA_RiderOrderForwarded(t *testing.T) {
	f := newFixture()

	out := f.pipeline.Handle(context.Background(), f.event("Toshkent-Samarqand 2ta odam"))

	if !out.Forwarded() {
		t.Fatalf("Expected forwarded, got %s/%s", out.Stage, out.Reason)
	}
	if out.Delivered != 2 {
		t.Errorf("Expected 2 deliveries, got %d", out.Delivered)
	}
	if got := f.delivery.sentTo(); len(got) != 2 || got[0] != dstRoomA || got[1] != dstRoomB {
		t.Errorf("Expected one notice per destination, got %v", got)
	}
	stats := f.stats.totals()
	if stats.Processed != 1 || stats.Forwarded != 1 || stats.Filtered != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if f.orders.count() != 1 {
		t.Errorf("Expected one order record, got %d", f.orders.count())
	}
	if f.quota.total(userA) != 1 {
		t.Errorf("Expected quota 1, got %d", f.quota.total(userA))
	}
}

func TestPipeline_ScenarioB_ExcludeKeywordSkipsClassifier(t *testing.T) {
	f := newFixture()
	f.addKeyword("bo'shman", domain.KeywordExclude)

	out := f.pipeline.Handle(context.Background(), f.event("Bo'shman Toshkentga ketaman"))

	if out.Stage != domain.StageKeyword || out.Reason != domain.ReasonExcluded {
		t.Fatalf("Expected keyword exclusion, got %s/%s", out.Stage, out.Reason)
	}
	if f.classifier.callCount() != 0 {
		t.Error("Classifier should not be called")
	}
	if stats := f.stats.totals(); stats.Filtered != 1 || stats.Processed != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestPipeline_ScenarioC_CooldownSuppressesSecondOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first := f.pipeline.Handle(ctx, f.event("Toshkent-Samarqand 2ta odam"))
	if !first.Forwarded() {
		t.Fatalf("First order should be forwarded, got %s", first.Reason)
	}

	f.clock.Advance(5 * time.Second)
	second := f.pipeline.Handle(ctx, f.event("Samarqand-Toshkent 3ta odam"))

	if second.Stage != domain.StageGuard || second.Reason != domain.ReasonCooldown {
		t.Fatalf("Expected cooldown suppression, got %s/%s", second.Stage, second.Reason)
	}
	if f.quota.total(userA) != 1 {
		t.Errorf("Quota should be incremented once, got %d", f.quota.total(userA))
	}
	if stats := f.stats.totals(); stats.Filtered != 1 || stats.Forwarded != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if f.orders.count() != 1 {
		t.Errorf("Expected one order record, got %d", f.orders.count())
	}
}

func TestPipeline_ScenarioD_QuotaRejectsAtPrefilter(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	date := domain.DateKey(f.clock.Now(), time.UTC)
	for i := 0; i < 3; i++ {
		_, _, _ = f.quota.Reserve(ctx, userA, date, 3)
	}

	out := f.pipeline.Handle(ctx, f.event("Toshkent-Samarqand 2ta odam"))

	if out.Stage != domain.StagePrefilter || out.Reason != domain.ReasonQuota {
		t.Fatalf("Expected quota rejection at prefilter, got %s/%s", out.Stage, out.Reason)
	}
	if f.classifier.callCount() != 0 {
		t.Error("Classifier should not be called")
	}
}

func TestPipeline_ScenarioE_ClassifierTimeout(t *testing.T) {
	f := newFixture()
	f.classifier.block = true

	out := f.pipeline.Handle(context.Background(), f.event("Toshkent-Samarqand 2ta odam"))

	if out.Stage != domain.StageClassifier || out.Reason != domain.ReasonNotOrder {
		t.Fatalf("Expected classifier rejection, got %s/%s", out.Stage, out.Reason)
	}
	if out.Intent != domain.IntentOther {
		t.Errorf("Expected intent other, got %s", out.Intent)
	}
	if stats := f.stats.totals(); stats.Filtered != 1 {
		t.Errorf("Expected filtered 1, got %+v", stats)
	}
	if len(f.delivery.sentTo()) != 0 {
		t.Error("Nothing should be delivered")
	}
}

func TestPipeline_LengthBoundsNeverClassify(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, text := range []string{"salom", strings.Repeat("Toshkent ", 10)} {
		out := f.pipeline.Handle(ctx, f.event(text))
		if out.Stage != domain.StagePrefilter {
			t.Errorf("%q: expected prefilter rejection, got %s", text, out.Stage)
		}
	}
	if f.classifier.callCount() != 0 {
		t.Errorf("Classifier called %d times", f.classifier.callCount())
	}
	if stats := f.stats.totals(); stats.Filtered != 2 || stats.Processed != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestPipeline_QuotaNeverExceeded(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	forwarded := 0
	for i := 0; i < 6; i++ {
		if f.pipeline.Handle(ctx, f.event("Toshkent-Samarqand 2ta odam")).Forwarded() {
			forwarded++
		}
		f.clock.Advance(time.Minute)
	}

	if forwarded != 3 {
		t.Errorf("Expected 3 forwarded orders, got %d", forwarded)
	}
	if f.quota.total(userA) != 3 {
		t.Errorf("Expected quota 3, got %d", f.quota.total(userA))
	}
}

func TestPipeline_IgnoredRoomsNotCounted(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	unwatched := f.event("Toshkent-Samarqand 2ta odam")
	unwatched.RoomID = "oc_elsewhere"
	if out := f.pipeline.Handle(ctx, unwatched); out.Counted || out.Reason != domain.ReasonNotWatched {
		t.Errorf("Unwatched room: got %+v", out)
	}

	media := f.event("")
	media.HasMedia = true
	if out := f.pipeline.Handle(ctx, media); out.Filtered || !out.Counted {
		t.Errorf("Media-only: got %+v", out)
	}

	if stats := f.stats.totals(); stats.Processed != 1 || stats.Filtered != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestPipeline_ForceKeywordBypassesConfidence(t *testing.T) {
	f := newFixture()
	f.addKeyword("odam bor", domain.KeywordForce)
	f.classifier.result = domain.Classification{Intent: domain.IntentOther, Confidence: 0.95}

	out := f.pipeline.Handle(context.Background(), f.event("Chilonzordan 2 odam bor"))

	if !out.Forwarded() || !out.Forced {
		t.Fatalf("Expected forced forward, got %+v", out)
	}
	if out.Intent != domain.IntentRiderOrder {
		t.Errorf("Expected rider-order, got %s", out.Intent)
	}
}

func TestPipeline_ForceWithFailedExtraction(t *testing.T) {
	f := newFixture()
	f.addKeyword("odam bor", domain.KeywordForce)
	f.classifier.block = true

	out := f.pipeline.Handle(context.Background(), f.event("Chilonzordan 2 odam bor"))

	if !out.Forwarded() {
		t.Fatalf("Failed extraction must not reject a forced order, got %s", out.Reason)
	}
	if out.Order.Phone != "" {
		t.Errorf("Expected no phone, got %q", out.Order.Phone)
	}
}

func TestPipeline_ExcludeBeatsForce(t *testing.T) {
	f := newFixture()
	f.addKeyword("toshkent", domain.KeywordForce)
	f.addKeyword("bo'shman", domain.KeywordExclude)

	out := f.pipeline.Handle(context.Background(), f.event("Bo'shman Toshkentga ketaman"))

	if out.Reason != domain.ReasonExcluded {
		t.Errorf("Exclude should win, got %s", out.Reason)
	}
}

func TestPipeline_NoDestinationsStillRecords(t *testing.T) {
	f := newFixture()
	f.rooms.reg.Destinations = nil
	f.reload()

	out := f.pipeline.Handle(context.Background(), f.event("Toshkent-Samarqand 2ta odam"))

	if out.Reason != domain.ReasonNoDestinations {
		t.Fatalf("Expected no_destinations, got %s", out.Reason)
	}
	if f.orders.count() != 1 {
		t.Errorf("Expected one order record, got %d", f.orders.count())
	}
	if stats := f.stats.totals(); stats.Forwarded != 0 {
		t.Errorf("Forwarded should stay 0, got %d", stats.Forwarded)
	}
}

func TestPipeline_PartialDeliveryCountsOnce(t *testing.T) {
	f := newFixture()
	f.delivery.failAlways[dstRoomA] = true

	out := f.pipeline.Handle(context.Background(), f.event("Toshkent-Samarqand 2ta odam"))

	if !out.Forwarded() || out.Delivered != 1 {
		t.Fatalf("Expected forward to one room, got %+v", out)
	}
	if f.orders.count() != 1 {
		t.Errorf("Expected exactly one order record, got %d", f.orders.count())
	}
	if stats := f.stats.totals(); stats.Forwarded != 1 {
		t.Errorf("Expected forwarded 1, got %d", stats.Forwarded)
	}
}

func TestPipeline_AllDeliveriesFail(t *testing.T) {
	f := newFixture()
	f.delivery.failAlways[dstRoomA] = true
	f.delivery.failAlways[dstRoomB] = true

	out := f.pipeline.Handle(context.Background(), f.event("Toshkent-Samarqand 2ta odam"))

	if out.Reason != domain.ReasonUndelivered {
		t.Fatalf("Expected undelivered, got %s", out.Reason)
	}
	if f.orders.count() != 1 {
		t.Errorf("Expected one order record, got %d", f.orders.count())
	}
	if stats := f.stats.totals(); stats.Forwarded != 0 {
		t.Errorf("Forwarded should stay 0, got %d", stats.Forwarded)
	}
}

func TestPipeline_PhoneFromProfile(t *testing.T) {
	f := newFixture()
	f.pipeline.profiles = &mockProfileRepo{profiles: map[string]domain.Member{
		userA: {UserID: userA, Name: "Ali Valiyev", ProfilePhone: "998901234567"},
	}}

	out := f.pipeline.Handle(context.Background(), f.event("Toshkent-Samarqand 2ta odam"))

	if !out.Forwarded() {
		t.Fatalf("Expected forwarded, got %s", out.Reason)
	}
	if out.Order.Phone != "+998901234567" {
		t.Errorf("Expected profile phone, got %q", out.Order.Phone)
	}
}

func TestPipeline_BlockedSender(t *testing.T) {
	f := newFixture()
	_ = f.rules.Block(context.Background(), &domain.BlockEntry{UserID: userA})
	f.reload()

	out := f.pipeline.Handle(context.Background(), f.event("Toshkent-Samarqand 2ta odam"))

	if out.Reason != domain.ReasonBlocked {
		t.Errorf("Expected blocked, got %s", out.Reason)
	}
	if f.classifier.callCount() != 0 {
		t.Error("Classifier should not be called")
	}
}
