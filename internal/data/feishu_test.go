package data

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
	"github.com/orderrelay/feishu-order-relay/internal/infra/feishu"
)

type fakeSender struct {
	cards []string
	texts []string
	err   error
}

func (f *fakeSender) SendCard(ctx context.Context, chatID, card string) error {
	f.cards = append(f.cards, card)
	return f.err
}

func (f *fakeSender) SendText(ctx context.Context, chatID, text string) error {
	f.texts = append(f.texts, text)
	return f.err
}

type fakeUsers struct {
	calls int
	info  *feishu.UserInfo
	err   error
}

func (f *fakeUsers) GetUser(ctx context.Context, openID string) (*feishu.UserInfo, error) {
	f.calls++
	return f.info, f.err
}

func TestBuildCard(t *testing.T) {
	n := domain.Notice{
		Text: "Yangi Buyurtma\n\n👤 <at id=ou_a></at>",
		Controls: []domain.Control{
			{Kind: domain.ControlDial, Label: "📞 Qo'ng'iroq", URL: "https://onmap.uz/tel/998901234567"},
			{Kind: domain.ControlBlock, Label: "🚫 Bloklash", Value: map[string]string{"action": domain.BlockAction, "user_id": "ou_a"}},
		},
	}

	out, err := BuildCard(n)
	if err != nil {
		t.Fatalf("BuildCard failed: %v", err)
	}

	var c card
	if err := json.Unmarshal([]byte(out), &c); err != nil {
		t.Fatalf("Card is not valid JSON: %v", err)
	}
	if len(c.Elements) != 2 {
		t.Fatalf("Expected text and action elements, got %d", len(c.Elements))
	}
	if c.Elements[0].Text == nil || c.Elements[0].Text.Tag != "lark_md" || c.Elements[0].Text.Content != n.Text {
		t.Errorf("Unexpected text element: %+v", c.Elements[0])
	}
	actions := c.Elements[1].Actions
	if len(actions) != 2 {
		t.Fatalf("Expected 2 buttons, got %d", len(actions))
	}
	if actions[0].URL != "https://onmap.uz/tel/998901234567" || actions[0].Value != nil {
		t.Errorf("Expected url button first, got %+v", actions[0])
	}
	if actions[1].Value["action"] != domain.BlockAction || actions[1].Value["user_id"] != "ou_a" {
		t.Errorf("Expected block button value, got %+v", actions[1].Value)
	}
}

func TestBuildCard_NoControls(t *testing.T) {
	out, err := BuildCard(domain.Notice{Text: "hello"})
	if err != nil {
		t.Fatalf("BuildCard failed: %v", err)
	}
	var c card
	json.Unmarshal([]byte(out), &c)
	if len(c.Elements) != 1 {
		t.Errorf("Expected only the text element, got %d", len(c.Elements))
	}
}

func TestDeliveryRepo_ErrorReasons(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason domain.FailureReason
	}{
		{"card rejected", &feishu.APIError{Code: 230099, Msg: "card content"}, domain.FailureInvalidControl},
		{"bot not in chat", &feishu.APIError{Code: 230002, Msg: "bot not in chat"}, domain.FailureTransport},
		{"deadline", context.DeadlineExceeded, domain.FailureTimeout},
		{"network", errors.New("connection reset"), domain.FailureTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewDeliveryRepo(&fakeSender{err: tt.err})
			err := r.Send(context.Background(), "oc_dst", domain.Notice{Text: "x"})

			var de *domain.DeliveryError
			if !errors.As(err, &de) {
				t.Fatalf("Expected DeliveryError, got %v", err)
			}
			if de.Reason != tt.reason || de.RoomID != "oc_dst" {
				t.Errorf("Expected %s for oc_dst, got %s for %s", tt.reason, de.Reason, de.RoomID)
			}
		})
	}
}

func TestDeliveryRepo_MalformedControl(t *testing.T) {
	sender := &fakeSender{}
	r := NewDeliveryRepo(sender)

	err := r.Send(context.Background(), "oc_dst", domain.Notice{
		Text:     "x",
		Controls: []domain.Control{{Kind: domain.ControlDial, Label: "dial"}},
	})
	if !domain.IsInvalidControl(err) {
		t.Errorf("Expected invalid-control, got %v", err)
	}
	if len(sender.cards) != 0 {
		t.Error("Expected nothing sent")
	}
}

func TestProfileRepo_Caches(t *testing.T) {
	users := &fakeUsers{info: &feishu.UserInfo{OpenID: "ou_a", Name: "Ali", Mobile: "+998901234567"}}
	r := NewProfileRepo(users).(*profileRepo)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	m, err := r.Profile(context.Background(), "ou_a")
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if m.Name != "Ali" || m.ProfilePhone != "+998901234567" {
		t.Errorf("Unexpected member: %+v", m)
	}

	r.Profile(context.Background(), "ou_a")
	if users.calls != 1 {
		t.Errorf("Expected cached lookup, got %d calls", users.calls)
	}

	now = now.Add(2 * time.Hour)
	r.Profile(context.Background(), "ou_a")
	if users.calls != 2 {
		t.Errorf("Expected expired entry to be refetched, got %d calls", users.calls)
	}
}

func TestProfileRepo_ErrorNotCached(t *testing.T) {
	users := &fakeUsers{err: errors.New("no permission")}
	r := NewProfileRepo(users)

	if _, err := r.Profile(context.Background(), "ou_a"); err == nil {
		t.Fatal("Expected error")
	}
	r.Profile(context.Background(), "ou_a")
	if users.calls != 2 {
		t.Errorf("Expected failures not to be cached, got %d calls", users.calls)
	}
}
