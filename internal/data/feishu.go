package data

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
	"github.com/orderrelay/feishu-order-relay/internal/infra/feishu"
)

// MessageSender is the part of the Feishu client used for delivery
type MessageSender interface {
	SendCard(ctx context.Context, chatID, card string) error
	SendText(ctx context.Context, chatID, text string) error
}

// UserLookup is the part of the Feishu client used for profiles
type UserLookup interface {
	GetUser(ctx context.Context, openID string) (*feishu.UserInfo, error)
}

var (
	_ MessageSender = (*feishu.Client)(nil)
	_ UserLookup    = (*feishu.Client)(nil)
)

// invalidControlCodes are open platform codes returned when a card is
// rejected for its content (bad button url or value) rather than for
// the destination or the connection
var invalidControlCodes = map[int]bool{
	11310:  true, // card content invalid
	200621: true, // card action parse failed
	230099: true, // failed to create card content
}

// deliveryRepo sends notices as interactive cards
type deliveryRepo struct {
	client MessageSender
}

// NewDeliveryRepo creates a Feishu delivery repository
func NewDeliveryRepo(client MessageSender) repo.DeliveryRepo {
	return &deliveryRepo{client: client}
}

func (r *deliveryRepo) Send(ctx context.Context, roomID string, notice domain.Notice) error {
	card, err := BuildCard(notice)
	if err != nil {
		return &domain.DeliveryError{RoomID: roomID, Reason: domain.FailureInvalidControl, Err: err}
	}
	if err := r.client.SendCard(ctx, roomID, card); err != nil {
		return &domain.DeliveryError{RoomID: roomID, Reason: classifySendError(ctx, err), Err: err}
	}
	return nil
}

func (r *deliveryRepo) SendText(ctx context.Context, roomID, text string) error {
	if err := r.client.SendText(ctx, roomID, text); err != nil {
		return &domain.DeliveryError{RoomID: roomID, Reason: classifySendError(ctx, err), Err: err}
	}
	return nil
}

func classifySendError(ctx context.Context, err error) domain.FailureReason {
	var apiErr *feishu.APIError
	if errors.As(err, &apiErr) && invalidControlCodes[apiErr.Code] {
		return domain.FailureInvalidControl
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.FailureTimeout
	}
	return domain.FailureTransport
}

type cardText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type cardButton struct {
	Tag   string            `json:"tag"`
	Text  cardText          `json:"text"`
	Type  string            `json:"type"`
	URL   string            `json:"url,omitempty"`
	Value map[string]string `json:"value,omitempty"`
}

type cardElement struct {
	Tag     string       `json:"tag"`
	Text    *cardText    `json:"text,omitempty"`
	Actions []cardButton `json:"actions,omitempty"`
}

type card struct {
	Config struct {
		WideScreenMode bool `json:"wide_screen_mode"`
	} `json:"config"`
	Elements []cardElement `json:"elements"`
}

// BuildCard renders a notice as card JSON: one markdown block, then one
// action row holding the controls in order
func BuildCard(n domain.Notice) (string, error) {
	var c card
	c.Config.WideScreenMode = true
	c.Elements = append(c.Elements, cardElement{
		Tag:  "div",
		Text: &cardText{Tag: "lark_md", Content: n.Text},
	})

	if len(n.Controls) > 0 {
		row := cardElement{Tag: "action"}
		for _, ctl := range n.Controls {
			btn := cardButton{
				Tag:  "button",
				Text: cardText{Tag: "plain_text", Content: ctl.Label},
				Type: "default",
			}
			switch {
			case ctl.URL != "":
				btn.URL = ctl.URL
			case len(ctl.Value) > 0:
				btn.Value = ctl.Value
				btn.Type = "danger"
			default:
				return "", errors.New("control " + string(ctl.Kind) + " has neither url nor value")
			}
			row.Actions = append(row.Actions, btn)
		}
		c.Elements = append(c.Elements, row)
	}

	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

const profileTTL = time.Hour

type profileEntry struct {
	member domain.Member
	at     time.Time
}

// profileRepo looks up contact profiles, caching them for an hour
type profileRepo struct {
	client UserLookup
	mu     sync.Mutex
	cache  map[string]profileEntry
	now    func() time.Time
}

// NewProfileRepo creates a cached profile lookup
func NewProfileRepo(client UserLookup) repo.ProfileRepo {
	return &profileRepo{
		client: client,
		cache:  make(map[string]profileEntry),
		now:    time.Now,
	}
}

func (r *profileRepo) Profile(ctx context.Context, userID string) (domain.Member, error) {
	now := r.now()

	r.mu.Lock()
	if e, ok := r.cache[userID]; ok && now.Sub(e.at) < profileTTL {
		r.mu.Unlock()
		return e.member, nil
	}
	r.mu.Unlock()

	info, err := r.client.GetUser(ctx, userID)
	if err != nil {
		return domain.Member{UserID: userID}, err
	}
	m := domain.Member{UserID: userID, Name: info.Name, ProfilePhone: info.Mobile}

	r.mu.Lock()
	// drop stale entries whenever the table grows past a few thousand users
	if len(r.cache) > 5000 {
		for id, e := range r.cache {
			if now.Sub(e.at) >= profileTTL {
				delete(r.cache, id)
			}
		}
	}
	r.cache[userID] = profileEntry{member: m, at: now}
	r.mu.Unlock()
	return m, nil
}
