package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
)

// Mock implementations

type mockRuleRepo struct {
	mu       sync.Mutex
	nextID   int64
	keywords []*domain.KeywordRule
	blocked  map[string]*domain.BlockEntry
	settings map[string]string
	failList bool
}

func newMockRuleRepo() *mockRuleRepo {
	return &mockRuleRepo{
		blocked:  make(map[string]*domain.BlockEntry),
		settings: make(map[string]string),
	}
}

func (m *mockRuleRepo) ListKeywords(ctx context.Context, category domain.KeywordCategory) ([]*domain.KeywordRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList {
		return nil, context.DeadlineExceeded
	}
	var out []*domain.KeywordRule
	for _, k := range m.keywords {
		if category == "" || k.Category == category {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *mockRuleRepo) AddKeyword(ctx context.Context, rule *domain.KeywordRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keywords {
		if k.Word == rule.Word && k.Category == rule.Category {
			return domain.ErrDuplicate
		}
	}
	m.nextID++
	rule.ID = m.nextID
	m.keywords = append(m.keywords, rule)
	return nil
}

func (m *mockRuleRepo) RemoveKeyword(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, k := range m.keywords {
		if k.ID == id {
			m.keywords = append(m.keywords[:i], m.keywords[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockRuleRepo) Block(ctx context.Context, entry *domain.BlockEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked[entry.UserID] = entry
	return nil
}

func (m *mockRuleRepo) Unblock(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blocked[userID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.blocked, userID)
	return nil
}

func (m *mockRuleRepo) ListBlocked(ctx context.Context) ([]*domain.BlockEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.BlockEntry
	for _, b := range m.blocked {
		out = append(out, b)
	}
	return out, nil
}

func (m *mockRuleRepo) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings[key], nil
}

func (m *mockRuleRepo) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == "" {
		delete(m.settings, key)
	} else {
		m.settings[key] = value
	}
	return nil
}

type mockRoomRepo struct {
	mu  sync.Mutex
	reg domain.RoomRegistry
}

func (m *mockRoomRepo) Registry(ctx context.Context) (*domain.RoomRegistry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := domain.RoomRegistry{
		Sources:      append([]domain.SourceRoom(nil), m.reg.Sources...),
		Destinations: append([]string(nil), m.reg.Destinations...),
		Monitored:    append([]string(nil), m.reg.Monitored...),
	}
	return &cp, nil
}

func (m *mockRoomRepo) UpsertSource(ctx context.Context, room *domain.SourceRoom) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.reg.Sources {
		if s.RoomID == room.RoomID {
			m.reg.Sources[i].Title = room.Title
			return false, nil
		}
	}
	m.reg.Sources = append(m.reg.Sources, *room)
	return true, nil
}

func (m *mockRoomRepo) SetSourceActive(ctx context.Context, roomID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.reg.Sources {
		if s.RoomID == roomID {
			m.reg.Sources[i].Active = active
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockRoomRepo) RemoveSource(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.reg.Sources {
		if s.RoomID == roomID {
			m.reg.Sources = append(m.reg.Sources[:i], m.reg.Sources[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockRoomRepo) AddRoom(ctx context.Context, kind domain.RoomKind, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == domain.RoomDestination {
		m.reg.Destinations = append(m.reg.Destinations, roomID)
	} else {
		m.reg.Monitored = append(m.reg.Monitored, roomID)
	}
	return nil
}

func (m *mockRoomRepo) RemoveRoom(ctx context.Context, kind domain.RoomKind, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := &m.reg.Monitored
	if kind == domain.RoomDestination {
		list = &m.reg.Destinations
	}
	for i, id := range *list {
		if id == roomID {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type mockQuotaRepo struct {
	mu       sync.Mutex
	counts   map[string]int
	reserves int
}

func newMockQuotaRepo() *mockQuotaRepo {
	return &mockQuotaRepo{counts: make(map[string]int)}
}

func (m *mockQuotaRepo) Count(ctx context.Context, userID, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[userID+"|"+date], nil
}

func (m *mockQuotaRepo) Reserve(ctx context.Context, userID, date string, max int) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserves++
	key := userID + "|" + date
	if m.counts[key] >= max {
		return false, m.counts[key], nil
	}
	m.counts[key]++
	return true, m.counts[key], nil
}

func (m *mockQuotaRepo) Cleanup(ctx context.Context, beforeDate string) (int64, error) {
	return 0, nil
}

func (m *mockQuotaRepo) total(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, v := range m.counts {
		if len(k) > len(userID) && k[:len(userID)+1] == userID+"|" {
			n += v
		}
	}
	return n
}

type mockCooldownRepo struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newMockCooldownRepo() *mockCooldownRepo {
	return &mockCooldownRepo{last: make(map[string]time.Time)}
}

func (m *mockCooldownRepo) Last(userID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.last[userID]
	return t, ok
}

func (m *mockCooldownRepo) Touch(userID string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[userID] = t
}

func (m *mockCooldownRepo) Sweep(before time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, t := range m.last {
		if t.Before(before) {
			delete(m.last, id)
			n++
		}
	}
	return n
}

func (m *mockCooldownRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.last)
}

type mockOrderRepo struct {
	mu     sync.Mutex
	orders []*domain.OrderRecord
}

func (m *mockOrderRepo) SaveOrder(ctx context.Context, order *domain.OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, order)
	return nil
}

func (m *mockOrderRepo) RecentOrders(ctx context.Context, limit int) ([]*domain.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]*domain.OrderRecord(nil), m.orders...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockOrderRepo) CleanupOrders(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (m *mockOrderRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type mockStatsRepo struct {
	mu   sync.Mutex
	days map[string]*domain.StatsAggregate
}

func newMockStatsRepo() *mockStatsRepo {
	return &mockStatsRepo{days: make(map[string]*domain.StatsAggregate)}
}

func (m *mockStatsRepo) AddStats(ctx context.Context, date string, delta domain.StatsDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.days[date]
	if !ok {
		d = &domain.StatsAggregate{Date: date}
		m.days[date] = d
	}
	d.Processed += int64(delta.Processed)
	d.Forwarded += int64(delta.Forwarded)
	d.Filtered += int64(delta.Filtered)
	return nil
}

func (m *mockStatsRepo) StatsFor(ctx context.Context, date string) (*domain.StatsAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.days[date]; ok {
		cp := *d
		return &cp, nil
	}
	return &domain.StatsAggregate{Date: date}, nil
}

func (m *mockStatsRepo) TotalStats(ctx context.Context) (*domain.StatsAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := &domain.StatsAggregate{}
	for _, d := range m.days {
		total.Processed += d.Processed
		total.Forwarded += d.Forwarded
		total.Filtered += d.Filtered
	}
	return total, nil
}

func (m *mockStatsRepo) totals() domain.StatsAggregate {
	t, _ := m.TotalStats(context.Background())
	return *t
}

type mockClassifierRepo struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	result  domain.Classification
	block   bool // wait for ctx to end, then report a transport failure
}

func (m *mockClassifierRepo) Classify(ctx context.Context, prompt, text string) domain.Classification {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	result, block := m.result, m.block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return domain.Failed(domain.FailureTransport)
	}
	return result
}

func (m *mockClassifierRepo) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type sentNotice struct {
	roomID string
	notice domain.Notice
}

type mockDeliveryRepo struct {
	mu sync.Mutex
	// fail maps a room to the failure returned for sends with controls;
	// failAlways fails every send to that room
	fail       map[string]domain.FailureReason
	failAlways map[string]bool
	sent       []sentNotice
	texts      []sentNotice
}

func newMockDeliveryRepo() *mockDeliveryRepo {
	return &mockDeliveryRepo{
		fail:       make(map[string]domain.FailureReason),
		failAlways: make(map[string]bool),
	}
}

func (m *mockDeliveryRepo) Send(ctx context.Context, roomID string, notice domain.Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reason, ok := m.fail[roomID]; ok && len(notice.Controls) > 0 {
		return &domain.DeliveryError{RoomID: roomID, Reason: reason, Err: context.Canceled}
	}
	if m.failAlways[roomID] {
		return &domain.DeliveryError{RoomID: roomID, Reason: domain.FailureTransport, Err: context.DeadlineExceeded}
	}
	m.sent = append(m.sent, sentNotice{roomID: roomID, notice: notice})
	return nil
}

func (m *mockDeliveryRepo) SendText(ctx context.Context, roomID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, sentNotice{roomID: roomID, notice: domain.Notice{Text: text}})
	return nil
}

func (m *mockDeliveryRepo) sentTo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rooms []string
	for _, s := range m.sent {
		rooms = append(rooms, s.roomID)
	}
	sort.Strings(rooms)
	return rooms
}

type mockProfileRepo struct {
	profiles map[string]domain.Member
}

func (m *mockProfileRepo) Profile(ctx context.Context, userID string) (domain.Member, error) {
	p, ok := m.profiles[userID]
	if !ok {
		return domain.Member{}, domain.ErrNotFound
	}
	return p, nil
}

// Fixture

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	rules      *mockRuleRepo
	rooms      *mockRoomRepo
	quota      *mockQuotaRepo
	cooldown   *mockCooldownRepo
	orders     *mockOrderRepo
	stats      *mockStatsRepo
	classifier *mockClassifierRepo
	delivery   *mockDeliveryRepo
	clock      *fakeClock

	cache    *RuleCache
	pipeline *Pipeline
	guard    *GuardUsecase
	admin    *AdminUsecase
}

const (
	srcRoom  = "oc_source1"
	dstRoomA = "oc_dest_a"
	dstRoomB = "oc_dest_b"
	userA    = "ou_user_a"
)

func newFixture() *fixture {
	f := &fixture{
		rules: newMockRuleRepo(),
		rooms: &mockRoomRepo{reg: domain.RoomRegistry{
			Sources:      []domain.SourceRoom{{RoomID: srcRoom, Title: "Toshkent Taxi", Active: true}},
			Destinations: []string{dstRoomA, dstRoomB},
		}},
		quota:    newMockQuotaRepo(),
		cooldown: newMockCooldownRepo(),
		orders:   &mockOrderRepo{},
		stats:    newMockStatsRepo(),
		classifier: &mockClassifierRepo{result: domain.Classification{
			Intent:     domain.IntentRiderOrder,
			Confidence: 0.9,
			Fields:     &domain.OrderFields{FromLocation: "Toshkent", ToLocation: "Samarqand", Passengers: "2"},
		}},
		delivery: newMockDeliveryRepo(),
		clock:    &fakeClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)},
	}

	log := zerolog.Nop()
	f.cache = NewRuleCache(f.rules, f.rooms)
	f.reload()

	prefilter := NewPrefilterUsecase(f.cache, f.quota, PrefilterConfig{
		MinLength: 10, MaxLength: 60, MinContentRunes: 5, MaxOrdersPerDay: 3, Location: time.UTC,
	}, log)
	prefilter.now = f.clock.Now

	classifier := NewClassifierUsecase(f.classifier, f.cache, ClassifierConfig{
		DefaultPrompt: "default prompt", Threshold: 0.7, Timeout: 50 * time.Millisecond,
	}, log)

	f.guard = NewGuardUsecase(f.cooldown, f.quota, GuardConfig{
		Cooldown: 30 * time.Second, MaxOrdersPerDay: 3, Location: time.UTC,
	}, log)
	f.guard.now = f.clock.Now

	stats := NewStatsUsecase(f.stats, time.UTC, log)
	stats.now = f.clock.Now

	f.pipeline = NewPipeline(PipelineDeps{
		Cache:      f.cache,
		Prefilter:  prefilter,
		Keywords:   NewKeywordUsecase(f.cache),
		Classifier: classifier,
		Guard:      f.guard,
		Delivery:   NewDeliveryUsecase(f.delivery, time.Second, log),
		Stats:      stats,
		Orders:     f.orders,
	}, PipelineConfig{ExtractOnForce: true, Notice: DefaultNoticeConfig()}, log)
	f.pipeline.now = f.clock.Now

	f.admin = NewAdminUsecase(f.rules, f.rooms, f.orders, stats, f.cache, classifier, log)
	return f
}

func (f *fixture) reload() {
	if err := f.cache.Refresh(context.Background()); err != nil {
		panic(err)
	}
}

func (f *fixture) addKeyword(word string, category domain.KeywordCategory) {
	_ = f.rules.AddKeyword(context.Background(), &domain.KeywordRule{Word: domain.NormalizeKeyword(word), Category: category})
	f.reload()
}

func (f *fixture) event(text string) *domain.MessageEvent {
	return &domain.MessageEvent{
		MessageID: "om_1",
		RoomID:    srcRoom,
		RoomTitle: "Toshkent Taxi",
		Sender:    domain.Member{UserID: userA, Name: "Ali"},
		Text:      text,
		Permalink: "https://applink.feishu.cn/client/chat/open?openChatId=" + srcRoom,
		Timestamp: f.clock.Now(),
	}
}
