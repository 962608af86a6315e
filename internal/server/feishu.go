package server

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
	"github.com/orderrelay/feishu-order-relay/internal/biz/usecase"
	"github.com/orderrelay/feishu-order-relay/internal/infra/feishu"
	"github.com/orderrelay/feishu-order-relay/internal/metrics"
)

const (
	dedupWindow    = 5 * time.Minute
	queueSize      = 256
	idleTimeout    = time.Minute
	startupTimeout = 30 * time.Second
)

// MessageHandler runs one message through the pipeline
type MessageHandler interface {
	Handle(ctx context.Context, ev *domain.MessageEvent) domain.Outcome
}

// Listener is the event source
type Listener interface {
	OnMessage(handler feishu.MessageHandler)
	Start(ctx context.Context) error
	Stop()
}

// ChatDirectory looks up chats the app has joined
type ChatDirectory interface {
	ListChats(ctx context.Context) ([]*feishu.ChatInfo, error)
	GetChatInfo(ctx context.Context, chatID string) (*feishu.ChatInfo, error)
}

// Options configures the ingestion server
type Options struct {
	AdminChatID       string // receives failure reports, empty disables them
	ImportJoinedChats bool
}

// roomQueue serializes the messages of one room
type roomQueue struct {
	ch      chan *domain.MessageEvent
	pending atomic.Int64
}

// FeishuServer receives Feishu messages and feeds them to the pipeline,
// one worker per room so a room's messages are handled in arrival order
type FeishuServer struct {
	listener Listener
	chats    ChatDirectory
	pipeline MessageHandler
	cache    *usecase.RuleCache
	admin    *usecase.AdminUsecase
	rooms    repo.RoomRepo
	reporter repo.DeliveryRepo
	opts     Options
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Message deduplication cache
	seenMu sync.Mutex
	seen   map[string]time.Time // msgID -> first seen

	mu      sync.Mutex
	queues  map[string]*roomQueue
	stopped bool
	done    chan struct{}

	now func() time.Time
}

// NewFeishuServer creates a new Feishu server
func NewFeishuServer(
	listener Listener,
	chats ChatDirectory,
	pipeline MessageHandler,
	cache *usecase.RuleCache,
	admin *usecase.AdminUsecase,
	rooms repo.RoomRepo,
	reporter repo.DeliveryRepo,
	opts Options,
	log zerolog.Logger,
) *FeishuServer {
	ctx, cancel := context.WithCancel(context.Background())
	return &FeishuServer{
		listener: listener,
		chats:    chats,
		pipeline: pipeline,
		cache:    cache,
		admin:    admin,
		rooms:    rooms,
		reporter: reporter,
		opts:     opts,
		log:      log.With().Str("component", "server").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		seen:     make(map[string]time.Time),
		queues:   make(map[string]*roomQueue),
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

// Start loads the rules, checks the rooms and blocks while listening
func (s *FeishuServer) Start(ctx context.Context) error {
	if err := s.cache.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	if s.opts.ImportJoinedChats {
		s.importJoinedChats(startCtx)
	}
	s.checkRooms(startCtx)
	cancel()

	s.listener.OnMessage(s.Dispatch)
	return s.listener.Start(ctx)
}

// Stop stops listening and waits for queued messages to finish
func (s *FeishuServer) Stop() {
	s.listener.Stop()
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.done)
	s.mu.Unlock()
	s.wg.Wait()
	s.cancel()
}

// Dispatch converts a received message and queues it for its room
func (s *FeishuServer) Dispatch(msg *feishu.Message) {
	if s.isDuplicate(msg.MsgID) {
		metrics.EventsReceived.WithLabelValues("duplicate").Inc()
		s.log.Debug().Str("msg_id", msg.MsgID).Msg("duplicate message ignored")
		return
	}
	metrics.EventsReceived.WithLabelValues("queued").Inc()
	s.enqueue(s.toEvent(msg))
}

func (s *FeishuServer) toEvent(msg *feishu.Message) *domain.MessageEvent {
	ev := &domain.MessageEvent{
		MessageID: msg.MsgID,
		RoomID:    msg.ChatID,
		RoomTitle: s.cache.Rooms().Title(msg.ChatID),
		Text:      msg.Content,
		HasMedia:  msg.HasMedia,
		Permalink: feishu.ChatLink(msg.ChatID),
		Timestamp: feishu.MessageTime(msg.CreateTime),
	}
	if msg.Sender != nil {
		ev.Sender.UserID = msg.Sender.SenderID
	}
	return ev
}

func (s *FeishuServer) enqueue(ev *domain.MessageEvent) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	q, ok := s.queues[ev.RoomID]
	if !ok {
		q = &roomQueue{ch: make(chan *domain.MessageEvent, queueSize)}
		s.queues[ev.RoomID] = q
		s.wg.Add(1)
		metrics.ActiveRoomQueues.Inc()
		go s.work(ev.RoomID, q)
	}
	// counted under the lock so an idle worker never exits with work pending
	q.pending.Add(1)
	s.mu.Unlock()

	// never block the SDK event goroutine; a full room queue drops the message
	select {
	case q.ch <- ev:
	default:
		q.pending.Add(-1)
		metrics.EventsReceived.WithLabelValues("dropped").Inc()
		s.log.Warn().Str("room_id", ev.RoomID).Str("msg_id", ev.MessageID).Msg("room queue full, message dropped")
	}
}

// work drains one room's queue and exits after idleTimeout without messages
func (s *FeishuServer) work(roomID string, q *roomQueue) {
	defer s.wg.Done()
	defer metrics.ActiveRoomQueues.Dec()

	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		select {
		case ev := <-q.ch:
			s.process(ev)
			q.pending.Add(-1)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(idleTimeout)

		case <-idle.C:
			s.mu.Lock()
			if q.pending.Load() == 0 && s.queues[roomID] == q {
				delete(s.queues, roomID)
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			idle.Reset(idleTimeout)

		case <-s.done:
			// finish what was already queued
			for {
				select {
				case ev := <-q.ch:
					s.process(ev)
					q.pending.Add(-1)
				default:
					return
				}
			}
		}
	}
}

// process runs the pipeline; a panic is logged and reported, never fatal
func (s *FeishuServer) process(ev *domain.MessageEvent) {
	log := s.log.With().Str("room_id", ev.RoomID).Str("msg_id", ev.MessageID).Logger()
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerPanics.Inc()
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("message processing panicked")
			s.report(fmt.Sprintf("⚠️ Xabarni qayta ishlashda xatolik\nchat: %s\nmsg: %s\n%v", ev.RoomID, ev.MessageID, r))
		}
	}()

	out := s.pipeline.Handle(s.ctx, ev)
	log.Debug().
		Str("stage", string(out.Stage)).
		Str("reason", string(out.Reason)).
		Int("delivered", out.Delivered).
		Msg("message handled")
}

// report sends an operator message to the admin chat, if one is configured
func (s *FeishuServer) report(text string) {
	if s.opts.AdminChatID == "" || s.reporter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	if err := s.reporter.SendText(ctx, s.opts.AdminChatID, text); err != nil {
		s.log.Warn().Err(err).Msg("failed to report to admin chat")
	}
}

// isDuplicate records msgID and reports whether it was already seen
// within the dedup window
func (s *FeishuServer) isDuplicate(msgID string) bool {
	now := s.now()
	s.seenMu.Lock()
	defer s.seenMu.Unlock()

	if t, ok := s.seen[msgID]; ok && now.Sub(t) < dedupWindow {
		return true
	}
	s.seen[msgID] = now

	cutoff := now.Add(-dedupWindow)
	for id, ts := range s.seen {
		if ts.Before(cutoff) {
			delete(s.seen, id)
		}
	}
	return false
}

// importJoinedChats registers every joined chat as a source room,
// skipping destination rooms
func (s *FeishuServer) importJoinedChats(ctx context.Context) {
	chats, err := s.chats.ListChats(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to list joined chats")
		return
	}

	imported := 0
	for _, chat := range chats {
		added, err := s.admin.AddSource(ctx, chat.ChatID, chat.Name, "import")
		switch {
		case errors.Is(err, domain.ErrRoomConflict):
			s.log.Debug().Str("room_id", chat.ChatID).Msg("destination room not imported")
		case err != nil:
			s.log.Warn().Err(err).Str("room_id", chat.ChatID).Msg("failed to import chat")
		case added:
			imported++
		}
	}
	s.log.Info().Int("joined", len(chats)).Int("imported", imported).Msg("joined chats imported")
}

// checkRooms logs every configured room, refreshing stored source titles
func (s *FeishuServer) checkRooms(ctx context.Context) {
	reg := s.cache.Rooms()
	renamed := false

	for _, src := range reg.Sources {
		info, err := s.chats.GetChatInfo(ctx, src.RoomID)
		if err != nil {
			s.log.Warn().Err(err).Str("room_id", src.RoomID).Msg("source room not reachable")
			continue
		}
		s.log.Info().Str("room_id", src.RoomID).Str("title", info.Name).Bool("active", src.Active).Msg("source room")
		if info.Name != "" && info.Name != src.Title {
			if _, err := s.rooms.UpsertSource(ctx, &domain.SourceRoom{RoomID: src.RoomID, Title: info.Name}); err != nil {
				s.log.Warn().Err(err).Str("room_id", src.RoomID).Msg("failed to update source title")
			} else {
				renamed = true
			}
		}
	}

	if len(reg.Destinations) == 0 {
		s.log.Warn().Msg("no destination rooms configured, orders will not be delivered")
	}
	for _, id := range reg.Destinations {
		info, err := s.chats.GetChatInfo(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("room_id", id).Msg("destination room not reachable")
			continue
		}
		s.log.Info().Str("room_id", id).Str("title", info.Name).Msg("destination room")
	}

	if renamed {
		if err := s.cache.Refresh(ctx); err != nil {
			s.log.Warn().Err(err).Msg("failed to reload rooms")
		}
	}
}
