package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
)

// PipelineConfig holds pipeline-level switches
type PipelineConfig struct {
	// ExtractOnForce calls the classifier for fields on force-accepted messages
	ExtractOnForce bool
	ProfileTimeout time.Duration
	Notice         NoticeConfig
}

// Pipeline runs one message through pre-filter, keyword rules,
// classifier, guard, formatter and fan-out
type Pipeline struct {
	cache      *RuleCache
	prefilter  *PrefilterUsecase
	keywords   *KeywordUsecase
	classifier *ClassifierUsecase
	guard      *GuardUsecase
	delivery   *DeliveryUsecase
	stats      *StatsUsecase
	orders     repo.OrderRepo
	profiles   repo.ProfileRepo // optional
	cfg        PipelineConfig
	now        func() time.Time
	log        zerolog.Logger
}

// PipelineDeps groups the pipeline's collaborators
type PipelineDeps struct {
	Cache      *RuleCache
	Prefilter  *PrefilterUsecase
	Keywords   *KeywordUsecase
	Classifier *ClassifierUsecase
	Guard      *GuardUsecase
	Delivery   *DeliveryUsecase
	Stats      *StatsUsecase
	Orders     repo.OrderRepo
	Profiles   repo.ProfileRepo
}

// NewPipeline creates a pipeline
func NewPipeline(deps PipelineDeps, cfg PipelineConfig, log zerolog.Logger) *Pipeline {
	if cfg.ProfileTimeout <= 0 {
		cfg.ProfileTimeout = 5 * time.Second
	}
	return &Pipeline{
		cache:      deps.Cache,
		prefilter:  deps.Prefilter,
		keywords:   deps.Keywords,
		classifier: deps.Classifier,
		guard:      deps.Guard,
		delivery:   deps.Delivery,
		stats:      deps.Stats,
		orders:     deps.Orders,
		profiles:   deps.Profiles,
		cfg:        cfg,
		now:        time.Now,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// Handle processes one inbound message and reports what happened to it.
// It never returns an error: every failure degrades to a filtered or
// undelivered outcome.
func (p *Pipeline) Handle(ctx context.Context, ev *domain.MessageEvent) domain.Outcome {
	log := p.log.With().
		Str("room_id", ev.RoomID).
		Str("msg_id", ev.MessageID).
		Str("user_id", ev.Sender.UserID).
		Logger()

	pre := p.prefilter.Check(ctx, ev)
	if !pre.Watched {
		return domain.Outcome{Stage: domain.StageIngest, Reason: pre.Reason}
	}
	p.stats.Processed(ctx)

	switch pre.Verdict {
	case VerdictIgnore:
		log.Debug().Str("reason", string(pre.Reason)).Msg("message ignored")
		return domain.Outcome{Stage: domain.StagePrefilter, Reason: pre.Reason, Counted: true}
	case VerdictReject:
		return p.filter(ctx, log, domain.Outcome{Stage: domain.StagePrefilter, Reason: pre.Reason})
	}

	match := p.keywords.Match(ev.NormalizedText())
	if match.Excluded {
		log.Debug().Str("keyword", match.Word).Msg("exclude keyword matched")
		return p.filter(ctx, log, domain.Outcome{Stage: domain.StageKeyword, Reason: domain.ReasonExcluded})
	}

	intent := domain.IntentRiderOrder
	var fields *domain.OrderFields
	if match.Forced {
		log.Debug().Str("keyword", match.Word).Msg("force keyword matched")
		if p.cfg.ExtractOnForce {
			// extraction only; a failed call leaves the fields empty
			if c := p.classifier.Classify(ctx, ev.Text); c.Failure == domain.FailureNone {
				fields = c.Fields
			}
		}
	} else {
		c := p.classifier.Classify(ctx, ev.Text)
		if !p.classifier.Accept(c) {
			return p.filter(ctx, log, domain.Outcome{
				Stage:  domain.StageClassifier,
				Reason: domain.ReasonNotOrder,
				Intent: c.Intent,
			})
		}
		intent = c.Intent
		fields = c.Fields
	}

	adm := p.guard.Admit(ctx, ev.Sender.UserID)
	if !adm.Allowed {
		return p.filter(ctx, log, domain.Outcome{
			Stage:  domain.StageGuard,
			Reason: adm.Reason,
			Forced: match.Forced,
			Intent: intent,
		})
	}

	return p.forward(ctx, log, ev, intent, fields, match.Forced)
}

func (p *Pipeline) forward(
	ctx context.Context,
	log zerolog.Logger,
	ev *domain.MessageEvent,
	intent domain.Intent,
	fields *domain.OrderFields,
	forced bool,
) domain.Outcome {
	rooms := p.cache.Rooms()
	sender := p.enrichSender(ctx, log, ev.Sender)

	title := ev.RoomTitle
	if title == "" {
		title = rooms.Title(ev.RoomID)
	}

	formatted := FormatNotice(p.cfg.Notice, NoticeInput{
		Fields:    fields,
		Text:      ev.TrimmedText(),
		Sender:    sender,
		RoomID:    ev.RoomID,
		RoomTitle: title,
		Permalink: ev.Permalink,
	})

	results := p.delivery.FanOut(ctx, rooms.Destinations, formatted.Notice)
	delivered := Delivered(results)

	order := &domain.OrderRecord{
		ID:        uuid.NewString(),
		UserID:    sender.UserID,
		UserName:  sender.DisplayName(),
		Phone:     formatted.Phone,
		Text:      ev.TrimmedText(),
		RoomID:    ev.RoomID,
		RoomTitle: title,
		Intent:    intent,
		Delivered: delivered,
		CreatedAt: p.now(),
	}
	if err := p.orders.SaveOrder(ctx, order); err != nil {
		log.Error().Err(err).Msg("save order failed")
	}

	out := domain.Outcome{
		Stage:     domain.StageDelivery,
		Counted:   true,
		Forced:    forced,
		Intent:    intent,
		Delivered: delivered,
		Order:     order,
	}
	switch {
	case len(results) == 0:
		out.Reason = domain.ReasonNoDestinations
		log.Warn().Msg("order accepted but no destination rooms configured")
	case delivered == 0:
		out.Reason = domain.ReasonUndelivered
		log.Warn().Int("destinations", len(results)).Msg("order not delivered to any destination")
	default:
		out.Reason = domain.ReasonForwarded
		p.stats.Forwarded(ctx)
		log.Info().
			Int("delivered", delivered).
			Int("destinations", len(results)).
			Str("phone_source", string(formatted.PhoneSource)).
			Msg("order forwarded")
	}
	return out
}

func (p *Pipeline) filter(ctx context.Context, log zerolog.Logger, out domain.Outcome) domain.Outcome {
	out.Counted = true
	out.Filtered = true
	p.stats.Filtered(ctx, out.Reason)
	log.Debug().Str("stage", string(out.Stage)).Str("reason", string(out.Reason)).Msg("message filtered")
	return out
}

// enrichSender fills the display name and profile phone from the
// profile service when the event did not carry them
func (p *Pipeline) enrichSender(ctx context.Context, log zerolog.Logger, sender domain.Member) domain.Member {
	if p.profiles == nil || !sender.HasID() {
		return sender
	}
	if sender.Name != "" && sender.ProfilePhone != "" {
		return sender
	}

	lookupCtx, cancel := context.WithTimeout(ctx, p.cfg.ProfileTimeout)
	defer cancel()

	profile, err := p.profiles.Profile(lookupCtx, sender.UserID)
	if err != nil {
		log.Debug().Err(err).Msg("profile lookup failed")
		return sender
	}
	if sender.Name == "" {
		sender.Name = profile.Name
	}
	if sender.ProfilePhone == "" {
		sender.ProfilePhone = profile.ProfilePhone
	}
	return sender
}
