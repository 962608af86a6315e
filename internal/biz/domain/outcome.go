package domain

// Stage is the pipeline step that decided a message's fate
type Stage string

const (
	StageIngest     Stage = "ingest"
	StagePrefilter  Stage = "prefilter"
	StageKeyword    Stage = "keyword"
	StageClassifier Stage = "classifier"
	StageGuard      Stage = "guard"
	StageDelivery   Stage = "delivery"
)

// Reason names why a message stopped or how it finished
type Reason string

const (
	ReasonNotWatched      Reason = "not_watched"
	ReasonDestinationRoom Reason = "destination_room"
	ReasonMediaOnly       Reason = "media_only"
	ReasonTooShort        Reason = "too_short"
	ReasonTooLong         Reason = "too_long"
	ReasonEmojiOnly       Reason = "emoji_only"
	ReasonBlocked         Reason = "blocked"
	ReasonQuota           Reason = "quota_exhausted"
	ReasonExcluded        Reason = "keyword_excluded"
	ReasonNotOrder        Reason = "not_order"
	ReasonCooldown        Reason = "cooldown"
	ReasonNoDestinations  Reason = "no_destinations"
	ReasonUndelivered     Reason = "undelivered"
	ReasonForwarded       Reason = "forwarded"
)

// Outcome summarizes how the pipeline handled one message
type Outcome struct {
	Stage     Stage
	Reason    Reason
	Counted   bool // counted as processed
	Filtered  bool // counted as filtered
	Forced    bool // accepted by a force keyword
	Intent    Intent
	Delivered int
	Order     *OrderRecord
}

// Forwarded reports whether at least one destination received the notice
func (o Outcome) Forwarded() bool {
	return o.Reason == ReasonForwarded
}
