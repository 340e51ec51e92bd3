package engine

import "keepsake-server/internal/models"

// EventType - тип игрового события.
type EventType string

const (
	EventOwlRiddleCorrect   EventType = "owl_riddle_correct"
	EventOwlRiddleWrong     EventType = "owl_riddle_wrong"
	EventOwlRiddleTimeout   EventType = "owl_riddle_timeout"
	EventOwlRiddleOpened    EventType = "owl_riddle_opened"
	EventGamePlayed         EventType = "game_played"
	EventCraftCompleted     EventType = "craft_completed"
	EventMediaDone          EventType = "media_done"
	EventDiarySaved         EventType = "diary_saved"
	EventHotspotTriggered   EventType = "hotspot_triggered"
	EventRealmChanged       EventType = "realm_changed"
	EventClueAcknowledged   EventType = "clue_acknowledged"
	EventAppOpened          EventType = "app_opened"
	EventProphecyTapped     EventType = "prophecy_tapped"
	EventProphecyExpired    EventType = "prophecy_expired"
	EventHatchCinematicSeen EventType = "hatch_cinematic_seen"

	// Только для результатов отладочных операций.
	EventDebugAddStars EventType = "debug_add_stars"
	EventDebugReset    EventType = "debug_reset"
)

var knownEvents = map[EventType]struct{}{
	EventOwlRiddleCorrect:   {},
	EventOwlRiddleWrong:     {},
	EventOwlRiddleTimeout:   {},
	EventOwlRiddleOpened:    {},
	EventGamePlayed:         {},
	EventCraftCompleted:     {},
	EventMediaDone:          {},
	EventDiarySaved:         {},
	EventHotspotTriggered:   {},
	EventRealmChanged:       {},
	EventClueAcknowledged:   {},
	EventAppOpened:          {},
	EventProphecyTapped:     {},
	EventProphecyExpired:    {},
	EventHatchCinematicSeen: {},
}

// Known сообщает, реагирует ли движок на событие t.
func (t EventType) Known() bool {
	_, ok := knownEvents[t]
	return ok
}

// ResultOnly сообщает, что t лишь помечает результаты отладочных операций
// и не принимается на вход.
func (t EventType) ResultOnly() bool {
	return t == EventDebugAddStars || t == EventDebugReset
}

// Payload - необязательные аргументы события.
type Payload struct {
	RiddleID  string `json:"riddleId,omitempty"`
	HotspotID string `json:"hotspotId,omitempty"`
	ClueID    string `json:"clueId,omitempty"`
	RealmID   string `json:"realmId,omitempty"`
	// InteractionValid равен nil, если жест не проверялся.
	InteractionValid *bool `json:"interactionValid,omitempty"`
}

type Event struct {
	Type    EventType `json:"type"`
	Payload Payload   `json:"payload"`
}

// SoundCue - звуковая подсказка для клиента.
type SoundCue string

const (
	CueOwlOpen    SoundCue = "owl_open"
	CueOwlCorrect SoundCue = "owl_correct"
	CueOwlWrong   SoundCue = "owl_wrong"
	CueOwlTimeout SoundCue = "owl_timeout"
	CueStarWin    SoundCue = "star_win"
	CueBlueToken  SoundCue = "blue_token"
	CueRedToken   SoundCue = "red_token"
	CueItemReveal SoundCue = "item_reveal"
	CueUITap      SoundCue = "ui_tap"
)

// Result описывает изменения от одного события. NewState - снимок, общий для
// всех подписчиков и хранилища; изменять его нельзя.
type Result struct {
	EventType             EventType                `json:"eventType"`
	StarsAwarded          int                      `json:"starsAwarded"`
	BlueTokenAwarded      bool                     `json:"blueTokenAwarded"`
	RedTokenAwarded       bool                     `json:"redTokenAwarded"`
	ItemsUnlocked         []string                 `json:"itemsUnlocked"`
	DiscoveryTriggered    string                   `json:"discoveryTriggered,omitempty"`
	DiscoveryStepAdvanced bool                     `json:"discoveryStepAdvanced"`
	DiscoveryCompleted    string                   `json:"discoveryCompleted,omitempty"`
	EggHatchTriggered     bool                     `json:"eggHatchTriggered"`
	SoundCues             []SoundCue               `json:"soundCues"`
	NewState              *models.ProgressionState `json:"newState"`
}

func newResult(t EventType) Result {
	return Result{EventType: t, ItemsUnlocked: []string{}, SoundCues: []SoundCue{}}
}

// cue добавляет c, если его еще нет в результате.
func (r *Result) cue(c SoundCue) {
	for _, have := range r.SoundCues {
		if have == c {
			return
		}
	}
	r.SoundCues = append(r.SoundCues, c)
}
