package catalog

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Форматы файлов директории каталога.

type itemsFile struct {
	Items []itemDoc `yaml:"items"`
}

type itemDoc struct {
	ID       string         `yaml:"id"`
	Slot     string         `yaml:"slot"`
	Reserved bool           `yaml:"reserved"`
	Unlock   *unlockRuleDoc `yaml:"unlock"`
}

type cluesFile struct {
	Clues []clueDoc `yaml:"clues"`
}

type clueDoc struct {
	ID              string     `yaml:"id"`
	Text            string     `yaml:"text"`
	Realm           string     `yaml:"realm"`
	Difficulty      int        `yaml:"difficulty"`
	CooldownDays    int        `yaml:"cooldownDays"`
	TimeWindow      *windowDoc `yaml:"timeWindow"`
	TargetHotspotID string     `yaml:"targetHotspotId"`
	Steps           []stepDoc  `yaml:"steps"`
}

type windowDoc struct {
	Type          string  `yaml:"type"`
	FallbackHours float64 `yaml:"fallbackHours"`
}

type discoveryFile struct {
	Hotspots []hotspotDoc `yaml:"hotspots"`
	Rules    []ruleDoc    `yaml:"rules"`
}

type hotspotDoc struct {
	ID          string          `yaml:"id"`
	Realm       string          `yaml:"realm"`
	Interaction *interactionDoc `yaml:"interaction"`
	X           float64         `yaml:"x"`
	Y           float64         `yaml:"y"`
	Width       float64         `yaml:"width"`
	Height      float64         `yaml:"height"`
	Description string          `yaml:"description"`
}

type ruleDoc struct {
	DiscoveryID            string      `yaml:"discoveryId"`
	ClueText               string      `yaml:"clueText"`
	ArmsHotspot            string      `yaml:"armsHotspot"`
	Trigger                *triggerDoc `yaml:"trigger"`
	RequireAckBeforeArming bool        `yaml:"requireAckBeforeArming"`
	UnlocksItemID          string      `yaml:"unlocksItemId"`
}

type riddlesFile struct {
	Riddles []Riddle `yaml:"riddles"`
}

// Варианты с тегом. Каждая обертка сначала читает дискриминатор и
// отклоняет неизвестные значения.

type unlockRuleDoc struct {
	rule UnlockRule
}

func (d *unlockRuleDoc) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Kind        string `yaml:"kind"`
		Total       int    `yaml:"total"`
		Token       string `yaml:"token"`
		DiscoveryID string `yaml:"discoveryId"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch raw.Kind {
	case "starsTotalAtLeast":
		d.rule = StarsTotalAtLeast{Total: raw.Total}
	case "tokensAtLeast":
		color := TokenColor(raw.Token)
		if color != TokenBlue && color != TokenRed {
			return fmt.Errorf("line %d: unknown token %q", node.Line, raw.Token)
		}
		d.rule = TokensAtLeast{Token: color, Total: raw.Total}
	case "riddlesSolvedAtLeast":
		d.rule = RiddlesSolvedAtLeast{Total: raw.Total}
	case "craftsCompletedAtLeast":
		d.rule = CraftsCompletedAtLeast{Total: raw.Total}
	case "daysOpenedAtLeast":
		d.rule = DaysOpenedAtLeast{Total: raw.Total}
	case "discovery":
		d.rule = DiscoveryUnlock{DiscoveryID: raw.DiscoveryID}
	default:
		return fmt.Errorf("line %d: unknown unlock rule kind %q", node.Line, raw.Kind)
	}
	return nil
}

type interactionDoc struct {
	interaction Interaction
}

func (d *interactionDoc) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Kind              string  `yaml:"kind"`
		Taps              int     `yaml:"taps"`
		MaxIntervalMs     int64   `yaml:"maxIntervalMs"`
		HoldMs            int64   `yaml:"holdMs"`
		StirTurns         float64 `yaml:"stirTurns"`
		StirRadiusPx      float64 `yaml:"stirRadiusPx"`
		StirMaxDurationMs int64   `yaml:"stirMaxDurationMs"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch raw.Kind {
	case "tap":
		d.interaction = Tap{}
	case "multiTap":
		d.interaction = MultiTap{Taps: raw.Taps, MaxInterval: millis(raw.MaxIntervalMs)}
	case "longPress":
		d.interaction = LongPress{Hold: millis(raw.HoldMs)}
	case "holdThenStir":
		d.interaction = HoldThenStir{
			Hold:            millis(raw.HoldMs),
			StirTurns:       raw.StirTurns,
			StirRadiusPx:    raw.StirRadiusPx,
			StirMaxDuration: millis(raw.StirMaxDurationMs),
		}
	default:
		return fmt.Errorf("line %d: unknown interaction kind %q", node.Line, raw.Kind)
	}
	return nil
}

type stepDoc struct {
	step Step
}

func (d *stepDoc) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Type        string          `yaml:"type"`
		Realm       string          `yaml:"realm"`
		HotspotID   string          `yaml:"hotspotId"`
		Interaction *interactionDoc `yaml:"interaction"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch raw.Type {
	case "hotspot":
		step := HotspotStep{Realm: raw.Realm, HotspotID: raw.HotspotID}
		if raw.Interaction != nil {
			step.Interaction = raw.Interaction.interaction
		}
		d.step = step
	case "realmOpened":
		d.step = RealmOpenedStep{Realm: raw.Realm}
	default:
		return fmt.Errorf("line %d: unknown step type %q", node.Line, raw.Type)
	}
	return nil
}

type triggerDoc struct {
	trigger Trigger
}

func (d *triggerDoc) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Kind       string   `yaml:"kind"`
		ItemsOwned []string `yaml:"itemsOwned"`
		OpensAfter int      `yaml:"opensAfter"`
		Window     string   `yaml:"window"`
		DayRule    string   `yaml:"dayRule"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch raw.Kind {
	case "onAppOpenAfterItemsOwned":
		d.trigger = AppOpenAfterItemsOwned{ItemsOwned: raw.ItemsOwned, OpensAfter: raw.OpensAfter}
	case "timeWindow":
		kind, err := parseWindowKind(raw.Window)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		d.trigger = TimeWindowTrigger{Window: kind, DayRule: raw.DayRule}
	default:
		return fmt.Errorf("line %d: unknown trigger kind %q", node.Line, raw.Kind)
	}
	return nil
}

func parseWindowKind(s string) (WindowKind, error) {
	switch WindowKind(s) {
	case WindowNoon, WindowEvening:
		return WindowKind(s), nil
	}
	return "", fmt.Errorf("unknown time window %q", s)
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Преобразование документов из файлов в сущности каталога.

func (d itemDoc) toItem() Item {
	item := Item{ID: d.ID, SlotID: d.Slot, Reserved: d.Reserved}
	if d.Unlock != nil {
		item.Unlock = d.Unlock.rule
	}
	return item
}

func (d clueDoc) toClue() (Clue, error) {
	clue := Clue{
		ID:              d.ID,
		Text:            d.Text,
		Realm:           d.Realm,
		Difficulty:      d.Difficulty,
		CooldownDays:    d.CooldownDays,
		TargetHotspotID: d.TargetHotspotID,
		Steps:           make([]Step, 0, len(d.Steps)),
	}
	if d.TimeWindow != nil {
		kind, err := parseWindowKind(d.TimeWindow.Type)
		if err != nil {
			return Clue{}, fmt.Errorf("clue %s: %w", d.ID, err)
		}
		clue.TimeWindow = &TimeWindow{Kind: kind, FallbackHours: d.TimeWindow.FallbackHours}
	}
	for _, s := range d.Steps {
		clue.Steps = append(clue.Steps, s.step)
	}
	return clue, nil
}

func (d hotspotDoc) toHotspot() Hotspot {
	h := Hotspot{
		ID:          d.ID,
		Realm:       d.Realm,
		Interaction: Tap{},
		Bounds:      Rect{X: d.X, Y: d.Y, Width: d.Width, Height: d.Height},
		Description: d.Description,
	}
	if d.Interaction != nil {
		h.Interaction = d.Interaction.interaction
	}
	return h
}

func (d ruleDoc) toRule() DiscoveryRule {
	r := DiscoveryRule{
		DiscoveryID:            d.DiscoveryID,
		ClueText:               d.ClueText,
		ArmsHotspot:            d.ArmsHotspot,
		RequireAckBeforeArming: d.RequireAckBeforeArming,
		UnlocksItemID:          d.UnlocksItemID,
	}
	if d.Trigger != nil {
		r.Trigger = d.Trigger.trigger
	}
	return r
}
