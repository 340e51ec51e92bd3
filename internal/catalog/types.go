package catalog

import "time"

// TokenColor - цвет жетона.
type TokenColor string

const (
	TokenBlue TokenColor = "blueTokens"
	TokenRed  TokenColor = "redTokens"
)

// UnlockRule - закрытый набор условий открытия предмета.
type UnlockRule interface {
	isUnlockRule()
}

type StarsTotalAtLeast struct{ Total int }
type TokensAtLeast struct {
	Token TokenColor
	Total int
}
type RiddlesSolvedAtLeast struct{ Total int }

// CraftsCompletedAtLeast принимается в контенте, но никогда не выполняется:
// поделки в состоянии не считаются.
type CraftsCompletedAtLeast struct{ Total int }
type DaysOpenedAtLeast struct{ Total int }
type DiscoveryUnlock struct{ DiscoveryID string }

func (StarsTotalAtLeast) isUnlockRule()      {}
func (TokensAtLeast) isUnlockRule()          {}
func (RiddlesSolvedAtLeast) isUnlockRule()   {}
func (CraftsCompletedAtLeast) isUnlockRule() {}
func (DaysOpenedAtLeast) isUnlockRule()      {}
func (DiscoveryUnlock) isUnlockRule()        {}

// Interaction - жест, которого требует шаг на хотспоте.
type Interaction interface {
	Kind() string
}

type Tap struct{}
type MultiTap struct {
	Taps        int
	MaxInterval time.Duration
}
type LongPress struct {
	Hold time.Duration
}
type HoldThenStir struct {
	Hold            time.Duration
	StirTurns       float64
	StirRadiusPx    float64
	StirMaxDuration time.Duration
}

func (Tap) Kind() string          { return "tap" }
func (MultiTap) Kind() string     { return "multiTap" }
func (LongPress) Kind() string    { return "longPress" }
func (HoldThenStir) Kind() string { return "holdThenStir" }

// Step - один этап многошагового открытия.
type Step interface {
	StepRealm() string
}

// HotspotStep ждет подтвержденного жеста на хотспоте в мире.
type HotspotStep struct {
	Realm       string
	HotspotID   string
	Interaction Interaction
}

// RealmOpenedStep ждет, пока игрок откроет мир.
type RealmOpenedStep struct {
	Realm string
}

func (s HotspotStep) StepRealm() string     { return s.Realm }
func (s RealmOpenedStep) StepRealm() string { return s.Realm }

// WindowKind - название суточного окна времени.
type WindowKind string

const (
	WindowNoon    WindowKind = "noon"
	WindowEvening WindowKind = "evening"
)

// TimeWindow ограничивает, когда можно проходить подсказку. FallbackHours
// продлевает окно после конца, в том числе через полночь.
type TimeWindow struct {
	Kind          WindowKind
	FallbackHours float64
}

// Trigger решает, когда правило открытия предлагает подсказку.
type Trigger interface {
	isTrigger()
}

// AppOpenAfterItemsOwned срабатывает при открытии приложения, когда все
// предметы есть и приложение открывали минимум в OpensAfter разных дней.
type AppOpenAfterItemsOwned struct {
	ItemsOwned []string
	OpensAfter int
}

// TimeWindowTrigger только описательный, проверка при открытии его не предлагает.
type TimeWindowTrigger struct {
	Window  WindowKind
	DayRule string
}

func (AppOpenAfterItemsOwned) isTrigger() {}
func (TimeWindowTrigger) isTrigger()      {}

// Item - коллекционный предмет на полке.
type Item struct {
	ID       string
	SlotID   string
	Unlock   UnlockRule
	Reserved bool
}

// Clue - подсказка открытия с упорядоченным списком шагов.
type Clue struct {
	ID              string
	Text            string
	Realm           string
	Difficulty      int
	CooldownDays    int
	TimeWindow      *TimeWindow
	TargetHotspotID string
	Steps           []Step
}

// DiscoveryRule - открытие по одному хотспоту: подсказка взводит хотспот,
// срабатывание хотспота открывает предмет.
type DiscoveryRule struct {
	DiscoveryID            string
	ClueText               string
	ArmsHotspot            string
	Trigger                Trigger
	RequireAckBeforeArming bool
	UnlocksItemID          string
}

// Rect - область нажатия хотспота в пикселях макета.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Contains сообщает, лежит ли точка внутри прямоугольника (края включительно).
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width && y >= r.Y && y <= r.Y+r.Height
}

// Hotspot - область мира, на которую можно нажать.
type Hotspot struct {
	ID          string
	Realm       string
	Interaction Interaction
	Bounds      Rect
	Description string
}

// Riddle - загадка совы с вариантами ответа.
type Riddle struct {
	ID           string   `yaml:"id" json:"id"`
	Question     string   `yaml:"question" json:"question"`
	Answers      []string `yaml:"answers" json:"answers"`
	CorrectIndex int      `yaml:"correctIndex" json:"-"`
}
