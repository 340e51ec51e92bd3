package models

// OwlState - сохраняемый флаг доступности совы.
type OwlState string

const (
	OwlArmed    OwlState = "armed"
	OwlSleeping OwlState = "sleeping"
)

// ProphecyState - положение зеркального пророчества в цикле:
// hidden -> available -> showing -> active -> hidden.
type ProphecyState string

const (
	ProphecyHidden    ProphecyState = "hidden"
	ProphecyAvailable ProphecyState = "available"
	ProphecyShowing   ProphecyState = "showing"
	ProphecyActive    ProphecyState = "active"
)

// DefaultRealmID - мир, в котором игрок начинает.
const DefaultRealmID = "home"

// Totals - счетчики валют.
type Totals struct {
	GoldStars              int `json:"goldStars"`
	BlueTokens             int `json:"blueTokens"`
	RedTokens              int `json:"redTokens"`
	LifetimeGoldStars      int `json:"lifetimeGoldStars"`
	GoldStarsSinceLastBlue int `json:"goldStarsSinceLastBlue"`
	GoldStarsSinceLastRed  int `json:"goldStarsSinceLastRed"`
}

// RiddleData - заданные и решенные загадки совы.
// Время в миллисекундах unix.
type RiddleData struct {
	AskedIDs    []string         `json:"askedIds"`
	Timestamps  map[string]int64 `json:"timestamps"`
	SolvedCount int              `json:"solvedCount"`
}

// ClueData - подтвержденные подсказки.
type ClueData struct {
	UsedIDs    []string         `json:"usedIds"`
	Timestamps map[string]int64 `json:"timestamps"`
}

// OwlData описывает интервал загадок совы.
type OwlData struct {
	LastAttemptTimestamp int64    `json:"lastAttemptTimestamp"`
	State                OwlState `json:"state"`
}

// Point - позиция указателя в координатах хотспота.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// InteractionScratch - промежуточный прогресс жеста для текущего шага.
// Сбрасывается при каждом переходе шага.
type InteractionScratch struct {
	TapCount             int     `json:"tapCount,omitempty"`
	LastTapMs            int64   `json:"lastTapMs,omitempty"`
	HoldStartMs          int64   `json:"holdStartMs,omitempty"`
	Holding              bool    `json:"holding,omitempty"`
	StirStarted          bool    `json:"stirStarted,omitempty"`
	StirStartedMs        int64   `json:"stirStartedMs,omitempty"`
	StirAngleAccumulated float64 `json:"stirAngleAccumulated,omitempty"`
	StirLastPoint        *Point  `json:"stirLastPoint,omitempty"`
}

// ActiveDiscoverySequence - единственное идущее многошаговое открытие.
type ActiveDiscoverySequence struct {
	ClueID      string `json:"clueId"`
	StepIndex   int    `json:"stepIndex"`
	StartedAtMs int64  `json:"startedAtMs"`
	// ExpiresAtMs равен nil, если у подсказки нет окна времени.
	ExpiresAtMs *int64 `json:"expiresAtMs"`
	InteractionScratch
}

// DiscoveryData - учет открытий, пророчества и вылупления.
// Пустые PendingClueID / ProphecyClueID означают "нет".
type DiscoveryData struct {
	ArmedHotspots        []string                 `json:"armedHotspots"`
	PendingClueID        string                   `json:"pendingClueId"`
	TriggeredDiscoveries []string                 `json:"triggeredDiscoveries"`
	AppOpenCount         int                      `json:"appOpenCount"`
	LastOpenDate         string                   `json:"lastOpenDate"`
	ActiveSequence       *ActiveDiscoverySequence `json:"activeSequence"`
	ActiveRealmID        string                   `json:"activeRealmId"`
	ProphecyClueID       string                   `json:"prophecyClueId"`
	ProphecyState        ProphecyState            `json:"prophecyState"`
	ProphecyStartTime    int64                    `json:"prophecyStartTime"`
	HatchSeen            bool                     `json:"hatchSeen"`
}

// DiaryStreakData считает дни дневника подряд. Даты локальные, YYYY-MM-DD.
type DiaryStreakData struct {
	CurrentStreak int    `json:"currentStreak"`
	LastEntryDate string `json:"lastEntryDate"`
	LongestStreak int    `json:"longestStreak"`
}

// DailyCountsData - счетчик локального дня для дневного лимита звезд.
type DailyCountsData struct {
	Date             string `json:"date"`
	DailyCappedStars int    `json:"dailyCappedStars"`
}

// ProgressionState - весь сохраняемый прогресс одного игрока.
type ProgressionState struct {
	Totals      Totals          `json:"totals"`
	Inventory   []string        `json:"inventory"`
	Riddles     RiddleData      `json:"riddles"`
	Clues       ClueData        `json:"clues"`
	Owl         OwlData         `json:"owl"`
	Discovery   DiscoveryData   `json:"discovery"`
	DiaryStreak DiaryStreakData `json:"diaryStreak"`
	DailyCounts DailyCountsData `json:"dailyCounts"`
}

// DefaultState возвращает состояние первого запуска.
func DefaultState() *ProgressionState {
	return &ProgressionState{
		Inventory: []string{},
		Riddles: RiddleData{
			AskedIDs:   []string{},
			Timestamps: map[string]int64{},
		},
		Clues: ClueData{
			UsedIDs:    []string{},
			Timestamps: map[string]int64{},
		},
		Owl: OwlData{State: OwlArmed},
		Discovery: DiscoveryData{
			ArmedHotspots:        []string{},
			TriggeredDiscoveries: []string{},
			ActiveRealmID:        DefaultRealmID,
			ProphecyState:        ProphecyHidden,
		},
	}
}

// HasItem сообщает, есть ли id в инвентаре.
func (s *ProgressionState) HasItem(id string) bool {
	for _, owned := range s.Inventory {
		if owned == id {
			return true
		}
	}
	return false
}

// Clone возвращает глубокую копию, не разделяющую данных с s.
func (s *ProgressionState) Clone() *ProgressionState {
	if s == nil {
		return nil
	}
	c := *s
	c.Inventory = cloneStrings(s.Inventory)
	c.Riddles.AskedIDs = cloneStrings(s.Riddles.AskedIDs)
	c.Riddles.Timestamps = cloneTimestamps(s.Riddles.Timestamps)
	c.Clues.UsedIDs = cloneStrings(s.Clues.UsedIDs)
	c.Clues.Timestamps = cloneTimestamps(s.Clues.Timestamps)
	c.Discovery.ArmedHotspots = cloneStrings(s.Discovery.ArmedHotspots)
	c.Discovery.TriggeredDiscoveries = cloneStrings(s.Discovery.TriggeredDiscoveries)
	c.Discovery.ActiveSequence = s.Discovery.ActiveSequence.Clone()
	return &c
}

// Clone копирует последовательность вместе с точкой жеста.
func (a *ActiveDiscoverySequence) Clone() *ActiveDiscoverySequence {
	if a == nil {
		return nil
	}
	c := *a
	if a.ExpiresAtMs != nil {
		v := *a.ExpiresAtMs
		c.ExpiresAtMs = &v
	}
	if a.StirLastPoint != nil {
		p := *a.StirLastPoint
		c.StirLastPoint = &p
	}
	return &c
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneTimestamps(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
