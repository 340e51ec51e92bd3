package catalog

import "time"

// Config - таблица наград, лимитов и интервалов каталога.
type Config struct {
	Version    string         `yaml:"version"`
	Rewards    RewardTable    `yaml:"rewards"`
	DailyCaps  DailyCaps      `yaml:"dailyCaps"`
	TokenDrops TokenDrops     `yaml:"tokenDrops"`
	Owl        OwlConfig      `yaml:"owl"`
	Hatch      HatchConfig    `yaml:"hatch"`
	Prophecy   ProphecyConfig `yaml:"prophecy"`
}

// RewardTable - золотые звезды за каждый источник.
type RewardTable struct {
	OwlRiddleCorrect    int `yaml:"owlRiddleCorrect"`
	CraftComplete       int `yaml:"craftComplete"`
	GameSessionComplete int `yaml:"gameSessionComplete"`
	MediaInteraction    int `yaml:"mediaInteraction"`
	DiaryEntry          int `yaml:"diaryEntry"`
	DiaryStreakBonus    int `yaml:"diaryStreakBonus"`
	DiaryStreakLength   int `yaml:"diaryStreakLength"`
}

// DailyCaps действует только на звезды за игры, поделки, медиа и дневник.
type DailyCaps struct {
	DailyGoldCap int `yaml:"dailyGoldCap"`
}

type TokenDrops struct {
	BlueChancePerStar float64 `yaml:"blueTokenChancePerGoldStar"`
	RedChancePerStar  float64 `yaml:"redTokenChancePerGoldStar"`
	Pity              Pity    `yaml:"pity"`
}

// Pity гарантирует жетон после стольких звезд без жетона.
type Pity struct {
	Enabled            bool `yaml:"enabled"`
	BlueGuaranteeAfter int  `yaml:"blueGuaranteeAfter"`
	RedGuaranteeAfter  int  `yaml:"redGuaranteeAfter"`
}

type OwlConfig struct {
	CadenceHours       float64 `yaml:"cadenceHours"`
	RiddleTimerSeconds int     `yaml:"riddleTimerSeconds"`
}

type HatchConfig struct {
	WhenCollectedCountAtLeast int `yaml:"whenCollectedCountAtLeast"`
}

type ProphecyConfig struct {
	DurationHours float64 `yaml:"durationHours"`
	ClueRelicItem string  `yaml:"clueRelicItem"`
}

// OwlCadence - минимальный интервал между загадками.
func (c Config) OwlCadence() time.Duration {
	return time.Duration(c.Owl.CadenceHours * float64(time.Hour))
}

// ProphecyDuration - сколько подтвержденное пророчество остается активным.
func (c Config) ProphecyDuration() time.Duration {
	return time.Duration(c.Prophecy.DurationHours * float64(time.Hour))
}

// DefaultConfig повторяет content/rewards.yaml.
func DefaultConfig() Config {
	return Config{
		Version: "v1",
		Rewards: RewardTable{
			OwlRiddleCorrect:    8,
			CraftComplete:       3,
			GameSessionComplete: 1,
			MediaInteraction:    1,
			DiaryEntry:          1,
			DiaryStreakBonus:    8,
			DiaryStreakLength:   7,
		},
		DailyCaps: DailyCaps{DailyGoldCap: 10},
		TokenDrops: TokenDrops{
			BlueChancePerStar: 0.04,
			RedChancePerStar:  0.015,
			Pity: Pity{
				Enabled:            true,
				BlueGuaranteeAfter: 80,
				RedGuaranteeAfter:  180,
			},
		},
		Owl:      OwlConfig{CadenceHours: 24, RiddleTimerSeconds: 20},
		Hatch:    HatchConfig{WhenCollectedCountAtLeast: 20},
		Prophecy: ProphecyConfig{DurationHours: 24, ClueRelicItem: "item_03_clueRelic"},
	}
}
