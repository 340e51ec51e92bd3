// Package catalog хранит неизменяемый игровой контент: предметы с правилами
// открытия, подсказки с шагами, правила открытий по одному хотспоту,
// реестр хотспотов, банк загадок совы и таблицу наград.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

//go:embed content/*.yaml
var contentFS embed.FS

const (
	itemsFileName     = "items.yaml"
	cluesFileName     = "clues.yaml"
	discoveryFileName = "discovery.yaml"
	riddlesFileName   = "riddles.yaml"
	rewardsFileName   = "rewards.yaml"
)

// Content - исходные данные для Catalog.
type Content struct {
	Config   Config
	Items    []Item
	Clues    []Clue
	Rules    []DiscoveryRule
	Hotspots []Hotspot
	Riddles  []Riddle
}

// Catalog - индексированное неизменяемое представление Content. Срезы,
// которые возвращают методы, общие, изменять их нельзя.
type Catalog struct {
	config   Config
	items    []Item
	clues    []Clue
	rules    []DiscoveryRule
	hotspots []Hotspot
	riddles  []Riddle

	itemIdx       map[string]int
	clueIdx       map[string]int
	ruleIdx       map[string]int
	ruleByHotspot map[string]int
	hotspotIdx    map[string]int
	riddleIdx     map[string]int
}

// New индексирует контент. При дубликатах id побеждает первая запись,
// Validate о них сообщает. Шаги без жеста берут его из реестра хотспотов.
func New(c Content) *Catalog {
	cat := &Catalog{
		config:        c.Config,
		items:         c.Items,
		rules:         c.Rules,
		hotspots:      c.Hotspots,
		riddles:       c.Riddles,
		itemIdx:       make(map[string]int, len(c.Items)),
		clueIdx:       make(map[string]int, len(c.Clues)),
		ruleIdx:       make(map[string]int, len(c.Rules)),
		ruleByHotspot: make(map[string]int, len(c.Rules)),
		hotspotIdx:    make(map[string]int, len(c.Hotspots)),
		riddleIdx:     make(map[string]int, len(c.Riddles)),
	}
	for i, it := range c.Items {
		indexOnce(cat.itemIdx, it.ID, i)
	}
	for i, h := range c.Hotspots {
		indexOnce(cat.hotspotIdx, h.ID, i)
	}
	for i, r := range c.Rules {
		indexOnce(cat.ruleIdx, r.DiscoveryID, i)
		indexOnce(cat.ruleByHotspot, r.ArmsHotspot, i)
	}
	for i, r := range c.Riddles {
		indexOnce(cat.riddleIdx, r.ID, i)
	}

	cat.clues = make([]Clue, 0, len(c.Clues))
	for _, clue := range c.Clues {
		steps := make([]Step, len(clue.Steps))
		for i, step := range clue.Steps {
			if hs, ok := step.(HotspotStep); ok && hs.Interaction == nil {
				if h, found := cat.Hotspot(hs.HotspotID); found {
					hs.Interaction = h.Interaction
				} else {
					hs.Interaction = Tap{}
				}
				step = hs
			}
			steps[i] = step
		}
		clue.Steps = steps
		indexOnce(cat.clueIdx, clue.ID, len(cat.clues))
		cat.clues = append(cat.clues, clue)
	}
	return cat
}

func indexOnce(idx map[string]int, id string, i int) {
	if _, ok := idx[id]; !ok {
		idx[id] = i
	}
}

// Default возвращает каталог, встроенный в бинарник.
func Default() (*Catalog, error) {
	return Load(contentFS, "content")
}

// LoadDir читает каталог из директории на диске.
func LoadDir(dir string) (*Catalog, error) {
	return Load(os.DirFS(dir), ".")
}

// Load читает каталог из dir внутри fsys и проверяет его. rewards.yaml и
// riddles.yaml необязательны, недостающие ключи наград берутся из DefaultConfig.
func Load(fsys fs.FS, dir string) (*Catalog, error) {
	content := Content{Config: DefaultConfig()}

	if err := decodeFile(fsys, dir, rewardsFileName, &content.Config, true); err != nil {
		return nil, err
	}

	var items itemsFile
	if err := decodeFile(fsys, dir, itemsFileName, &items, false); err != nil {
		return nil, err
	}
	for _, d := range items.Items {
		content.Items = append(content.Items, d.toItem())
	}

	var clues cluesFile
	if err := decodeFile(fsys, dir, cluesFileName, &clues, false); err != nil {
		return nil, err
	}
	for _, d := range clues.Clues {
		clue, err := d.toClue()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", cluesFileName, err)
		}
		content.Clues = append(content.Clues, clue)
	}

	var discovery discoveryFile
	if err := decodeFile(fsys, dir, discoveryFileName, &discovery, false); err != nil {
		return nil, err
	}
	for _, d := range discovery.Hotspots {
		content.Hotspots = append(content.Hotspots, d.toHotspot())
	}
	for _, d := range discovery.Rules {
		content.Rules = append(content.Rules, d.toRule())
	}

	var riddles riddlesFile
	if err := decodeFile(fsys, dir, riddlesFileName, &riddles, true); err != nil {
		return nil, err
	}
	content.Riddles = riddles.Riddles

	cat := New(content)
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return cat, nil
}

func decodeFile(fsys fs.FS, dir, name string, out any, optional bool) error {
	data, err := fs.ReadFile(fsys, path.Join(dir, name))
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func (c *Catalog) Config() Config { return c.config }

// Items возвращает предметы в порядке каталога (он же порядок проверки открытий).
func (c *Catalog) Items() []Item { return c.items }

func (c *Catalog) Item(id string) (Item, bool) {
	i, ok := c.itemIdx[id]
	if !ok {
		return Item{}, false
	}
	return c.items[i], true
}

// ReservedIDs - предустановленные предметы (сова, яйцо) в порядке каталога.
func (c *Catalog) ReservedIDs() []string {
	var ids []string
	for _, it := range c.items {
		if it.Reserved {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// IsReserved сообщает, предустановлен ли предмет id.
func (c *Catalog) IsReserved(id string) bool {
	it, ok := c.Item(id)
	return ok && it.Reserved
}

// Clues возвращает подсказки в порядке каталога (он же порядок пророчеств).
func (c *Catalog) Clues() []Clue { return c.clues }

func (c *Catalog) Clue(id string) (Clue, bool) {
	i, ok := c.clueIdx[id]
	if !ok {
		return Clue{}, false
	}
	return c.clues[i], true
}

func (c *Catalog) Rules() []DiscoveryRule { return c.rules }

func (c *Catalog) Rule(discoveryID string) (DiscoveryRule, bool) {
	i, ok := c.ruleIdx[discoveryID]
	if !ok {
		return DiscoveryRule{}, false
	}
	return c.rules[i], true
}

// RuleForHotspot возвращает первое правило, взводящее hotspotID.
func (c *Catalog) RuleForHotspot(hotspotID string) (DiscoveryRule, bool) {
	i, ok := c.ruleByHotspot[hotspotID]
	if !ok {
		return DiscoveryRule{}, false
	}
	return c.rules[i], true
}

func (c *Catalog) Hotspots() []Hotspot { return c.hotspots }

func (c *Catalog) Hotspot(id string) (Hotspot, bool) {
	i, ok := c.hotspotIdx[id]
	if !ok {
		return Hotspot{}, false
	}
	return c.hotspots[i], true
}

// Riddles возвращает банк загадок в порядке показа.
func (c *Catalog) Riddles() []Riddle { return c.riddles }

func (c *Catalog) Riddle(id string) (Riddle, bool) {
	i, ok := c.riddleIdx[id]
	if !ok {
		return Riddle{}, false
	}
	return c.riddles[i], true
}

// ClueText возвращает текст подсказки или правила открытия.
func (c *Catalog) ClueText(id string) (string, bool) {
	if clue, ok := c.Clue(id); ok {
		return clue.Text, true
	}
	if rule, ok := c.Rule(id); ok {
		return rule.ClueText, true
	}
	return "", false
}
