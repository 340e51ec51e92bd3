// Package engine - машина состояний прогрессии и открытий одного игрока:
// превращает игровые события в звезды, жетоны, открытые предметы и шаги
// многошаговых открытий.
package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"keepsake-server/internal/catalog"
	"keepsake-server/internal/models"

	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// Store хранит состояние одного игрока. Save не должен блокироваться; движок
// передает в него снимки, которые больше не меняются.
type Store interface {
	Load(ctx context.Context) (*models.ProgressionState, error)
	Save(state *models.ProgressionState)
	Clear(ctx context.Context) error
}

// Roller выдает равномерные числа из [0, 1) для выпадения жетонов.
type Roller interface {
	Float64() float64
}

type defaultRoller struct{}

func (defaultRoller) Float64() float64 { return rand.Float64() }

type Option func(*Engine)

// WithClock подменяет системные часы.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

func WithRoller(r Roller) Option {
	return func(e *Engine) { e.roller = r }
}

// WithLocation задает часовой пояс для локальных дат и окон времени.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

type subscriber struct {
	id uint64
	fn func(Result)
}

// Engine владеет состоянием прогрессии одного игрока. Методы безопасны для
// конкурентного вызова, события применяются по одному.
type Engine struct {
	cat    *catalog.Catalog
	cfg    catalog.Config
	store  Store
	logger *zap.Logger
	clock  func() time.Time
	roller Roller
	loc    *time.Location

	mu          sync.Mutex
	state       *models.ProgressionState
	initialized bool
	subs        []subscriber
	nextSubID   uint64
}

// New создает движок с состоянием по умолчанию. Загрузка - через Init.
func New(cat *catalog.Catalog, store Store, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		cat:    cat,
		cfg:    cat.Config(),
		store:  store,
		logger: logger.Named("ProgressionEngine"),
		clock:  time.Now,
		roller: defaultRoller{},
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.state = e.freshState()
	return e
}

// Catalog возвращает контент, на котором работает движок.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// Init загружает состояние из хранилища. При ошибке загрузки остается
// состояние по умолчанию. Повторный вызов ничего не делает.
func (e *Engine) Init(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return
	}
	e.initialized = true
	if e.store == nil {
		return
	}

	loaded, err := e.store.Load(ctx)
	if err != nil {
		e.logger.Warn("Failed to hydrate progression, using default state", zap.Error(err))
		return
	}
	if loaded == nil {
		e.logger.Debug("No persisted progression, starting fresh")
		return
	}
	m := begin(loaded)
	e.seedReserved(m)
	e.state = m.s
	e.logger.Info("Progression hydrated",
		zap.Int("inventory", len(e.state.Inventory)),
		zap.Int("lifetimeGoldStars", e.state.Totals.LifetimeGoldStars),
	)
}

func (e *Engine) freshState() *models.ProgressionState {
	m := begin(models.DefaultState())
	e.seedReserved(m)
	return m.s
}

func (e *Engine) seedReserved(m *mutation) {
	for _, id := range e.cat.ReservedIDs() {
		m.addItem(id)
	}
}

func (e *Engine) now() time.Time {
	return e.clock().In(e.loc)
}

// Subscribe подписывает fn на каждый результат (в порядке регистрации)
// после применения события. Возвращаемая функция отменяет подписку.
func (e *Engine) Subscribe(fn func(Result)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSubID++
	id := e.nextSubID
	e.subs = append(e.subs, subscriber{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.subs = slices.DeleteFunc(e.subs, func(s subscriber) bool { return s.id == id })
	}
}

// listeners вызывается под mu.
func (e *Engine) listeners() []subscriber {
	return slices.Clone(e.subs)
}

func notify(subs []subscriber, res Result) {
	for _, s := range subs {
		s.fn(res)
	}
}

// ProcessEvent применяет ev, проверяет открытия и вылупление, сохраняет новый
// снимок и уведомляет подписчиков. Неизвестные типы и события без нужных
// данных только запускают проверки. Ошибка означает непригодное правило
// открытия в каталоге; состояние при этом не меняется.
func (e *Engine) ProcessEvent(ev Event) (Result, error) {
	e.mu.Lock()
	now := e.now()
	m := begin(e.state)
	res := newResult(ev.Type)

	e.apply(m, ev, now, &res)
	if err := e.finish(m, &res); err != nil {
		e.mu.Unlock()
		e.logger.Error("Unlock check failed, event discarded",
			zap.String("eventType", string(ev.Type)), zap.Error(err))
		return Result{}, err
	}
	subs := e.listeners()
	e.mu.Unlock()

	notify(subs, res)
	return res, nil
}

// finish выполняет проверки после события и фиксирует m. Вызывается под mu.
func (e *Engine) finish(m *mutation, res *Result) error {
	if err := e.checkUnlocks(m, res); err != nil {
		return err
	}
	e.checkEggHatch(m, res)
	e.commit(m)
	res.NewState = m.s
	return nil
}

func (e *Engine) commit(m *mutation) {
	e.state = m.s
	if e.store != nil {
		e.store.Save(m.s)
	}
}

func (e *Engine) apply(m *mutation, ev Event, now time.Time, res *Result) {
	rewards := e.cfg.Rewards
	switch ev.Type {
	case EventOwlRiddleCorrect:
		e.handleOwlCorrect(m, ev.Payload, now, res)
	case EventOwlRiddleWrong, EventOwlRiddleTimeout:
		e.handleOwlFailed(m, ev, now, res)
	case EventOwlRiddleOpened:
		res.cue(CueOwlOpen)
	case EventGamePlayed:
		e.awardCapped(m, rewards.GameSessionComplete, now, res)
	case EventCraftCompleted:
		e.awardCapped(m, rewards.CraftComplete, now, res)
	case EventMediaDone:
		e.awardCapped(m, rewards.MediaInteraction, now, res)
	case EventDiarySaved:
		e.handleDiarySaved(m, now, res)
	case EventHotspotTriggered:
		e.handleHotspotTriggered(m, ev.Payload, res)
	case EventRealmChanged:
		e.handleRealmChanged(m, ev.Payload, res)
	case EventClueAcknowledged:
		e.handleClueAcknowledged(m, ev.Payload, now)
	case EventAppOpened:
		e.handleAppOpened(m, now, res)
	case EventProphecyTapped:
		e.handleProphecyTapped(m)
	case EventProphecyExpired:
		e.expireProphecy(m)
	case EventHatchCinematicSeen:
		m.s.Discovery.HatchSeen = true
	default:
		e.logger.Debug("Ignoring unknown event type", zap.String("eventType", string(ev.Type)))
	}
}

// GetState возвращает глубокую копию текущего состояния.
func (e *Engine) GetState() *models.ProgressionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// IsOwlArmed сообщает, можно ли предложить загадку: сова взведена или с
// последней попытки прошел интервал.
func (e *Engine) IsOwlArmed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owlReady(e.state, e.now())
}

func (e *Engine) owlReady(s *models.ProgressionState, now time.Time) bool {
	if s.Owl.State == models.OwlArmed {
		return true
	}
	since := now.Sub(time.UnixMilli(s.Owl.LastAttemptTimestamp))
	return since >= e.cfg.OwlCadence()
}

// NextRiddle возвращает первую еще не заданную загадку.
func (e *Engine) NextRiddle() (catalog.Riddle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.cat.Riddles() {
		if !slices.Contains(e.state.Riddles.AskedIDs, r.ID) {
			return r, true
		}
	}
	return catalog.Riddle{}, false
}

func (e *Engine) IsHotspotArmed(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Contains(e.state.Discovery.ArmedHotspots, id)
}

// PendingClue возвращает подсказку, ждущую подтверждения, или "".
func (e *Engine) PendingClue() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Discovery.PendingClueID
}

// CurrentStep возвращает шаг, которого ждет активная последовательность, или nil.
func (e *Engine) CurrentStep() catalog.Step {
	e.mu.Lock()
	defer e.mu.Unlock()
	seq := e.state.Discovery.ActiveSequence
	if seq == nil {
		return nil
	}
	_, step, ok := e.currentStep(seq)
	if !ok {
		return nil
	}
	return step
}

func (e *Engine) ActiveSequence() *models.ActiveDiscoverySequence {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Discovery.ActiveSequence.Clone()
}

func (e *Engine) ActiveRealm() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Discovery.ActiveRealmID
}

// IsMirrorProphecyAvailable сообщает, ждет ли пророчество нажатия.
func (e *Engine) IsMirrorProphecyAvailable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Discovery.ProphecyState == models.ProphecyAvailable
}

// DebugAddStars начисляет n звезд вне событий, с бросками жетонов и
// проверками открытий и вылупления.
func (e *Engine) DebugAddStars(n int) (Result, error) {
	if n < 0 {
		return Result{}, fmt.Errorf("%w: star amount must not be negative", models.ErrInvalidInput)
	}
	e.mu.Lock()
	m := begin(e.state)
	res := newResult(EventDebugAddStars)
	e.awardStars(m, n, &res)
	if err := e.finish(m, &res); err != nil {
		e.mu.Unlock()
		return Result{}, err
	}
	subs := e.listeners()
	e.mu.Unlock()

	notify(subs, res)
	return res, nil
}

// DebugUnlockItem кладет предмет каталога в инвентарь.
func (e *Engine) DebugUnlockItem(id string) error {
	if _, ok := e.cat.Item(id); !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownItem, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := begin(e.state)
	if m.addItem(id) {
		e.commit(m)
		e.logger.Info("Debug item unlocked", zap.String("itemId", id))
	}
	return nil
}

// DebugReset стирает сохраненную запись и возвращает состояние первого запуска.
func (e *Engine) DebugReset(ctx context.Context) (Result, error) {
	e.mu.Lock()
	// Clear под mu: ни одно событие не поставит в очередь снимок до сброса.
	if e.store != nil {
		if err := e.store.Clear(ctx); err != nil {
			e.mu.Unlock()
			return Result{}, fmt.Errorf("clear progression: %w", err)
		}
	}
	e.state = e.freshState()
	res := newResult(EventDebugReset)
	res.NewState = e.state
	subs := e.listeners()
	e.mu.Unlock()

	e.logger.Info("Progression reset")
	notify(subs, res)
	return res, nil
}
