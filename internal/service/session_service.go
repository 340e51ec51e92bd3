package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"keepsake-server/internal/catalog"
	"keepsake-server/internal/engine"
	"keepsake-server/internal/interaction"
	"keepsake-server/internal/interfaces"
	"keepsake-server/internal/messaging"
	"keepsake-server/internal/metrics"
	"keepsake-server/internal/models"
	"keepsake-server/internal/persistence"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionService держит по одному гидратированному движку на активного игрока.
// Чтение состояния игрока без сессии сессию не создает.
type SessionService interface {
	CreatePlayer(ctx context.Context) (string, *models.ProgressionState, error)
	ProcessEvent(ctx context.Context, playerID string, ev engine.Event) (engine.Result, error)
	State(ctx context.Context, playerID string) (*models.ProgressionState, error)
	Owl(ctx context.Context, playerID string) (OwlStatus, error)
	HotspotArmed(ctx context.Context, playerID, hotspotID string) (bool, error)
	PendingClue(ctx context.Context, playerID string) (ClueStatus, error)
	CurrentStep(ctx context.Context, playerID string) (StepStatus, error)
	Prophecy(ctx context.Context, playerID string) (ProphecyStatus, error)
	ValidateInteraction(ctx context.Context, playerID string, req InteractionRequest) (InteractionVerdict, error)
	DebugAddStars(ctx context.Context, playerID string, n int) (engine.Result, error)
	DebugUnlockItem(ctx context.Context, playerID, itemID string) (*models.ProgressionState, error)
	DebugReset(ctx context.Context, playerID string) (engine.Result, error)
	EvictIdle(ctx context.Context) int
	Close(ctx context.Context) error
}

// OwlStatus - доступность совы и следующая загадка.
type OwlStatus struct {
	Armed      bool            `json:"armed"`
	NextRiddle *catalog.Riddle `json:"nextRiddle,omitempty"`
}

// ClueStatus - ожидающая подсказка. Пустой ClueID означает "нет подсказки".
type ClueStatus struct {
	ClueID string `json:"clueId,omitempty"`
	Text   string `json:"text,omitempty"`
}

// StepStatus описывает шаг, которого ждет активная последовательность.
type StepStatus struct {
	Active      bool   `json:"active"`
	ClueID      string `json:"clueId,omitempty"`
	StepIndex   int    `json:"stepIndex"`
	Kind        string `json:"kind,omitempty"`
	Realm       string `json:"realm,omitempty"`
	HotspotID   string `json:"hotspotId,omitempty"`
	Interaction string `json:"interaction,omitempty"`
	ExpiresAtMs *int64 `json:"expiresAtMs,omitempty"`
}

// ProphecyStatus - состояние зеркального пророчества.
type ProphecyStatus struct {
	Available bool                 `json:"available"`
	State     models.ProphecyState `json:"state"`
	ClueID    string               `json:"clueId,omitempty"`
}

// InteractionRequest - записанный жест игрока на хотспоте.
type InteractionRequest struct {
	HotspotID string
	Samples   []interaction.Sample
	// Submit пересылает вердикт в движок как hotspot_triggered.
	Submit bool
}

// InteractionVerdict - результат проверки жеста.
type InteractionVerdict struct {
	Valid  bool           `json:"valid"`
	Result *engine.Result `json:"result,omitempty"`
}

// Options собирает зависимости сервиса сессий.
type Options struct {
	Catalog     *catalog.Catalog
	Repository  interfaces.ProgressionRepository
	Publisher   messaging.ResultPublisher // nil отключает публикацию
	Metrics     *metrics.Metrics          // nil отключает метрики
	Location    *time.Location
	SaveTimeout time.Duration
	// IdleTimeout - через сколько без запросов сессия выгружается (0 - никогда).
	IdleTimeout time.Duration
	// Clock используется для учета простоя сессий. По умолчанию time.Now.
	Clock func() time.Time
	// EngineOptions добавляются к опциям каждого движка (часы, генератор).
	EngineOptions []engine.Option
}

// hydrateTimeout ограничивает загрузку состояния при создании сессии.
const hydrateTimeout = 10 * time.Second

type session struct {
	playerID string
	ready    chan struct{} // закрывается после гидратации
	done     chan struct{} // закрывается после выгрузки

	engine  *engine.Engine
	gateway *persistence.Gateway
	unsubs  []func()

	// Поля ниже защищены sessionServiceImpl.mu
	refs     int
	lastUsed time.Time
	evicting bool
}

type sessionServiceImpl struct {
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool

	stopJanitor chan struct{}
	janitorDone chan struct{}
}

// NewSessionService создает реестр сессий. При IdleTimeout > 0 запускается
// фоновая выгрузка простаивающих сессий, которую останавливает Close.
func NewSessionService(opts Options, logger *zap.Logger) SessionService {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	s := &sessionServiceImpl{
		opts:     opts,
		logger:   logger.Named("SessionService"),
		sessions: make(map[string]*session),
	}
	if opts.IdleTimeout > 0 {
		s.stopJanitor = make(chan struct{})
		s.janitorDone = make(chan struct{})
		go s.janitor(sweepInterval(opts.IdleTimeout))
	}
	return s
}

func sweepInterval(idle time.Duration) time.Duration {
	if interval := idle / 2; interval > time.Second {
		return interval
	}
	return time.Second
}

func (s *sessionServiceImpl) janitor(interval time.Duration) {
	defer close(s.janitorDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopJanitor:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), hydrateTimeout)
			if n := s.EvictIdle(ctx); n > 0 {
				s.logger.Debug("Простаивающие сессии выгружены", zap.Int("count", n))
			}
			cancel()
		}
	}
}

func waitFor(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// lookup возвращает живую сессию игрока, увеличив ее счетчик ссылок. Если
// сессии нет, при create она создается и гидратируется вне блокировки
// реестра, иначе возвращается nil. Сессия в процессе выгрузки сначала
// дожидается ее завершения.
func (s *sessionServiceImpl) lookup(ctx context.Context, playerID string, create bool) (*session, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrServiceClosed
		}
		sess, ok := s.sessions[playerID]
		switch {
		case ok && sess.evicting:
			done := sess.done
			s.mu.Unlock()
			if err := waitFor(ctx, done); err != nil {
				return nil, err
			}
			continue
		case ok:
			sess.refs++
			s.mu.Unlock()
			if err := waitFor(ctx, sess.ready); err != nil {
				s.release(sess)
				return nil, err
			}
			return sess, nil
		case !create:
			s.mu.Unlock()
			return nil, nil
		}

		sess = &session{
			playerID: playerID,
			ready:    make(chan struct{}),
			done:     make(chan struct{}),
			refs:     1,
		}
		s.sessions[playerID] = sess
		s.mu.Unlock()

		s.hydrate(ctx, sess)
		return sess, nil
	}
}

func (s *sessionServiceImpl) release(sess *session) {
	s.mu.Lock()
	sess.refs--
	sess.lastUsed = s.opts.Clock()
	s.mu.Unlock()
}

func (s *sessionServiceImpl) newEngine(store engine.Store, playerID string) *engine.Engine {
	engOpts := append([]engine.Option{engine.WithLocation(s.opts.Location)}, s.opts.EngineOptions...)
	return engine.New(s.opts.Catalog, store, s.logger.With(zap.String("playerID", playerID)), engOpts...)
}

// hydrate строит движок сессии. Загрузка не прерывается отменой запроса,
// иначе движок стартовал бы с состояния по умолчанию и перезаписал бы сохранение.
func (s *sessionServiceImpl) hydrate(ctx context.Context, sess *session) {
	defer close(sess.ready)

	gwOpts := []persistence.Option{persistence.WithSaveTimeout(s.opts.SaveTimeout)}
	if s.opts.Metrics != nil {
		gwOpts = append(gwOpts, persistence.WithSaveErrorHandler(s.opts.Metrics.SaveFailed))
	}
	gw := persistence.NewGateway(s.opts.Repository, sess.playerID, s.logger, gwOpts...)
	eng := s.newEngine(gw, sess.playerID)

	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hydrateTimeout)
	eng.Init(hctx)
	cancel()

	sess.engine = eng
	sess.gateway = gw
	if s.opts.Metrics != nil {
		sess.unsubs = append(sess.unsubs, eng.Subscribe(s.opts.Metrics.ObserveResult))
		s.opts.Metrics.SessionOpened()
	}
	if s.opts.Publisher != nil {
		sess.unsubs = append(sess.unsubs, eng.Subscribe(messaging.ResultForwarder(s.opts.Publisher, sess.playerID, s.logger)))
	}
	s.logger.Info("Сессия игрока создана", zap.String("playerID", sess.playerID))
}

func normalizePlayerID(playerID string) (string, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return "", models.ErrPlayerIDRequired
	}
	return playerID, nil
}

// withSession выполняет fn на движке сессии игрока, создавая ее при необходимости.
// Используется операциями, которые меняют состояние.
func (s *sessionServiceImpl) withSession(ctx context.Context, playerID string, fn func(*engine.Engine) error) error {
	playerID, err := normalizePlayerID(playerID)
	if err != nil {
		return err
	}
	sess, err := s.lookup(ctx, playerID, true)
	if err != nil {
		return err
	}
	defer s.release(sess)
	return fn(sess.engine)
}

// withView выполняет fn для чтения. Если сессии нет, движок собирается поверх
// Snapshot и не регистрируется: чтение не создает сессий и горутин.
func (s *sessionServiceImpl) withView(ctx context.Context, playerID string, fn func(*engine.Engine) error) error {
	playerID, err := normalizePlayerID(playerID)
	if err != nil {
		return err
	}
	sess, err := s.lookup(ctx, playerID, false)
	if err != nil {
		return err
	}
	if sess != nil {
		defer s.release(sess)
		return fn(sess.engine)
	}
	eng := s.newEngine(persistence.NewSnapshot(s.opts.Repository, playerID), playerID)
	eng.Init(ctx)
	return fn(eng)
}

// EvictIdle выгружает сессии без активных запросов, простаивающие дольше
// IdleTimeout: дописывает сохранение и останавливает gateway. Возвращает
// число выгруженных сессий.
func (s *sessionServiceImpl) EvictIdle(ctx context.Context) int {
	if s.opts.IdleTimeout <= 0 {
		return 0
	}
	now := s.opts.Clock()

	s.mu.Lock()
	var idle []*session
	for _, sess := range s.sessions {
		if sess.evicting || sess.refs > 0 || now.Sub(sess.lastUsed) < s.opts.IdleTimeout {
			continue
		}
		sess.evicting = true
		idle = append(idle, sess)
	}
	s.mu.Unlock()

	for _, sess := range idle {
		if err := s.shutdownSession(ctx, sess); err != nil {
			s.logger.Error("Не удалось сохранить состояние при выгрузке сессии",
				zap.String("playerID", sess.playerID), zap.Error(err))
		}
		s.mu.Lock()
		if cur, ok := s.sessions[sess.playerID]; ok && cur == sess {
			delete(s.sessions, sess.playerID)
		}
		s.mu.Unlock()
		close(sess.done)
	}
	return len(idle)
}

func (s *sessionServiceImpl) shutdownSession(ctx context.Context, sess *session) error {
	for _, unsub := range sess.unsubs {
		unsub()
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.SessionClosed()
	}
	if err := sess.gateway.Close(ctx); err != nil {
		return fmt.Errorf("player %s: %w", sess.playerID, err)
	}
	return nil
}

func (s *sessionServiceImpl) CreatePlayer(ctx context.Context) (string, *models.ProgressionState, error) {
	playerID := uuid.New().String()
	var state *models.ProgressionState
	err := s.withSession(ctx, playerID, func(eng *engine.Engine) error {
		state = eng.GetState()
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return playerID, state, nil
}

// ProcessEvent передает событие движку. Неизвестные типы движок обрабатывает
// как пустое событие; отклоняются только метки результатов отладки.
func (s *sessionServiceImpl) ProcessEvent(ctx context.Context, playerID string, ev engine.Event) (engine.Result, error) {
	if ev.Type == "" || ev.Type.ResultOnly() {
		return engine.Result{}, fmt.Errorf("%w: %q", models.ErrUnknownEventType, ev.Type)
	}
	var res engine.Result
	err := s.withSession(ctx, playerID, func(eng *engine.Engine) error {
		var err error
		res, err = eng.ProcessEvent(ev)
		return err
	})
	return res, err
}

func (s *sessionServiceImpl) State(ctx context.Context, playerID string) (*models.ProgressionState, error) {
	var state *models.ProgressionState
	err := s.withView(ctx, playerID, func(eng *engine.Engine) error {
		state = eng.GetState()
		return nil
	})
	return state, err
}

func (s *sessionServiceImpl) Owl(ctx context.Context, playerID string) (OwlStatus, error) {
	var status OwlStatus
	err := s.withView(ctx, playerID, func(eng *engine.Engine) error {
		status.Armed = eng.IsOwlArmed()
		if riddle, ok := eng.NextRiddle(); ok {
			status.NextRiddle = &riddle
		}
		return nil
	})
	return status, err
}

func (s *sessionServiceImpl) HotspotArmed(ctx context.Context, playerID, hotspotID string) (bool, error) {
	if _, ok := s.opts.Catalog.Hotspot(hotspotID); !ok {
		return false, fmt.Errorf("%w: hotspot %s", models.ErrNotFound, hotspotID)
	}
	var armed bool
	err := s.withView(ctx, playerID, func(eng *engine.Engine) error {
		armed = eng.IsHotspotArmed(hotspotID)
		return nil
	})
	return armed, err
}

func (s *sessionServiceImpl) PendingClue(ctx context.Context, playerID string) (ClueStatus, error) {
	var status ClueStatus
	err := s.withView(ctx, playerID, func(eng *engine.Engine) error {
		if id := eng.PendingClue(); id != "" {
			text, _ := eng.Catalog().ClueText(id)
			status = ClueStatus{ClueID: id, Text: text}
		}
		return nil
	})
	return status, err
}

func (s *sessionServiceImpl) CurrentStep(ctx context.Context, playerID string) (StepStatus, error) {
	var status StepStatus
	err := s.withView(ctx, playerID, func(eng *engine.Engine) error {
		seq := eng.ActiveSequence()
		step := eng.CurrentStep()
		if seq == nil || step == nil {
			return nil
		}
		status = StepStatus{
			Active:      true,
			ClueID:      seq.ClueID,
			StepIndex:   seq.StepIndex,
			Realm:       step.StepRealm(),
			ExpiresAtMs: seq.ExpiresAtMs,
		}
		switch st := step.(type) {
		case catalog.HotspotStep:
			status.Kind = "hotspot"
			status.HotspotID = st.HotspotID
			if in := stepInteraction(eng.Catalog(), st); in != nil {
				status.Interaction = in.Kind()
			}
		case catalog.RealmOpenedStep:
			status.Kind = "realmOpened"
		}
		return nil
	})
	return status, err
}

func (s *sessionServiceImpl) Prophecy(ctx context.Context, playerID string) (ProphecyStatus, error) {
	var status ProphecyStatus
	err := s.withView(ctx, playerID, func(eng *engine.Engine) error {
		d := eng.GetState().Discovery
		status = ProphecyStatus{
			Available: eng.IsMirrorProphecyAvailable(),
			State:     d.ProphecyState,
			ClueID:    d.ProphecyClueID,
		}
		return nil
	})
	return status, err
}

// ValidateInteraction проверяет жест по правилам текущего шага (или самого
// хотспота) и при Submit отправляет вердикт в движок. Проверка без Submit
// только читает состояние и сессию не создает.
func (s *sessionServiceImpl) ValidateInteraction(ctx context.Context, playerID string, req InteractionRequest) (InteractionVerdict, error) {
	hotspot, ok := s.opts.Catalog.Hotspot(req.HotspotID)
	if !ok {
		return InteractionVerdict{}, fmt.Errorf("%w: hotspot %s", models.ErrNotFound, req.HotspotID)
	}

	run := s.withView
	if req.Submit {
		run = s.withSession
	}
	var verdict InteractionVerdict
	err := run(ctx, playerID, func(eng *engine.Engine) error {
		in := hotspot.Interaction
		if st, ok := eng.CurrentStep().(catalog.HotspotStep); ok && st.HotspotID == hotspot.ID {
			in = stepInteraction(eng.Catalog(), st)
		}
		if in == nil {
			in = catalog.Tap{}
		}
		var bounds *catalog.Rect
		if hotspot.Bounds.Width > 0 && hotspot.Bounds.Height > 0 {
			bounds = &hotspot.Bounds
		}

		valid, err := interaction.Validate(in, bounds, req.Samples)
		if err != nil {
			return err
		}
		verdict.Valid = valid
		if !req.Submit {
			return nil
		}

		res, err := eng.ProcessEvent(engine.Event{
			Type:    engine.EventHotspotTriggered,
			Payload: engine.Payload{HotspotID: hotspot.ID, InteractionValid: &valid},
		})
		if err != nil {
			return err
		}
		verdict.Result = &res
		return nil
	})
	if err != nil {
		return InteractionVerdict{}, err
	}
	return verdict, nil
}

// stepInteraction берет жест шага, а если он не задан - жест хотспота.
func stepInteraction(cat *catalog.Catalog, st catalog.HotspotStep) catalog.Interaction {
	if st.Interaction != nil {
		return st.Interaction
	}
	if hs, ok := cat.Hotspot(st.HotspotID); ok {
		return hs.Interaction
	}
	return nil
}

func (s *sessionServiceImpl) DebugAddStars(ctx context.Context, playerID string, n int) (engine.Result, error) {
	var res engine.Result
	err := s.withSession(ctx, playerID, func(eng *engine.Engine) error {
		var err error
		res, err = eng.DebugAddStars(n)
		return err
	})
	return res, err
}

func (s *sessionServiceImpl) DebugUnlockItem(ctx context.Context, playerID, itemID string) (*models.ProgressionState, error) {
	var state *models.ProgressionState
	err := s.withSession(ctx, playerID, func(eng *engine.Engine) error {
		if err := eng.DebugUnlockItem(itemID); err != nil {
			return err
		}
		state = eng.GetState()
		return nil
	})
	return state, err
}

func (s *sessionServiceImpl) DebugReset(ctx context.Context, playerID string) (engine.Result, error) {
	var res engine.Result
	err := s.withSession(ctx, playerID, func(eng *engine.Engine) error {
		var err error
		res, err = eng.DebugReset(ctx)
		return err
	})
	return res, err
}

// Close останавливает выгрузку, отписывает подписчиков и дописывает
// незавершенные сохранения всех сессий.
func (s *sessionServiceImpl) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var live, evicting []*session
	for _, sess := range s.sessions {
		if sess.evicting {
			evicting = append(evicting, sess)
		} else {
			live = append(live, sess)
		}
	}
	s.sessions = map[string]*session{}
	s.mu.Unlock()

	if s.stopJanitor != nil {
		close(s.stopJanitor)
		<-s.janitorDone
	}

	var errs []error
	for _, sess := range live {
		if err := waitFor(ctx, sess.ready); err != nil {
			errs = append(errs, fmt.Errorf("player %s: %w", sess.playerID, err))
			continue
		}
		if err := s.shutdownSession(ctx, sess); err != nil {
			s.logger.Error("Не удалось сохранить состояние при закрытии",
				zap.String("playerID", sess.playerID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	for _, sess := range evicting {
		if err := waitFor(ctx, sess.done); err != nil {
			errs = append(errs, fmt.Errorf("player %s: %w", sess.playerID, err))
		}
	}
	s.logger.Info("Сессии закрыты", zap.Int("count", len(live)))
	return errors.Join(errs...)
}
