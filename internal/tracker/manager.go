package tracker

import (
	"sync"
	"time"

	"toolwatch/internal/catalog"
	"toolwatch/internal/model"
	"toolwatch/pkg/uid"

	"go.uber.org/zap"
)

// Config holds the timing and policy knobs of the tracker.
type Config struct {
	SettleWindow    time.Duration
	RetentionWindow time.Duration
	LookbackDelay   time.Duration
	// MaxItemsPerBin caps how many events one closed episode may emit.
	// 1 means every bin holds a single tool.
	MaxItemsPerBin int
	UnseenWindow   time.Duration
}

// DefaultConfig returns the workbench timing: 1s settle, 2s retention and lookback.
func DefaultConfig() Config {
	return Config{
		SettleWindow:    DefaultSettleWindow,
		RetentionWindow: DefaultRetentionWindow,
		LookbackDelay:   DefaultLookbackDelay,
		MaxItemsPerBin:  1,
		UnseenWindow:    DefaultUnseenWindow,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SettleWindow <= 0 {
		c.SettleWindow = d.SettleWindow
	}
	if c.RetentionWindow <= 0 {
		c.RetentionWindow = d.RetentionWindow
	}
	if c.LookbackDelay <= 0 {
		c.LookbackDelay = d.LookbackDelay
	}
	if c.MaxItemsPerBin < 1 {
		c.MaxItemsPerBin = d.MaxItemsPerBin
	}
	if c.UnseenWindow <= 0 {
		c.UnseenWindow = d.UnseenWindow
	}
	return c
}

// EventSink receives every recorded event after the critical section is
// released. Publish must not block.
type EventSink interface {
	Publish(ev model.Event)
}

// Observer is notified of state machine activity, typically for metrics.
type Observer interface {
	Transition(to Phase)
	Episode(outcome Outcome)
	Event(kind model.EventKind)
}

type nopObserver struct{}

func (nopObserver) Transition(Phase)      {}
func (nopObserver) Episode(Outcome)       {}
func (nopObserver) Event(model.EventKind) {}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source used for ticks without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSinks registers event sinks.
func WithSinks(sinks ...EventSink) Option {
	return func(m *Manager) { m.sinks = append(m.sinks, sinks...) }
}

// WithObserver sets the activity observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithIDGenerator overrides event id generation.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// Manager owns the drawer state, the snapshot buffer, the ledger, the
// checked-out index and the inventory projection. Every mutation goes
// through Observe under a single lock; queries return copies.
type Manager struct {
	cfg      Config
	catalog  *catalog.Catalog
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
	sinks    []EventSink
	observer Observer

	mu          sync.RWMutex
	state       DrawerState
	buffer      *RingBuffer
	ledger      *Ledger
	detector    *Detector
	currentUser *model.User
	lastTick    time.Time
	watching    bool
}

// NewManager creates a Manager in the Closed state.
func NewManager(cat *catalog.Catalog, cfg Config, logger *zap.Logger, opts ...Option) *Manager {
	if cat == nil {
		cat = catalog.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	m := &Manager{
		cfg:      cfg,
		catalog:  cat,
		logger:   logger.Named("tracker"),
		now:      time.Now,
		newID:    uid.New,
		observer: nopObserver{},
		state:    Closed{},
		buffer:   NewRingBuffer(cfg.RetentionWindow),
		ledger:   NewLedger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.detector = NewDetector(cat, cfg.LookbackDelay, cfg.MaxItemsPerBin, m.newID)
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Observe applies one producer tick and returns the events it recorded.
//
// Within a tick the identity reading is applied first, then the drawer
// reading, then the tool reading. An identity seen on a tick that opens a
// drawer is applied again so it is attributed to the new episode. Tool
// readings that arrive while no drawer is open are discarded.
func (m *Manager) Observe(t model.Tick) []model.Event {
	now := t.At
	if now.IsZero() {
		now = m.now()
	}

	user, hasUser := m.catalog.ResolveUser(t.User)

	m.mu.Lock()
	m.lastTick = now

	if hasUser {
		m.setUserLocked(user)
	}

	var emitted []model.Event
	if t.Drawer != nil {
		emitted = m.applyDrawerLocked(t.Drawer.Identifier, t.FrameRef, now)
		if hasUser {
			m.setUserLocked(user)
		}
	}

	if t.Tools != nil {
		m.applyToolsLocked(NewToolSet(t.Tools...), t.FrameRef, now)
	}
	m.mu.Unlock()

	for _, ev := range emitted {
		for _, s := range m.sinks {
			s.Publish(ev)
		}
	}
	return emitted
}

func (m *Manager) setUserLocked(u model.User) {
	cur := u
	m.currentUser = &cur
	if open, ok := m.state.(*Open); ok {
		last := u
		open.LastUser = &last
	}
}

func (m *Manager) applyDrawerLocked(drawer, frameRef string, now time.Time) []model.Event {
	switch st := m.state.(type) {
	case Closed:
		if drawer == "" {
			m.logger.Debug("no drawer open, ignoring close")
			return nil
		}
		m.openLocked(drawer, now)
		return nil

	case *Open:
		if drawer == "" {
			return m.closeLocked(st, frameRef, now)
		}
		if drawer == st.Drawer {
			m.logger.Info("drawer already open", zap.String("drawer", drawer))
			return nil
		}
		m.logger.Info("drawer switched without closing",
			zap.String("from", st.Drawer),
			zap.String("to", drawer),
		)
		events := m.closeLocked(st, frameRef, now)
		m.openLocked(drawer, now)
		return events

	default:
		m.logger.Error("unknown drawer state, resetting", zap.Any("state", st))
		m.state = Closed{}
		m.buffer.Reset()
		return nil
	}
}

func (m *Manager) openLocked(drawer string, now time.Time) {
	m.buffer.Reset()
	m.watching = false
	m.state = &Open{Drawer: drawer, OpenedAt: now}
	m.observer.Transition(PhaseSettling)
	m.logger.Info("drawer opened",
		zap.String("drawer", drawer),
		zap.Duration("settle", m.cfg.SettleWindow),
	)
}

func (m *Manager) closeLocked(open *Open, frameRef string, now time.Time) []model.Event {
	det := m.detector.Detect(open, m.buffer, now, frameRef)

	for _, ev := range det.Events {
		m.ledger.Append(ev, det.ToolClass)
		m.observer.Event(ev.Kind)
	}

	m.state = Closed{}
	m.buffer.Reset()
	m.observer.Episode(det.Outcome)
	m.observer.Transition(PhaseClosed)

	fields := []zap.Field{
		zap.String("drawer", det.Drawer),
		zap.String("outcome", string(det.Outcome)),
		zap.Strings("removed", det.Removed),
		zap.Strings("added", det.Added),
		zap.String("lookback", string(det.Source)),
		zap.Duration("episode", now.Sub(open.OpenedAt)),
	}
	switch det.Outcome {
	case OutcomeCheckout, OutcomeCheckin:
		m.logger.Info("drawer closed, event recorded",
			append(fields,
				zap.String("tool_class", det.ToolClass),
				zap.String("user_id", open.LastUser.ID),
				zap.Int("events", len(det.Events)),
			)...)
	case OutcomeNoUser:
		m.logger.Warn("drawer closed, change dropped without identified user", fields...)
	default:
		m.logger.Info("drawer closed", fields...)
	}

	if len(det.Events) == 0 {
		return nil
	}
	out := make([]model.Event, len(det.Events))
	copy(out, det.Events)
	return out
}

func (m *Manager) applyToolsLocked(tools ToolSet, frameRef string, now time.Time) {
	open, ok := m.state.(*Open)
	if !ok {
		m.logger.Debug("discarding tool reading, no drawer open", zap.Int("tools", tools.Len()))
		return
	}

	switch open.Phase(now, m.cfg.SettleWindow) {
	case PhaseSettling:
		open.Initial = tools
	case PhaseWatching:
		if !m.watching {
			m.watching = true
			m.observer.Transition(PhaseWatching)
		}
		open.Latest = tools
		m.buffer.Record(tools, frameRef, now)
	}
}

// State returns a copy of the drawer state as of the last tick.
func (m *Manager) State() StateView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.lastTick
	if now.IsZero() {
		now = m.now()
	}
	v := viewOf(m.state, now, m.cfg.SettleWindow)
	v.BufferedSnapshots = m.buffer.Len()
	if m.currentUser != nil {
		u := *m.currentUser
		v.CurrentUser = &u
	}
	return v
}

// CurrentUser returns the most recently identified user, if any.
func (m *Manager) CurrentUser() (model.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.currentUser == nil {
		return model.User{}, false
	}
	return *m.currentUser, true
}

// Snapshots returns a copy of the ring buffer contents.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buffer.Snapshots()
}

// Events returns recorded events newest first, limited when limit > 0.
func (m *Manager) Events(limit int) []model.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.Events(limit)
}

// Event returns one event or ErrEventNotFound.
func (m *Manager) Event(id string) (model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.Event(id)
}

// Checkouts returns the checked-out index.
func (m *Manager) Checkouts() []model.Checkout {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.Checkouts()
}

// Projection returns tool class -> drawer -> count.
func (m *Manager) Projection() map[string]map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.Projection()
}

// Overview returns the dashboard aggregate.
func (m *Manager) Overview() model.Overview {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.Overview(m.catalog.ToolIDs(), now, m.cfg.UnseenWindow)
}
