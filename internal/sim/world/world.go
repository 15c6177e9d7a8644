package world

import (
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mechpower.ai/internal/metrics"
	"mechpower.ai/internal/observerproto"
	"mechpower.ai/internal/persistence/snapshot"
	"mechpower.ai/internal/sim/power/geom"
	"mechpower.ai/internal/sim/power/node"
	"mechpower.ai/internal/sim/power/rotnet"
)

var (
	ErrOccupied     = errors.New("world: position occupied")
	ErrUnknownBlock = errors.New("world: no block at position")
	ErrRejected     = errors.New("world: rotation conflicts with neighbours")
	ErrNotEmpty     = errors.New("world: import into a populated world")
)

// AuditEntry is one topology or block event. The same shape is written to the
// audit log, indexed and streamed to observers.
type AuditEntry = observerproto.AuditEntry

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// StatsEntry is a periodic sample of the power networks.
type StatsEntry struct {
	Tick           uint64                       `json:"tick"`
	Nodes          int                          `json:"nodes"`
	Networks       int                          `json:"networks"`
	ActiveNetworks int                          `json:"active_networks"`
	States         []observerproto.NetworkState `json:"states"`
}

type StatsSink interface {
	WriteStats(entry StatsEntry) error
}

// block is the owner of one power node. An invalid block has been detached
// from the graph by a failed reconfigure and waits for its re-check.
type block struct {
	n         *node.Node
	invalid   bool
	recheckAt uint64
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg   WorldConfig
	log   *zap.Logger
	runID string

	tick atomic.Uint64

	power   *rotnet.Manager
	blocks  map[geom.Key]*block
	pending map[geom.Key]struct{}

	counters snapshot.CountersV1

	inbox         chan Command
	observerJoin  chan ObserverJoinRequest
	observerLeave chan string
	admin         chan adminSnapshotReq
	stop          chan struct{}

	observers map[string]*observerClient
	audits    []AuditEntry

	// Optional sinks (may be nil). Implemented in internal/persistence/*.
	auditLogger  AuditLogger
	statsSink    StatsSink
	snapshotSink chan<- snapshot.SnapshotV1
	metrics      *metrics.Registry

	status atomic.Pointer[Status]
	states atomic.Pointer[[]observerproto.NetworkState]
}

func New(cfg WorldConfig, logger *zap.Logger) *World {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &World{
		cfg:           cfg,
		log:           logger.Named("world").With(zap.String("world_id", cfg.ID)),
		runID:         uuid.NewString(),
		blocks:        map[geom.Key]*block{},
		pending:       map[geom.Key]struct{}{},
		inbox:         make(chan Command, 1024),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerLeave: make(chan string, 16),
		admin:         make(chan adminSnapshotReq, 4),
		stop:          make(chan struct{}),
		observers:     map[string]*observerClient{},
	}
	w.power = rotnet.New(cfg.Rotation, topology{w})
	w.publishStatus(0, 0)
	w.publishStates()
	return w
}

func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetStatsSink(s StatsSink)                      { w.statsSink = s }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }
func (w *World) SetMetrics(m *metrics.Registry)                { w.metrics = m }

func (w *World) Inbox() chan<- Command                    { return w.inbox }
func (w *World) ObserverJoin() chan<- ObserverJoinRequest { return w.observerJoin }
func (w *World) ObserverLeave() chan<- string             { return w.observerLeave }

func (w *World) ID() string          { return w.cfg.ID }
func (w *World) RunID() string       { return w.runID }
func (w *World) Config() WorldConfig { return w.cfg }
func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// Power exposes the rotation manager for tests and replays.
func (w *World) Power() *rotnet.Manager { return w.power }

// Digest is the partition digest of the power graph.
func (w *World) Digest() uint64 { return w.power.Graph().Digest() }
