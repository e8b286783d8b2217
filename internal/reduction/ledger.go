package reduction

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paulwilltell/carbonplane/internal/core"
	"github.com/paulwilltell/carbonplane/internal/events"
)

// ErrInvalidRecord is wrapped by a ClassifiedError whenever Record's input
// does not satisfy its methodology's required fields.
var ErrInvalidRecord = fmt.Errorf("reduction: invalid record")

// Record is the caller-supplied data for a new ledger entry; which fields
// are required depends on Methodology:
//   - M1 requires InputValue and EmissionReductionRate; NetReduction is derived.
//   - M2 requires NetReduction directly.
//   - M3 requires NetReduction and Breakdown.
type Record struct {
	ProjectID             string
	Methodology           Methodology
	Mechanism             Mechanism
	Category              string
	ScopeIdentifier       string
	Location              string
	Activity              string
	InputValue            float64
	EmissionReductionRate float64
	NetReduction          float64
	HighNetReduction      float64
	LowNetReduction       float64
	Breakdown             *Breakdown
	Timestamp             time.Time
	Source                string
}

// Config wires the ledger's collaborators.
type Config struct {
	Repository  Repository
	Invalidator Invalidator
	Bus         events.Bus
	Logger      *slog.Logger
}

// Ledger is the offset/reduction ledger's single public operation surface:
// Record for one entry, running under the same per-stream
// serialised critical section internal/measurement.Service uses, so a
// stream's cumulative/high/low net reduction is never computed from a
// partially-written set of entries.
type Ledger struct {
	repo   Repository
	inval  Invalidator
	bus    events.Bus
	logger *slog.Logger

	locksMu sync.Mutex
	locks   map[Key]*sync.Mutex
}

func NewLedger(cfg Config) *Ledger {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		repo:   cfg.Repository,
		inval:  cfg.Invalidator,
		bus:    cfg.Bus,
		logger: logger,
		locks:  make(map[Key]*sync.Mutex),
	}
}

func (l *Ledger) lockFor(key Key) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

// Record appends a new reduction entry to the (clientId, projectId,
// methodology) stream, deriving NetReduction for M1 and validating the
// caller supplied it directly for M2/M3.
func (l *Ledger) Record(ctx context.Context, clientID string, rec Record) (Entry, error) {
	if err := core.CheckClientAccess(ctx, clientID); err != nil {
		return Entry{}, err
	}
	if rec.ProjectID == "" {
		return Entry{}, core.NewError(core.KindValidation, "projectId is required", ErrInvalidRecord)
	}

	entry := Entry{
		ID:              uuid.NewString(),
		ClientID:        clientID,
		ProjectID:       rec.ProjectID,
		Methodology:     rec.Methodology,
		Mechanism:       rec.Mechanism,
		Category:        rec.Category,
		ScopeIdentifier: rec.ScopeIdentifier,
		Location:        rec.Location,
		Activity:        rec.Activity,
		InputValue:      rec.InputValue,
		Breakdown:       rec.Breakdown,
		Timestamp:       rec.Timestamp,
		Source:          rec.Source,
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Mechanism == "" {
		entry.Mechanism = MechanismReduction
	}

	switch rec.Methodology {
	case M1:
		entry.EmissionReductionRate = rec.EmissionReductionRate
		entry.NetReduction = rec.InputValue * rec.EmissionReductionRate
		entry.HighNetReduction = entry.NetReduction
		entry.LowNetReduction = entry.NetReduction
	case M2:
		if rec.NetReduction == 0 {
			return Entry{}, core.NewError(core.KindValidation, "M2 requires a caller-supplied netReduction", ErrInvalidRecord)
		}
		entry.NetReduction = rec.NetReduction
		entry.HighNetReduction = rec.HighNetReduction
		entry.LowNetReduction = rec.LowNetReduction
	case M3:
		if rec.NetReduction == 0 || rec.Breakdown == nil {
			return Entry{}, core.NewError(core.KindValidation, "M3 requires netReduction and an itemised breakdown", ErrInvalidRecord)
		}
		entry.NetReduction = rec.NetReduction
		entry.HighNetReduction = rec.HighNetReduction
		entry.LowNetReduction = rec.LowNetReduction
	default:
		return Entry{}, core.NewError(core.KindValidation, fmt.Sprintf("unknown methodology %q", rec.Methodology), ErrInvalidRecord)
	}

	key := Key{ClientID: clientID, ProjectID: rec.ProjectID, Methodology: rec.Methodology}

	lock := l.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	stream, err := l.repo.Stream(ctx, key)
	if err != nil {
		return Entry{}, fmt.Errorf("reduction: load stream: %w", err)
	}

	stream = insertSorted(stream, entry)
	idx := indexOf(stream, entry.ID)
	recomputeCumulative(stream)
	saved := stream[idx]

	if err := l.repo.ReplaceStream(ctx, key, stream); err != nil {
		return Entry{}, fmt.Errorf("reduction: persist stream: %w", err)
	}

	if l.inval != nil {
		if err := l.inval.InvalidateReduction(ctx, clientID, saved.Timestamp.UnixNano()); err != nil {
			l.logger.Warn("reduction summary invalidation failed", "error", err)
		}
	}
	if l.bus != nil {
		_ = l.bus.Publish(ctx, events.NewEvent(events.EventReductionEntrySaved, saved).WithSource("reduction"))
	}

	return saved, nil
}

func insertSorted(stream []Entry, e Entry) []Entry {
	idx := sort.Search(len(stream), func(i int) bool { return stream[i].Timestamp.After(e.Timestamp) })
	stream = append(stream, Entry{})
	copy(stream[idx+1:], stream[idx:])
	stream[idx] = e
	return stream
}

func indexOf(stream []Entry, id string) int {
	for i, e := range stream {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// recomputeCumulative rebuilds the running cumulative/high/low net
// reduction across the whole stream in timestamp order, same rationale as
// internal/measurement.RecomputeAggregates: an out-of-order arrival must
// not leave later entries' cumulative totals reflecting insertion order
// instead of timestamp order.
func recomputeCumulative(stream []Entry) {
	var cum, high, low float64
	haveLow := false
	for i := range stream {
		e := &stream[i]
		cum += e.NetReduction
		if e.NetReduction > high {
			high = e.NetReduction
		}
		if !haveLow || e.NetReduction < low {
			low = e.NetReduction
			haveLow = true
		}
		e.CumulativeNetReduction = cum
		e.HighNetReduction = high
		e.LowNetReduction = low
	}
}
