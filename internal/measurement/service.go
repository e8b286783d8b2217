package measurement

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paulwilltell/carbonplane/internal/allocation"
	"github.com/paulwilltell/carbonplane/internal/calc"
	"github.com/paulwilltell/carbonplane/internal/core"
	"github.com/paulwilltell/carbonplane/internal/events"
	"github.com/paulwilltell/carbonplane/internal/flowchart"
	"github.com/paulwilltell/carbonplane/internal/observability"
)

// Input is one of the four ingestion variants: a manual
// reading, a row out of a CSV upload, a polled API payload, or an IOT
// device push. All four share the same shape once parsed to a field map;
// what differs is which Variant they're tagged with and therefore which
// scope InputType they're legal against.
type Input struct {
	Variant       Variant
	Date          string
	Time          string
	DataValues    map[string]float64
	SourceDetails string
}

// Locker is an optional distributed mutual-exclusion provider, letting
// multiple worker replicas serialise Ingest calls against the same stream
// the way the in-process sync.Mutex map below does for a single replica.
// See internal/measurement/redis_lock.go (build tag measurement_redis) for
// the Redis-backed implementation.
type Locker interface {
	// Lock blocks until key is acquired or ctx is done, and returns a
	// function the caller must call to release it.
	Lock(ctx context.Context, key string) (unlock func(context.Context), err error)
}

// Config wires the ingestion service's collaborators.
type Config struct {
	Repository  Repository
	Flowchart   FlowchartLookup
	Calculator  *calc.Engine
	Invalidator Invalidator // summary materialiser; nil is allowed (tests)
	Bus         events.Bus  // change-notification bus; nil is allowed
	Timezone    *time.Location
	Logger      *slog.Logger
	Metrics     *observability.Metrics // prometheus instruments; nil disables recording
	Locker      Locker                 // nil falls back to the in-process per-stream mutex
}

// Service is the ingestion pipeline's single public operation surface:
// Ingest for one reading, IngestBatch for a manual batch or parsed
// CSV rows, both running under the per-stream serialised critical section
// that preserves the prefix-sum invariant.
type Service struct {
	repo   Repository
	fc     FlowchartLookup
	calc   *calc.Engine
	inval  Invalidator
	bus    events.Bus
	loc    *time.Location
	logger  *slog.Logger
	metrics *observability.Metrics
	locker  Locker

	locksMu sync.Mutex
	locks   map[Key]*sync.Mutex
}

func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Timezone
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:    cfg.Repository,
		fc:      cfg.Flowchart,
		calc:    cfg.Calculator,
		inval:   cfg.Invalidator,
		bus:     cfg.Bus,
		loc:     loc,
		logger:  logger,
		metrics: cfg.Metrics,
		locker:  cfg.Locker,
		locks:   make(map[Key]*sync.Mutex),
	}
}

func (s *Service) lockFor(key Key) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// lockStream enters the stream's serialised critical section, through the
// distributed locker when one is configured and the in-process mutex map
// otherwise.
func (s *Service) lockStream(ctx context.Context, key Key) (func(), error) {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, key.String())
		if err != nil {
			return nil, fmt.Errorf("measurement: acquire distributed lock: %w", err)
		}
		return func() { unlock(ctx) }, nil
	}
	lock := s.lockFor(key)
	lock.Lock()
	return lock.Unlock, nil
}

// Ingest runs the full ingestion pipeline for a single reading and returns the
// persisted entry. A calculation failure (factor unresolved, formula
// error) still returns the persisted entry with ProcessingStatus=failed
// and a non-nil error classified KindPrerequisite/KindValidation; the
// entry itself was saved, only the calculation step failed.
func (s *Service) Ingest(ctx context.Context, clientID, nodeID, scopeIdentifier string, in Input) (result Entry, resultErr error) {
	if s.metrics != nil {
		stop := s.metrics.ObserveIngestion(string(in.Variant))
		defer func() { stop(resultErr) }()
	}

	if err := core.CheckClientAccess(ctx, clientID); err != nil {
		return Entry{}, err
	}

	key := Key{ClientID: clientID, NodeID: nodeID, ScopeIdentifier: scopeIdentifier}

	scope, found, err := s.fc.Scope(ctx, clientID, nodeID, scopeIdentifier)
	if err != nil {
		return Entry{}, err
	}
	if !found {
		return Entry{}, core.NewError(core.KindPrerequisite,
			fmt.Sprintf("scope %q not found on node %q", scopeIdentifier, nodeID), core.ErrNotFound)
	}
	if !in.Variant.matchesInputType(scope.InputType) {
		return Entry{}, core.NewError(core.KindValidation,
			fmt.Sprintf("variant %q does not match scope inputType %q", in.Variant, scope.InputType),
			core.ErrScopeMismatch)
	}

	ts, err := ParseTimestamp(in.Date, in.Time, s.loc, time.Now())
	if err != nil {
		return Entry{}, core.NewError(core.KindValidation, "parse timestamp", err)
	}

	entry := Entry{
		ID:                   uuid.NewString(),
		ClientID:             clientID,
		NodeID:               nodeID,
		ScopeIdentifier:      scopeIdentifier,
		ScopeType:            string(scope.ScopeType),
		InputType:            scope.InputType,
		Variant:              in.Variant,
		Date:                 in.Date,
		Time:                 in.Time,
		Timestamp:            ts,
		DataValues:           Normalize(scope, in.DataValues),
		EmissionFactorSource: string(scope.FactorSource),
		SourceDetails:        in.SourceDetails,
		IsEditable:           scope.InputType == flowchart.InputManual,
		ProcessingStatus:     StatusPending,
		CreatedAt:            time.Now().UTC(),
	}

	unlock, err := s.lockStream(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	defer unlock()

	stream, err := s.repo.Stream(ctx, key)
	if err != nil {
		return Entry{}, fmt.Errorf("measurement: load stream: %w", err)
	}

	stream = insertSorted(stream, entry)

	idx := indexOf(stream, entry.ID)
	calcErr := s.calculate(scope, &stream[idx], ts)
	RecomputeAggregates(stream)

	if err := s.repo.ReplaceStream(ctx, key, stream); err != nil {
		return Entry{}, fmt.Errorf("measurement: persist stream: %w", err)
	}

	saved := stream[idx]

	if claims, cErr := s.fc.Claims(ctx, clientID, scopeIdentifier); cErr == nil && calcErr == nil {
		raw := calc.Result{
			CO2: saved.CalculatedEmissions.Incoming.CO2, CH4: saved.CalculatedEmissions.Incoming.CH4,
			N2O: saved.CalculatedEmissions.Incoming.N2O, CO2e: saved.CalculatedEmissions.Incoming.CO2e,
		}
		allocClaims := make([]allocation.Claim, 0, len(claims))
		for _, c := range claims {
			allocClaims = append(allocClaims, allocation.Claim{NodeID: c.NodeID, Pct: c.Pct})
		}
		if len(allocClaims) > 0 {
			_, warnings := allocation.Allocate(scopeIdentifier, raw, allocClaims)
			for _, w := range warnings {
				s.logger.Warn("allocation warning", "scope", w.ScopeIdentifier, "message", w.Message)
			}
		}
	}

	if s.inval != nil {
		if err := s.inval.Invalidate(ctx, clientID, nodeID, scopeIdentifier, ts.UnixNano()); err != nil {
			s.logger.Warn("summary invalidation failed", "error", err)
		}
	}

	s.publish(ctx, clientID, eventTypeFor(in.Variant), saved)

	return saved, calcErr
}

// IngestBatch ingests multiple readings for the same stream. Entries are
// applied in ascending timestamp order;
// duplicate (date,time) pairs within the batch are rejected as a group but
// do not fail the rest of the batch.
func (s *Service) IngestBatch(ctx context.Context, clientID, nodeID, scopeIdentifier string, inputs []Input) BatchReport {
	type indexed struct {
		row int
		in  Input
		ts  time.Time
	}

	var report BatchReport
	ordered := make([]indexed, 0, len(inputs))
	seen := make(map[string]int) // "date|time" -> first row index

	for i, in := range inputs {
		ts, err := ParseTimestamp(in.Date, in.Time, s.loc, time.Now())
		if err != nil {
			report.Errors = append(report.Errors, RowError{Row: i + 1, Message: err.Error()})
			continue
		}
		dk := in.Date + "|" + in.Time
		if first, dup := seen[dk]; dup {
			report.Errors = append(report.Errors, RowError{Row: i + 1,
				Message: fmt.Sprintf("duplicate (date,time) also present at row %d", first+1)})
			continue
		}
		seen[dk] = i
		ordered = append(ordered, indexed{row: i, in: in, ts: ts})
	}

	sort.Slice(ordered, func(a, b int) bool { return ordered[a].ts.Before(ordered[b].ts) })

	for _, item := range ordered {
		entry, err := s.Ingest(ctx, clientID, nodeID, scopeIdentifier, item.in)
		if err != nil && entry.ID == "" {
			report.Errors = append(report.Errors, RowError{Row: item.row + 1, Message: err.Error()})
			continue
		}
		report.Accepted = append(report.Accepted, entry)
	}

	return report
}

// EditEntry replaces an editable entry's data values, re-runs the
// calculation, and recomputes the stream's running aggregates so every
// downstream cumulative/high/low reflects the new reading. Only manual
// entries are editable; API and IOT entries are sealed once processed.
func (s *Service) EditEntry(ctx context.Context, clientID, nodeID, scopeIdentifier, entryID string, dataValues map[string]float64) (Entry, error) {
	if err := core.CheckClientAccess(ctx, clientID); err != nil {
		return Entry{}, err
	}

	key := Key{ClientID: clientID, NodeID: nodeID, ScopeIdentifier: scopeIdentifier}

	scope, found, err := s.fc.Scope(ctx, clientID, nodeID, scopeIdentifier)
	if err != nil {
		return Entry{}, err
	}
	if !found {
		return Entry{}, core.NewError(core.KindPrerequisite,
			fmt.Sprintf("scope %q not found on node %q", scopeIdentifier, nodeID), core.ErrNotFound)
	}

	unlock, err := s.lockStream(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	defer unlock()

	stream, err := s.repo.Stream(ctx, key)
	if err != nil {
		return Entry{}, fmt.Errorf("measurement: load stream: %w", err)
	}
	idx := indexOf(stream, entryID)
	if idx < 0 {
		return Entry{}, core.NewError(core.KindValidation,
			fmt.Sprintf("entry %q not found in stream", entryID), core.ErrNotFound)
	}
	if !stream[idx].IsEditable {
		return Entry{}, core.NewError(core.KindValidation,
			fmt.Sprintf("entry %q is sealed", entryID), core.ErrEntrySealed)
	}

	stream[idx].DataValues = Normalize(scope, dataValues)
	calcErr := s.calculate(scope, &stream[idx], stream[idx].Timestamp)
	RecomputeAggregates(stream)

	if err := s.repo.ReplaceStream(ctx, key, stream); err != nil {
		return Entry{}, fmt.Errorf("measurement: persist stream: %w", err)
	}
	saved := stream[idx]

	if s.inval != nil {
		if err := s.inval.Invalidate(ctx, clientID, nodeID, scopeIdentifier, saved.Timestamp.UnixNano()); err != nil {
			s.logger.Warn("summary invalidation failed", "error", err)
		}
	}
	s.publish(ctx, clientID, events.EventManualDataEdited, saved)

	return saved, calcErr
}

// DeleteEntry removes an editable entry from its stream and recomputes the
// remaining entries' running aggregates. Sealed (API/IOT) entries cannot
// be deleted.
func (s *Service) DeleteEntry(ctx context.Context, clientID, nodeID, scopeIdentifier, entryID string) (Entry, error) {
	if err := core.CheckClientAccess(ctx, clientID); err != nil {
		return Entry{}, err
	}

	key := Key{ClientID: clientID, NodeID: nodeID, ScopeIdentifier: scopeIdentifier}

	unlock, err := s.lockStream(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	defer unlock()

	stream, err := s.repo.Stream(ctx, key)
	if err != nil {
		return Entry{}, fmt.Errorf("measurement: load stream: %w", err)
	}
	idx := indexOf(stream, entryID)
	if idx < 0 {
		return Entry{}, core.NewError(core.KindValidation,
			fmt.Sprintf("entry %q not found in stream", entryID), core.ErrNotFound)
	}
	if !stream[idx].IsEditable {
		return Entry{}, core.NewError(core.KindValidation,
			fmt.Sprintf("entry %q is sealed", entryID), core.ErrEntrySealed)
	}

	removed := stream[idx]
	stream = append(stream[:idx], stream[idx+1:]...)
	RecomputeAggregates(stream)

	if err := s.repo.ReplaceStream(ctx, key, stream); err != nil {
		return Entry{}, fmt.Errorf("measurement: persist stream: %w", err)
	}

	if s.inval != nil {
		if err := s.inval.Invalidate(ctx, clientID, nodeID, scopeIdentifier, removed.Timestamp.UnixNano()); err != nil {
			s.logger.Warn("summary invalidation failed", "error", err)
		}
	}
	s.publish(ctx, clientID, events.EventManualDataDeleted, removed)

	return removed, nil
}

func (s *Service) calculate(scope flowchart.ScopeDescriptor, entry *Entry, t time.Time) error {
	result, err := s.calc.Calculate(scope, calc.DataValues(entry.DataValues), t)
	if err != nil {
		entry.ProcessingStatus = StatusFailed
		entry.FailureReason = err.Error()
		return err
	}
	entry.CalculatedEmissions.Incoming = GasVector{CO2: result.CO2, CH4: result.CH4, N2O: result.N2O, CO2e: result.CO2e}
	entry.CalculatedEmissions.UncertaintyPct = result.UncertaintyPct
	entry.CalculatedEmissions.CalculatedAt = time.Now().UTC()
	entry.ProcessingStatus = StatusProcessed
	return nil
}

func (s *Service) publish(ctx context.Context, clientID, eventType string, entry Entry) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(ctx, events.NewEvent(eventType, entry).WithSource("measurement"))
	if s.metrics != nil {
		s.metrics.RecordEventPublished(eventType)
	}
}

func eventTypeFor(v Variant) string {
	switch v {
	case VariantManual:
		return events.EventManualDataSaved
	case VariantCSV:
		return events.EventCSVDataUploaded
	case VariantAPIPoll:
		return events.EventAPIDataSaved
	case VariantIOT:
		return events.EventIOTDataSaved
	default:
		return events.EventManualDataSaved
	}
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

// RecomputeAggregates rebuilds the prefix-sum running aggregates across the whole stream in timestamp order. This is the
// recomputation required whenever an entry arrives out of
// order: every entry's cumulative/high/low/last reflects only entries at
// or before it in timestamp order, never insertion order. Exported so the
// monthly archival job can apply it after collapsing a month's raw
// entries into one summary row.
func RecomputeAggregates(stream []Entry) {
	cumValues := make(map[string]float64)
	high := make(map[string]float64)
	low := make(map[string]float64)
	haveLow := make(map[string]bool)
	var cumEmissions GasVector

	for i := range stream {
		e := &stream[i]
		fieldCum := make(map[string]float64, len(cumValues)+len(e.DataValues))
		for k, v := range cumValues {
			fieldCum[k] = v
		}
		for f, v := range e.DataValues {
			fieldCum[f] = fieldCum[f] + v
			if v > high[f] {
				high[f] = v
			}
			if !haveLow[f] || v < low[f] {
				low[f] = v
				haveLow[f] = true
			}
		}
		cumValues = fieldCum

		e.CumulativeValues = cloneMap(cumValues)
		e.HighData = cloneMap(high)
		e.LowData = cloneMap(low)
		e.LastEnteredData = cloneMap(e.DataValues)

		if e.ProcessingStatus == StatusProcessed {
			cumEmissions = cumEmissions.add(e.CalculatedEmissions.Incoming)
		}
		e.CalculatedEmissions.Cumulative = cumEmissions
	}
}

func cloneMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
