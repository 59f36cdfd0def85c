package sessions

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"FxRollup/internal/domain/models"
	"FxRollup/internal/domain/repository"
	applogger "FxRollup/pkg/logger"
)

// Snapshot is an immutable view of the registry. Evaluation passes take one
// Snapshot and use it throughout so thresholds never mix across edits.
type Snapshot struct {
	version  int64
	sessions []*Session
	byID     map[int64]*Session
}

// NewSnapshot compiles defs into a standalone snapshot.
func NewSnapshot(defs ...models.SessionDefinition) (*Snapshot, error) {
	compiled := make([]*Session, 0, len(defs))
	for i, d := range defs {
		if d.Seq == 0 {
			d.Seq = int64(i + 1)
		}
		s, err := Compile(d)
		if err != nil {
			return nil, fmt.Errorf("session %d %q: %w", d.ID, d.Name, err)
		}
		compiled = append(compiled, s)
	}
	return newSnapshot(1, compiled), nil
}

func newSnapshot(version int64, sessions []*Session) *Snapshot {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i].Definition, sessions[j].Definition
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.ID < b.ID
	})
	byID := make(map[int64]*Session, len(sessions))
	for _, s := range sessions {
		byID[s.ID()] = s
	}
	return &Snapshot{version: version, sessions: sessions, byID: byID}
}

func (s *Snapshot) Version() int64 { return s.version }

// ListActive returns enabled sessions whose scope covers symbol, in
// insertion order with ties broken by id.
func (s *Snapshot) ListActive(symbol string) []*Session {
	var out []*Session
	for _, sess := range s.sessions {
		if sess.AppliesTo(symbol) {
			out = append(out, sess)
		}
	}
	return out
}

// ByID returns the session with id, enabled or not.
func (s *Snapshot) ByID(id int64) (*Session, bool) {
	sess, ok := s.byID[id]
	return sess, ok
}

// ByName returns the active sessions named name that cover symbol.
func (s *Snapshot) ByName(symbol, name string) []*Session {
	var out []*Session
	for _, sess := range s.ListActive(symbol) {
		if sess.Name() == name {
			out = append(out, sess)
		}
	}
	return out
}

// All returns every definition, enabled or not.
func (s *Snapshot) All() []models.SessionDefinition {
	out := make([]models.SessionDefinition, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Definition)
	}
	return out
}

// Registry owns session definitions. Writes are serialized; reads are a
// single atomic load and never wait on writers.
type Registry struct {
	mu      sync.Mutex
	snap    atomic.Pointer[Snapshot]
	store   repository.SessionStore
	l       *applogger.Logger
	nextID  int64
	nextSeq int64
}

// NewRegistry creates an empty registry. store may be nil.
func NewRegistry(store repository.SessionStore, l *applogger.Logger) *Registry {
	r := &Registry{store: store, l: l, nextID: 1, nextSeq: 1}
	r.snap.Store(newSnapshot(0, nil))
	return r
}

// Snapshot returns the current immutable view.
func (r *Registry) Snapshot() *Snapshot { return r.snap.Load() }

// ListActive is shorthand for Snapshot().ListActive.
func (r *Registry) ListActive(symbol string) []*Session {
	return r.Snapshot().ListActive(symbol)
}

// Load merges persisted definitions with config seeds. Persisted rows win
// over seeds with the same id or (scope, name). Seeds not yet persisted are
// saved. An invalid definition is logged and skipped.
func (r *Registry) Load(ctx context.Context, seeds []models.SessionDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var persisted []models.SessionDefinition
	if r.store != nil {
		var err error
		if persisted, err = r.store.LoadAll(ctx); err != nil {
			return fmt.Errorf("load sessions: %w", err)
		}
	}

	type identity struct{ scope, name string }
	byID := make(map[int64]bool, len(persisted))
	byIdentity := make(map[identity]bool, len(persisted))
	for _, d := range persisted {
		byID[d.ID] = true
		byIdentity[identity{d.SymbolScope, d.Name}] = true
		r.bump(d)
	}

	defs := append([]models.SessionDefinition(nil), persisted...)
	for _, seed := range seeds {
		if (seed.ID != 0 && byID[seed.ID]) || (seed.ID == 0 && byIdentity[identity{seed.SymbolScope, seed.Name}]) {
			continue
		}
		if seed.ID == 0 {
			seed.ID = r.nextID
		}
		seed.Seq = r.nextSeq
		r.bump(seed)
		if r.store != nil {
			if err := r.store.Save(ctx, seed); err != nil {
				return fmt.Errorf("save seed session %q: %w", seed.Name, err)
			}
		}
		defs = append(defs, seed)
	}

	compiled := make([]*Session, 0, len(defs))
	for _, d := range defs {
		s, err := Compile(d)
		if err != nil {
			if r.l != nil {
				r.l.Error("session definition rejected",
					applogger.Int64("id", d.ID),
					applogger.String("name", d.Name),
					applogger.String("tz", d.Timezone),
					applogger.Error(err))
			}
			continue
		}
		compiled = append(compiled, s)
	}
	r.publish(compiled)
	if r.l != nil {
		r.l.Info("session registry loaded", applogger.Int("definitions", len(compiled)))
	}
	return nil
}

// Upsert validates and stores def. ID 0 creates a new definition.
// Changes apply to evaluations that start after Upsert returns.
func (r *Registry) Upsert(ctx context.Context, def models.SessionDefinition) (models.SessionDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upsertLocked(ctx, def)
}

// Disable stops a definition from matching. Materialised history is kept.
func (r *Registry) Disable(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.snap.Load().ByID(id)
	if !ok {
		return fmt.Errorf("disable session %d: %w", id, models.ErrSessionNotFound)
	}
	def := sess.Definition
	def.Enabled = false
	_, err := r.upsertLocked(ctx, def)
	return err
}

// upsertLocked requires r.mu.
func (r *Registry) upsertLocked(ctx context.Context, def models.SessionDefinition) (models.SessionDefinition, error) {
	cur := r.snap.Load()
	if def.ID == 0 {
		def.ID = r.nextID
	}
	if existing, ok := cur.ByID(def.ID); ok {
		def.Seq = existing.Definition.Seq
	} else {
		def.Seq = r.nextSeq
	}

	s, err := Compile(def)
	if err != nil {
		return models.SessionDefinition{}, err
	}
	if r.store != nil {
		if err := r.store.Save(ctx, def); err != nil {
			return models.SessionDefinition{}, fmt.Errorf("save session %d: %w", def.ID, err)
		}
	}
	r.bump(def)

	next := make([]*Session, 0, len(cur.sessions)+1)
	for _, sess := range cur.sessions {
		if sess.ID() != def.ID {
			next = append(next, sess)
		}
	}
	next = append(next, s)
	r.publish(next)
	return def, nil
}

func (r *Registry) bump(d models.SessionDefinition) {
	if d.ID >= r.nextID {
		r.nextID = d.ID + 1
	}
	if d.Seq >= r.nextSeq {
		r.nextSeq = d.Seq + 1
	}
}

func (r *Registry) publish(sessions []*Session) {
	r.snap.Store(newSnapshot(r.snap.Load().version+1, sessions))
}
