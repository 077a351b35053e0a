// internal/pool/pool.go
package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/askdba/oracle-mcp-server/internal/util"
)

// ErrAcquireTimeout is returned when no healthy slot frees up within the
// acquire timeout.
var ErrAcquireTimeout = errors.New("timed out waiting for a free database session")

// probeSQL is the liveness round-trip used to classify errors and to verify
// repaired sessions.
const probeSQL = "SELECT 1 FROM DUAL"

// Config sizes the pool and bounds its waits.
type Config struct {
	Size           int
	AcquireTimeout time.Duration
	QueryTimeout   time.Duration
}

// Result is the tabular outcome of one statement.
type Result struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Count   int              `json:"count"`
}

// Health is a point-in-time view of slot states.
type Health struct {
	Total      int  `json:"total"`
	Healthy    int  `json:"healthy"`
	Unhealthy  int  `json:"unhealthy"`
	AllHealthy bool `json:"all_healthy"`
}

type slotState int

const (
	stateIdle slotState = iota
	stateBusy
	stateBroken
)

// slot is one dedicated database session. A slot runs at most one statement
// at a time; serialization comes from slots only re-entering the idle queue
// after their current statement finishes.
type slot struct {
	id   int
	conn *sql.Conn

	mu    sync.Mutex
	state slotState
}

func (s *slot) setState(st slotState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *slot) getState() slotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pool owns a fixed set of dedicated sessions on one database. Acquisition
// is FIFO over an idle queue, which round-robins load across slots; a slot
// whose session dies leaves the queue until a background probe loop restores
// it, so a single bad session never blocks the others.
type Pool struct {
	db     *sql.DB
	cfg    Config
	slots  []*slot
	idle   chan *slot
	closed chan struct{}

	wg sync.WaitGroup

	// Logf receives repair-loop progress lines; defaults to a no-op.
	Logf func(format string, args ...any)
}

// New opens cfg.Size dedicated sessions from db. It fails if any session
// cannot be established, so a successfully constructed pool starts with
// every slot healthy.
func New(ctx context.Context, db *sql.DB, cfg Config) (*Pool, error) {
	if cfg.Size <= 0 {
		cfg.Size = 2
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 30 * time.Second
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 5 * time.Second
	}

	p := &Pool{
		db:     db,
		cfg:    cfg,
		slots:  make([]*slot, cfg.Size),
		idle:   make(chan *slot, cfg.Size),
		closed: make(chan struct{}),
		Logf:   func(string, ...any) {},
	}

	for i := 0; i < cfg.Size; i++ {
		conn, err := db.Conn(ctx)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("open session for slot %d: %w", i, err)
		}
		s := &slot{id: i, conn: conn, state: stateIdle}
		p.slots[i] = s
		p.idle <- s
	}
	return p, nil
}

// Run executes one statement on the next free slot and returns its rows.
// The statement runs under the pool's per-statement timeout regardless of
// the caller's context. The returned slot id identifies which session ran
// the statement.
func (p *Pool) Run(ctx context.Context, sqlText string, args ...any) (*Result, int, error) {
	s, err := p.acquire(ctx)
	if err != nil {
		return nil, -1, err
	}

	qctx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()

	res, runErr := query(qctx, s.conn, sqlText, args...)
	if runErr != nil {
		p.release(s, runErr)
		return nil, s.id, runErr
	}
	p.release(s, nil)
	return res, s.id, nil
}

// acquire blocks until a healthy slot is free, the caller's context ends, or
// the acquire timeout fires.
func (p *Pool) acquire(ctx context.Context) (*slot, error) {
	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case s := <-p.idle:
		s.setState(stateBusy)
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrAcquireTimeout
	case <-p.closed:
		return nil, errors.New("pool is closed")
	}
}

// release returns a slot to the idle queue, or parks it as broken when the
// statement error turns out to be a session failure rather than a statement
// failure. Classification is a quick probe on the same session.
func (p *Pool) release(s *slot, runErr error) {
	if runErr != nil && !p.probe(s.conn) {
		s.setState(stateBroken)
		p.wg.Add(1)
		go p.repair(s)
		return
	}
	s.setState(stateIdle)
	p.idle <- s
}

// probe runs the liveness statement with a short deadline.
func (p *Pool) probe(conn *sql.Conn) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var one int
	return conn.QueryRowContext(ctx, probeSQL).Scan(&one) == nil
}

// repair replaces a broken slot's session, retrying with exponential backoff
// until the database answers the probe again or the pool closes.
func (p *Pool) repair(s *slot) {
	defer p.wg.Done()

	s.conn.Close()
	s.conn = nil

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry until the pool closes

	attempt := 0
	op := func() error {
		attempt++
		select {
		case <-p.closed:
			return backoff.Permanent(errors.New("pool closed"))
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		conn, err := p.db.Conn(ctx)
		if err != nil {
			p.Logf("slot %d reconnect attempt %d: %v", s.id, attempt, err)
			return err
		}
		var one int
		if err := conn.QueryRowContext(ctx, probeSQL).Scan(&one); err != nil {
			conn.Close()
			p.Logf("slot %d probe attempt %d: %v", s.id, attempt, err)
			return err
		}
		s.conn = conn
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return
	}

	s.setState(stateIdle)
	p.Logf("slot %d restored after %d attempt(s)", s.id, attempt)
	select {
	case p.idle <- s:
	case <-p.closed:
	}
}

// Health reports slot states for status surfaces.
func (p *Pool) Health() Health {
	h := Health{Total: len(p.slots)}
	for _, s := range p.slots {
		if s.getState() == stateBroken {
			h.Unhealthy++
		} else {
			h.Healthy++
		}
	}
	h.AllHealthy = h.Unhealthy == 0
	return h
}

// Ping runs the liveness statement on the next free slot and returns the
// round-trip time.
func (p *Pool) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	_, _, err := p.Run(ctx, probeSQL)
	return time.Since(start), err
}

// Close stops the pool and closes every session. In-flight repair loops are
// waited for.
func (p *Pool) Close() {
	select {
	case <-p.closed:
		return
	default:
	}
	close(p.closed)
	p.wg.Wait()
	for _, s := range p.slots {
		if s != nil && s.conn != nil {
			s.conn.Close()
		}
	}
}

// query runs one statement on a session and materializes the rows.
func query(ctx context.Context, conn *sql.Conn, sqlText string, args ...any) (*Result, error) {
	rows, err := conn.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: cols, Rows: []map[string]any{}}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = util.NormalizeValue(values[i])
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res.Count = len(res.Rows)
	return res, nil
}
