// Package pool implements the bounded, read/write-split connection pool:
// two FIFO channels with admission control, a connect-failure circuit
// breaker on the grow path, and a background reaper that evicts stale or
// over-used idle connections.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tasksql/taskdb/internal/circuitbreaker"
	"github.com/tasksql/taskdb/internal/connector"
	"github.com/tasksql/taskdb/internal/metrics"
)

// Config tunes pool behavior. Zero values are replaced by Defaults in New.
type Config struct {
	Size                int
	MaxIdleSeconds      time.Duration
	MaxExecCount        int64
	ReaperInterval      time.Duration
	OverflowFactor      int
	MaxWaitTimeoutCount int
	Breaker             circuitbreaker.Config
}

// Defaults returns the out-of-the-box pool tuning used when the caller
// supplies none.
func Defaults() Config {
	return Config{
		Size:                10,
		MaxIdleSeconds:      8 * time.Second,
		MaxExecCount:        1000,
		ReaperInterval:      12 * time.Second,
		OverflowFactor:      3,
		MaxWaitTimeoutCount: 200,
		Breaker:             circuitbreaker.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := Defaults()
	if c.Size <= 0 {
		c.Size = d.Size
	}
	if c.MaxIdleSeconds <= 0 {
		c.MaxIdleSeconds = d.MaxIdleSeconds
	}
	if c.MaxExecCount <= 0 {
		c.MaxExecCount = d.MaxExecCount
	}
	if c.ReaperInterval <= 0 {
		c.ReaperInterval = d.ReaperInterval
	}
	if c.OverflowFactor <= 0 {
		c.OverflowFactor = d.OverflowFactor
	}
	if c.MaxWaitTimeoutCount <= 0 {
		c.MaxWaitTimeoutCount = d.MaxWaitTimeoutCount
	}
	if c.Breaker == (circuitbreaker.Config{}) {
		c.Breaker = d.Breaker
	}
	return c
}

type status int

const (
	statusOK status = iota
	statusClosed
)

// pooledConn couples a live Connector with its bookkeeping. Channels and
// the busy map only ever hold one of these per Connector at a time.
type pooledConn struct {
	conn *connector.Connector
	info *connector.Info
}

// Pool is the bounded dual-channel connection pool: one FIFO channel of
// idle connectors per role, admission control past a configured ceiling,
// and a background reaper. A Pool is safe for concurrent use by many
// goroutines.
type Pool struct {
	builder connector.Builder
	cfg     Config
	breaker *circuitbreaker.Breaker

	mu               sync.Mutex
	status           status
	readCh           chan *pooledConn
	writeCh          chan *pooledConn
	readCount        int
	writeCount       int
	waitTimeoutCount int
	busy             map[*connector.Connector]*pooledConn

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// New creates a Pool for builder and starts its reaper.
func New(builder connector.Builder, cfg Config) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		builder:    builder,
		cfg:        cfg,
		breaker:    circuitbreaker.New(cfg.Breaker),
		readCh:     make(chan *pooledConn, cfg.Size),
		writeCh:    make(chan *pooledConn, cfg.Size),
		busy:       make(map[*connector.Connector]*pooledConn),
		reaperStop: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}
	go p.runReaper()
	return p
}

func (p *Pool) channel(role connector.Role) chan *pooledConn {
	if role == connector.RoleWrite {
		return p.writeCh
	}
	return p.readCh
}

func (p *Pool) ceiling() int {
	return p.cfg.OverflowFactor * p.cfg.Size
}

// countLocked must be called with p.mu held.
func (p *Pool) countLocked(role connector.Role) int {
	if role == connector.RoleWrite {
		return p.writeCount
	}
	return p.readCount
}

func (p *Pool) tickLocked(role connector.Role) {
	if role == connector.RoleWrite {
		p.writeCount++
	} else {
		p.readCount++
	}
}

func (p *Pool) untickLocked(role connector.Role) {
	if role == connector.RoleWrite {
		p.writeCount--
	} else {
		p.readCount--
	}
}

// Get acquires a Connector for role, growing the pool, waiting on the
// overflow channel, or serving straight from the idle channel as the
// acquisition algorithm dictates.
func (p *Pool) Get(ctx context.Context, role connector.Role) (*connector.Connector, error) {
	p.mu.Lock()
	if p.status == statusClosed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	ch := p.channel(role)
	p.mu.Unlock()

	start := time.Now()
	var pc *pooledConn

	if len(ch) > 0 {
		popped, res := popWithTimeout(ch, time.Second)
		switch res {
		case popClosed:
			return nil, ErrPoolClosed
		case popOK:
			pc = popped
		default:
			// Raced empty between the length check and the pop; go through
			// growOrWait like any other grower rather than ticking past
			// the ceiling unconditionally.
			grown, err := p.growOrWait(ctx, role, ch)
			if err != nil {
				return nil, err
			}
			pc = grown
		}
	} else {
		grown, err := p.growOrWait(ctx, role, ch)
		if err != nil {
			return nil, err
		}
		pc = grown
	}

	p.mu.Lock()
	pc.info.MarkBusy()
	p.busy[pc.conn] = pc
	p.waitTimeoutCount = 0
	p.mu.Unlock()
	metrics.AcquireWaitSeconds.WithLabelValues(role.String()).Observe(time.Since(start).Seconds())
	return pc.conn, nil
}

// growOrWait decides grow-vs-wait and reserves the slot under a single
// hold of p.mu, so two goroutines that both observe room under the
// ceiling cannot both proceed to grow: the ceiling check and the tick
// that reserves the slot are one atomic step, with p.mu released only
// for the dial itself (in grow) and for waiting on ch.
func (p *Pool) growOrWait(ctx context.Context, role connector.Role, ch chan *pooledConn) (*pooledConn, error) {
	p.mu.Lock()
	reserved := p.countLocked(role) < p.ceiling()
	if reserved {
		p.tickLocked(role)
	}
	wtc := p.waitTimeoutCount
	p.mu.Unlock()

	if !reserved {
		if wtc > p.cfg.MaxWaitTimeoutCount {
			return nil, ErrConnectFatal
		}
		popped, res := popWithTimeout(ch, 4*time.Second)
		switch res {
		case popClosed:
			return nil, ErrPoolClosed
		case popOK:
			return popped, nil
		default:
			p.mu.Lock()
			p.waitTimeoutCount++
			p.mu.Unlock()
			metrics.WaitTimeoutTotal.WithLabelValues(role.String()).Inc()
			return nil, connector.NewConnectError(0, fmt.Sprintf("timeout acquiring %s connection", role))
		}
	}

	pc, err := p.grow(ctx, role)
	if err == nil {
		return pc, nil
	}
	var ce *connector.ConnectError
	if !errors.As(err, &ce) || ce.Code != connector.ErrnoTooManyConnections {
		return nil, err
	}
	popped, res := popWithTimeout(ch, 4*time.Second)
	if res != popOK {
		if res == popTimeout {
			p.mu.Lock()
			p.waitTimeoutCount++
			p.mu.Unlock()
			metrics.WaitTimeoutTotal.WithLabelValues(role.String()).Inc()
		}
		return nil, err
	}
	return popped, nil
}

// grow dials through the circuit breaker for a slot already reserved by
// growOrWait's tick, rolling the tick back on failure.
func (p *Pool) grow(ctx context.Context, role connector.Role) (*pooledConn, error) {
	var conn *connector.Connector
	err := p.breaker.Call(func() error {
		c, buildErr := p.builder.Build(ctx, role)
		if buildErr != nil {
			return buildErr
		}
		conn = c
		return nil
	})
	metrics.BreakerState.Set(float64(p.breaker.State()))
	if err != nil {
		p.mu.Lock()
		p.untickLocked(role)
		p.mu.Unlock()
		metrics.RecordConnect(role.String(), err)

		if errors.Is(err, circuitbreaker.ErrOpen) {
			return nil, connector.NewConnectError(0, "backend unavailable: circuit breaker open")
		}
		var ce *connector.ConnectError
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, connector.NewConnectError(0, err.Error())
	}
	metrics.RecordConnect(role.String(), nil)

	return &pooledConn{conn: conn, info: connector.NewInfo(role)}, nil
}

// Put returns conn to the pool, or closes it if the pool is closed, the
// channel is full, or the connector is not healthy enough to keep. A
// connector that was busy when handed back is, per the health contract,
// never discarded on usage/age grounds here — that is the reaper's job;
// Put only discards for "pool closed" or "channel full".
func (p *Pool) Put(conn *connector.Connector) {
	p.mu.Lock()
	pc, ok := p.busy[conn]
	if !ok {
		p.mu.Unlock()
		conn.Close()
		return
	}
	delete(p.busy, conn)
	closed := p.status == statusClosed
	p.mu.Unlock()

	if closed || !isHealthy(pc.info, pc.conn, p.cfg) {
		conn.Close()
		p.mu.Lock()
		p.untickLocked(pc.info.Role)
		p.mu.Unlock()
		return
	}

	pc.info.MarkIdle()
	ch := p.channel(pc.info.Role)
	select {
	case ch <- pc:
	default:
		conn.Close()
		p.mu.Lock()
		p.untickLocked(pc.info.Role)
		p.mu.Unlock()
	}
}

// isHealthy never evicts a busy connection; an idle one is unhealthy once
// it has run too many statements or sat idle too long.
func isHealthy(info *connector.Info, conn *connector.Connector, cfg Config) bool {
	if info.Status == connector.StatusBusy {
		return true
	}
	if conn.ExecCount() >= cfg.MaxExecCount {
		return false
	}
	if !conn.LastExecTime().IsZero() && time.Since(conn.LastExecTime()) >= cfg.MaxIdleSeconds {
		return false
	}
	return true
}

// ApplyTuning updates the knobs that can change without disrupting
// in-flight connections: idle TTL, per-connection exec ceiling, and the
// wait-timeout threshold. Channel capacity (Size) is fixed at
// construction — shrinking or growing it would mean discarding or
// stranding live idle connections, so a Size change requires restarting
// the Pool. Callers wire this to a config.RedisStore reload subscription.
func (p *Pool) ApplyTuning(maxIdleSeconds time.Duration, maxExecCount int64, maxWaitTimeoutCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if maxIdleSeconds > 0 {
		p.cfg.MaxIdleSeconds = maxIdleSeconds
	}
	if maxExecCount > 0 {
		p.cfg.MaxExecCount = maxExecCount
	}
	if maxWaitTimeoutCount > 0 {
		p.cfg.MaxWaitTimeoutCount = maxWaitTimeoutCount
	}
}

// Status reports whether further Get calls will be served.
func (p *Pool) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == statusClosed {
		return "closed"
	}
	return "ok"
}

// Stats is a snapshot for metrics and the admin API.
type Stats struct {
	ReadIdle, WriteIdle       int
	ReadCount, WriteCount     int
	WaitTimeoutCount          int
	Capacity                  int
	Ceiling                   int
	CircuitBreakerState       string
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{
		ReadIdle:            len(p.readCh),
		WriteIdle:           len(p.writeCh),
		ReadCount:           p.readCount,
		WriteCount:          p.writeCount,
		WaitTimeoutCount:    p.waitTimeoutCount,
		Capacity:            p.cfg.Size,
		Ceiling:             p.ceiling(),
		CircuitBreakerState: p.breaker.State().String(),
	}
	metrics.SetPoolStats(connector.RoleRead.String(), s.ReadCount-s.ReadIdle, s.ReadIdle)
	metrics.SetPoolStats(connector.RoleWrite.String(), s.WriteCount-s.WriteIdle, s.WriteIdle)
	return s
}

// Close marks the pool closed, stops the reaper, and closes every
// connection it ever minted — idle ones in the channels and any still
// checked out by a task.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.status == statusClosed {
		p.mu.Unlock()
		return nil
	}
	p.status = statusClosed
	busy := make([]*pooledConn, 0, len(p.busy))
	for _, pc := range p.busy {
		busy = append(busy, pc)
	}
	p.busy = make(map[*connector.Connector]*pooledConn)
	p.mu.Unlock()

	close(p.reaperStop)
	<-p.reaperDone

	close(p.readCh)
	close(p.writeCh)
	for pc := range p.readCh {
		pc.conn.Close()
	}
	for pc := range p.writeCh {
		pc.conn.Close()
	}
	for _, pc := range busy {
		pc.conn.Close()
	}
	return nil
}

type popResult int

const (
	popOK popResult = iota
	popTimeout
	popClosed
)

func popWithTimeout(ch chan *pooledConn, d time.Duration) (*pooledConn, popResult) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case pc, ok := <-ch:
		if !ok {
			return nil, popClosed
		}
		return pc, popOK
	case <-timer.C:
		return nil, popTimeout
	}
}
