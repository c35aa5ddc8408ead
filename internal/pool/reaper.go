package pool

import "time"

// runReaper wakes up every ReaperInterval and evicts idle connections that
// have run too many statements or sat idle too long. It bounds its work to
// the channel length observed at the start of the tick, so a steady stream
// of concurrent acquirers is never starved waiting behind the reaper.
func (p *Pool) runReaper() {
	defer close(p.reaperDone)

	ticker := time.NewTicker(p.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.reaperStop:
			return
		case <-ticker.C:
			p.reapOnce(p.readCh)
			p.reapOnce(p.writeCh)
		}
	}
}

func (p *Pool) reapOnce(ch chan *pooledConn) {
	n := len(ch)
	for i := 0; i < n; i++ {
		pc, res := popWithTimeout(ch, 10*time.Millisecond)
		if res != popOK {
			// Either nothing left to look at or the pool closed mid-tick.
			return
		}
		if isHealthy(pc.info, pc.conn, p.cfg) {
			select {
			case ch <- pc:
			default:
				// Channel briefly full from a concurrent Put; the
				// connector is healthy, so just close it rather than
				// spin waiting for room.
				pc.conn.Close()
				p.mu.Lock()
				p.untickLocked(pc.info.Role)
				p.mu.Unlock()
			}
			continue
		}
		pc.conn.Close()
		p.mu.Lock()
		p.untickLocked(pc.info.Role)
		p.mu.Unlock()
	}
}
