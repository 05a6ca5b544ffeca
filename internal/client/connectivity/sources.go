package connectivity

import (
	"context"
	"time"

	grpcconn "google.golang.org/grpc/connectivity"
)

// Pinger is anything that can probe the server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingSource probes the server every Interval, each probe bounded by Timeout.
type PingSource struct {
	Pinger   Pinger
	Interval time.Duration
	Timeout  time.Duration
}

func (p *PingSource) probe(ctx context.Context) Report {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.Pinger.Ping(ctx); err != nil {
		return Report{Level: LevelNone}
	}
	return Report{Level: LevelFull, Reachable: true}
}

// Run probes immediately and then on every tick.
func (p *PingSource) Run(ctx context.Context, report func(Report)) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r := p.probe(ctx)
		if ctx.Err() != nil {
			return nil
		}
		report(r)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}

// StateConn is the part of *grpc.ClientConn that ConnStateSource watches.
type StateConn interface {
	GetState() grpcconn.State
	WaitForStateChange(ctx context.Context, s grpcconn.State) bool
	Connect()
}

// ConnStateSource reports gRPC channel state changes: READY is full,
// IDLE and CONNECTING are limited, TRANSIENT_FAILURE and SHUTDOWN are none.
type ConnStateSource struct {
	Conn StateConn
}

func (c *ConnStateSource) Run(ctx context.Context, report func(Report)) error {
	reachable := false
	st := c.Conn.GetState()
	for {
		var r Report
		switch st {
		case grpcconn.Ready:
			reachable = true
			r = Report{Level: LevelFull, Reachable: true}
		case grpcconn.Idle, grpcconn.Connecting:
			r = Report{Level: LevelLimited, Reachable: reachable}
		default:
			reachable = false
			r = Report{Level: LevelNone}
		}
		report(r)

		if st == grpcconn.Shutdown {
			return nil
		}
		if st == grpcconn.Idle {
			c.Conn.Connect()
		}
		if !c.Conn.WaitForStateChange(ctx, st) {
			return nil
		}
		st = c.Conn.GetState()
	}
}
