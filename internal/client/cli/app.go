package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/cyclesync/internal/client/config"
	"github.com/dmitrijs2005/cyclesync/internal/client/connectivity"
	"github.com/dmitrijs2005/cyclesync/internal/client/localstore"
	"github.com/dmitrijs2005/cyclesync/internal/client/models"
	"github.com/dmitrijs2005/cyclesync/internal/client/remote"
	"github.com/dmitrijs2005/cyclesync/internal/client/syncer"
	"github.com/dmitrijs2005/cyclesync/internal/filex"
	"github.com/dmitrijs2005/cyclesync/internal/logging"
	"github.com/dmitrijs2005/cyclesync/internal/rpc"
	"golang.org/x/term"
)

// account covers the remote calls that bypass the sync queue.
type account interface {
	CreateExport(ctx context.Context) (rpc.Export, error)
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	SaveProfile(ctx context.Context, userID string, p *models.Profile) error
}

type App struct {
	config  *config.Config
	log     logging.Logger
	userID  string
	store   *localstore.Store
	account account
	monitor *connectivity.Monitor
	source  connectivity.Source
	gate    *connectivity.Gate
	sync    *syncer.Coordinator
	http    *http.Client

	reader      *bufio.Reader
	out         io.Writer
	interactive bool
	now         func() time.Time

	closers []func() error
}

// NewApp wires the local store, the remote service, the connectivity
// monitor and the sync coordinator from c.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	a := &App{
		config:      c,
		userID:      c.UserID,
		http:        &http.Client{Timeout: c.RequestTimeout},
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
		now:         time.Now,
	}

	for _, p := range []string{c.LogFile, c.DatabasePath} {
		if err := filex.EnsureParentDir(p); err != nil {
			return nil, err
		}
	}

	logFile := logging.NewRotatingFile(c.LogFile, 10, 3)
	a.closers = append(a.closers, logFile.Close)
	a.log = logging.New(logFile, c.LogFormat, c.LogLevel).With("user_id", c.UserID)

	if a.userID == "" && a.interactive {
		id, err := GetSimpleText(a.reader, "User id", a.out)
		if err != nil {
			return nil, err
		}
		a.userID = id
	}
	token := c.AccessToken
	if token == "" && a.interactive {
		t, err := GetSecret("Access token", a.out)
		if err != nil {
			return nil, err
		}
		token = t
	}

	store, err := localstore.Open(ctx, c.DatabasePath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("error initializing database: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	a.store = store

	conn, err := remote.Dial(c.ServerEndpointAddr)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, conn.Close)
	svc := remote.NewGRPCService(conn, token, c.RequestTimeout)
	a.account = svc

	a.monitor = connectivity.NewMonitor(a.log)
	a.gate = connectivity.NewGate(a.monitor)
	switch c.ConnectivitySource {
	case config.SourceGRPC:
		a.source = &connectivity.ConnStateSource{Conn: conn}
	default:
		a.source = &connectivity.PingSource{Pinger: svc, Interval: c.OnlineCheckInterval, Timeout: 3 * time.Second}
	}

	a.sync = syncer.New(store, svc, a.monitor, func() string { return a.userID }, syncer.Options{
		Policy:        c.RetryPolicy(),
		BatchSize:     c.BatchSize,
		RetryInterval: c.RetryInterval,
		PullInterval:  c.PullInterval,
		Logger:        a.log,
	})
	return a, nil
}

// Run starts background sync and blocks in the REPL until the user exits.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := a.monitor.Run(ctx, a.source); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn(ctx, "connectivity source stopped", "error", err)
		}
	}()
	a.sync.Start(ctx)
	go a.watchEvents(ctx)

	fmt.Fprintln(a.out, "cyclesync (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader, a.interactive)
}

// watchEvents logs background sync outcomes; rejected pushes are also shown
// to the user since nothing else will retry them.
func (a *App) watchEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-a.sync.Events():
			switch e.Type {
			case syncer.EventPushFailed:
				fmt.Fprintf(a.out, "\nsync of %s was rejected: %v\n", e.RecordID, e.Err)
			case syncer.EventPushExhausted:
				a.log.Warn(ctx, "push waiting for reconnect", "record_id", e.RecordID, "attempts", e.Attempts)
			}
		}
	}
}

func (a *App) getStatus() string {
	s := ""
	if a.userID != "" {
		s = a.userID + " "
	}
	if a.monitor != nil {
		s += string(a.monitor.Current())
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// Close stops the sync session and releases everything NewApp opened.
func (a *App) Close() {
	if a.sync != nil {
		a.sync.Close()
	}
	if a.monitor != nil {
		a.monitor.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
