// Package cli implements gridctl, the terminal client of the sales grid.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/okian/salesgrid/internal/adapters/rest"
	"github.com/okian/salesgrid/internal/config"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/internal/syncclient"
	"github.com/okian/salesgrid/pkg/logger"
)

// settlePoll is how often a one-shot command checks for outstanding saves.
const settlePoll = 50 * time.Millisecond

// App holds what every gridctl command needs.
type App struct {
	cfg    *config.Config
	in     io.Reader
	out    io.Writer
	logger logger.Logger

	configPath string
	server     string
	username   string
	password   string
	table      string
}

// Option configures an App.
type Option func(*App)

// WithConfig uses cfg instead of loading configuration from file and env.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) { a.cfg = cfg }
}

// WithInput sets where interactive commands read from.
func WithInput(r io.Reader) Option {
	return func(a *App) {
		if r != nil {
			a.in = r
		}
	}
}

// WithOutput sets where commands print.
func WithOutput(w io.Writer) Option {
	return func(a *App) {
		if w != nil {
			a.out = w
		}
	}
}

// WithLogger sets the logger handed to the client layers.
func WithLogger(l logger.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an App.
func New(opts ...Option) *App {
	a := &App{in: os.Stdin, out: os.Stdout, logger: logger.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// setup loads configuration unless one was injected and applies flag overrides.
func (a *App) setup(ctx context.Context) error {
	if a.cfg == nil {
		if a.configPath != "" {
			if err := os.Setenv(config.EnvFile, a.configPath); err != nil {
				return err
			}
		}
		cfg, err := config.Load(ctx)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if a.server != "" {
		a.cfg.BaseURL = a.server
	}
	if a.username != "" {
		a.cfg.Username = a.username
	}
	if a.password != "" {
		a.cfg.Password = a.password
	}
	if a.table != "" {
		a.cfg.Table = a.table
	}
	return nil
}

func (a *App) tableID() (sheet.TableID, error) {
	return sheet.ParseTable(a.cfg.Table)
}

func (a *App) client() (*rest.Client, error) {
	return rest.New(a.cfg.BaseURL,
		rest.WithTimeout(a.cfg.RequestTimeout),
		rest.WithLogger(a.logger.Named("rest")),
	)
}

func (a *App) sessionOptions(extra ...syncclient.Option) []syncclient.Option {
	opts := []syncclient.Option{
		syncclient.WithRefreshInterval(a.cfg.RefreshInterval),
		syncclient.WithSaveWorkers(a.cfg.SaveWorkers),
		syncclient.WithSaveQueueSize(a.cfg.SaveQueueSize),
		syncclient.WithSaveRetries(a.cfg.SaveRetries),
		syncclient.WithSaveBackoff(a.cfg.SaveBackoff),
		syncclient.WithNoticeTTL(a.cfg.NoticeTTL),
		syncclient.WithLogger(a.logger.Named("sync")),
	}
	return append(opts, extra...)
}

// open logs in with the configured credentials.
func (a *App) open(ctx context.Context, extra ...syncclient.Option) (*rest.Client, *syncclient.Session, error) {
	c, err := a.client()
	if err != nil {
		return nil, nil, err
	}
	if a.cfg.Username == "" {
		return nil, nil, fmt.Errorf("username is required (--user or SALESGRID_USERNAME)")
	}
	s, err := syncclient.Login(ctx, c, a.cfg.Username, a.cfg.Password, a.sessionOptions(extra...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("login: %w", err)
	}
	return c, s, nil
}

// openTable logs in and loads the configured sheet.
func (a *App) openTable(ctx context.Context, extra ...syncclient.Option) (*rest.Client, *syncclient.Session, error) {
	c, s, err := a.open(ctx, extra...)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Load(ctx, a.cfg.Table); err != nil {
		a.close(s)
		return nil, nil, err
	}
	return c, s, nil
}

func (a *App) close(s *syncclient.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout)
	defer cancel()
	if err := s.Logout(ctx); err != nil {
		a.logger.Warn(ctx, "logout", logger.Error(err))
	}
}

// settle waits until no save is outstanding.
func (a *App) settle(ctx context.Context, s *syncclient.Session) error {
	ticker := time.NewTicker(settlePoll)
	defer ticker.Stop()
	for s.Pending() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (a *App) println(s string) {
	fmt.Fprintln(a.out, strings.TrimRight(s, "\n"))
}

// parseDay accepts a field name ("tuesday") or its label ("Ter").
func parseDay(s string) (sheet.Field, error) {
	if f, err := sheet.ParseField(s); err == nil {
		return f, nil
	}
	for _, f := range sheet.Fields() {
		if strings.EqualFold(f.Label(), strings.TrimSpace(s)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", sheet.ErrUnknownField, s)
}
