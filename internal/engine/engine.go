// Package engine serializes every host request onto one goroutine that owns
// the registry, the territory service and the player directory.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"bonfire.gg/internal/claims"
	"bonfire.gg/internal/config"
	"bonfire.gg/internal/grid"
	"bonfire.gg/internal/limits"
	persistlog "bonfire.gg/internal/persistence/log"
	"bonfire.gg/internal/players"
	"bonfire.gg/internal/protection"
	"bonfire.gg/internal/protocol"
	"bonfire.gg/internal/render"
	"bonfire.gg/internal/territory"
)

var ErrStopped = errors.New("engine stopped")

type SessionWriter interface {
	WriteSession(e persistlog.SessionEntry) error
}

type Config struct {
	Registry  *claims.Registry
	Store     territory.Store
	Directory *players.Directory
	Settings  config.Config

	// ConfigPath is re-read on RELOAD. Empty means defaults.
	ConfigPath string
	Load       func(path string) (config.Config, error)
	// OnReload runs on the engine goroutine after a successful reload.
	OnReload func(config.Config)

	Sinks    []render.Sink
	Audit    territory.Auditor
	Sessions SessionWriter
	Logger   *log.Logger
	Now      func() time.Time
}

type call struct {
	ctx  context.Context
	req  protocol.Request
	resp chan protocol.Response
}

type Engine struct {
	reg       *claims.Registry
	dir       *players.Directory
	policy    *limits.Policy
	svc       *territory.Service
	eval      *protection.Evaluator
	publisher *render.Publisher

	configPath string
	load       func(string) (config.Config, error)
	onReload   func(config.Config)
	sessions   SessionWriter
	log        *log.Logger
	now        func() time.Time

	calls chan call
	done  chan struct{}

	claims   atomic.Int64
	online   atomic.Int64
	requests atomic.Uint64
	rejected atomic.Uint64
	failed   atomic.Uint64
}

// Metrics is safe to read from any goroutine.
type Metrics struct {
	Claims     int64
	Online     int64
	QueueDepth int
	Requests   uint64
	Rejected   uint64
	Failed     uint64
}

func (e *Engine) Metrics() Metrics {
	return Metrics{
		Claims:     e.claims.Load(),
		Online:     e.online.Load(),
		QueueDepth: len(e.calls),
		Requests:   e.requests.Load(),
		Rejected:   e.rejected.Load(),
		Failed:     e.failed.Load(),
	}
}

func (e *Engine) observe(resp protocol.Response) {
	e.requests.Add(1)
	switch {
	case resp.Code == protocol.ErrInternal:
		e.failed.Add(1)
	case !resp.OK:
		e.rejected.Add(1)
	}
	e.claims.Store(int64(e.reg.Len()))
	e.online.Store(int64(len(e.dir.Online())))
}

func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil || cfg.Store == nil || cfg.Directory == nil {
		return nil, fmt.Errorf("engine: registry, store and directory are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Load == nil {
		cfg.Load = config.Load
	}
	e := &Engine{
		reg:        cfg.Registry,
		dir:        cfg.Directory,
		policy:     limits.NewPolicy(cfg.Settings.LimitConfig(), cfg.Directory),
		publisher:  render.NewPublisher(cfg.Settings.Style(), cfg.Directory, cfg.Sinks...),
		configPath: cfg.ConfigPath,
		load:       cfg.Load,
		onReload:   cfg.OnReload,
		sessions:   cfg.Sessions,
		log:        cfg.Logger,
		now:        cfg.Now,
		calls:      make(chan call, 256),
		done:       make(chan struct{}),
	}
	svc, err := territory.New(territory.Config{
		Registry:     cfg.Registry,
		Store:        cfg.Store,
		Limits:       e.policy,
		Players:      cfg.Directory,
		Renderer:     e.publisher,
		Audit:        cfg.Audit,
		Logger:       cfg.Logger,
		Now:          cfg.Now,
		MergeWindow:  cfg.Settings.MergeWindow(),
		DefaultRules: cfg.Settings.Rules(),
	})
	if err != nil {
		return nil, err
	}
	e.svc = svc
	e.eval = protection.NewEvaluator(cfg.Registry, cfg.Directory)
	e.claims.Store(int64(cfg.Registry.Len()))
	return e, nil
}

// Publish draws every loaded claim once. Call it before Run.
func (e *Engine) Publish() int { return e.publisher.RefreshAll(e.reg) }

// Run processes calls until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-e.calls:
			if c.ctx.Err() != nil {
				continue
			}
			resp := e.handle(c.ctx, c.req)
			e.observe(resp)
			c.resp <- resp
		}
	}
}

// Do queues req and waits for its response.
func (e *Engine) Do(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	c := call{ctx: ctx, req: req, resp: make(chan protocol.Response, 1)}
	select {
	case e.calls <- c:
	case <-ctx.Done():
		return protocol.Response{}, ctx.Err()
	case <-e.done:
		return protocol.Response{}, ErrStopped
	}
	select {
	case r := <-c.resp:
		return r, nil
	case <-ctx.Done():
		return protocol.Response{}, ctx.Err()
	case <-e.done:
		return protocol.Response{}, ErrStopped
	}
}

func (e *Engine) handle(ctx context.Context, req protocol.Request) protocol.Response {
	switch req.Type {
	case protocol.TypeJoin:
		return e.join(ctx, req)
	case protocol.TypeQuit:
		return e.quit(ctx, req)
	case protocol.TypeInfo:
		return e.info(req)
	case protocol.TypeCheck:
		return e.check(req)
	case protocol.TypeReload:
		if !req.Operator {
			return denied(req)
		}
		return e.reload(req)
	}

	p := cellOf(req)
	var (
		res territory.Result
		err error
	)
	switch req.Type {
	case protocol.TypeClaim:
		res, err = e.svc.Claim(ctx, req.Actor, p)
	case protocol.TypeUnclaim, protocol.TypeSetRule, protocol.TypeAddTrust, protocol.TypeRemoveTrust:
		if resp, ok := e.requireOwner(req, p); !ok {
			return resp
		}
		switch req.Type {
		case protocol.TypeUnclaim:
			res, err = e.svc.Unclaim(ctx, req.Actor, p)
		case protocol.TypeSetRule:
			res, err = e.svc.SetRule(ctx, req.Actor, p, req.Rule, req.Value)
		case protocol.TypeAddTrust:
			res, err = e.svc.AddTrust(ctx, req.Actor, p, req.Target, req.Trust)
		default:
			res, err = e.svc.RemoveTrust(ctx, req.Actor, p, req.Target)
		}
	case protocol.TypeAdminSetOwner, protocol.TypeAdminRemoveClaim, protocol.TypeAdminUnclaim, protocol.TypeAdminRemoveAll:
		if !req.Operator {
			return denied(req)
		}
		switch req.Type {
		case protocol.TypeAdminSetOwner:
			res, err = e.svc.AdminSetOwner(ctx, req.Actor, p, req.Target)
		case protocol.TypeAdminRemoveClaim:
			res, err = e.svc.AdminRemoveClaim(ctx, req.Actor, p)
		case protocol.TypeAdminUnclaim:
			res, err = e.svc.AdminUnclaim(ctx, req.Actor, p)
		default:
			res, err = e.svc.AdminRemoveAll(ctx, req.Actor, req.Target)
		}
	default:
		return protocol.Fail(req, protocol.ErrBadRequest, fmt.Sprintf("unknown request type %q", req.Type))
	}
	if err != nil {
		return e.internal(req, err)
	}
	return fromResult(req, res)
}

// requireOwner rejects owner-only requests from anyone but the claim owner.
// A missing claim is left to the service so it reports E_NOT_CLAIMED.
func (e *Engine) requireOwner(req protocol.Request, p grid.ChunkPos) (protocol.Response, bool) {
	c := e.reg.At(p)
	if c == nil || c.Owner == req.Actor {
		return protocol.Response{}, true
	}
	return protocol.Fail(req, protocol.ErrNoPermission, "You don't own this claim."), false
}

func (e *Engine) join(ctx context.Context, req protocol.Request) protocol.Response {
	prev := e.dir.Name(req.Actor)
	if err := e.dir.Join(ctx, req.Actor, req.Name); err != nil {
		return e.internal(req, err)
	}
	e.writeSession(persistlog.SessionEntry{Player: req.Actor.String(), Name: req.Name, Event: "JOIN"})
	// Labels carry the owner name.
	if prev != req.Name {
		for _, c := range e.reg.OwnedBy(req.Actor) {
			e.publisher.Update(c)
		}
	}
	resp := protocol.Reply(req)
	resp.OK = true
	return resp
}

func (e *Engine) quit(ctx context.Context, req protocol.Request) protocol.Response {
	if err := e.dir.Quit(ctx, req.Actor); err != nil {
		return e.internal(req, err)
	}
	e.writeSession(persistlog.SessionEntry{
		Player:   req.Actor.String(),
		Name:     e.dir.Name(req.Actor),
		Event:    "QUIT",
		Playtime: e.dir.Playtime(req.Actor).Milliseconds(),
	})
	resp := protocol.Reply(req)
	resp.OK = true
	return resp
}

func (e *Engine) info(req protocol.Request) protocol.Response {
	c := e.reg.At(cellOf(req))
	if c == nil {
		return protocol.Fail(req, protocol.ErrNotClaimed, "This chunk isn't claimed.")
	}
	resp := protocol.Reply(req)
	resp.OK = true
	resp.ClaimID = int64(c.ID)
	resp.Claim = &protocol.ClaimInfo{
		ID:        int64(c.ID),
		Owner:     c.Owner,
		OwnerName: e.dir.Name(c.Owner),
		World:     c.World(),
		Chunks:    c.Len(),
		Rules: protocol.Rules{
			AllowBlockBreak:     c.Rules.AllowBlockBreak,
			AllowBlockInteract:  c.Rules.AllowBlockInteract,
			AllowEntityInteract: c.Rules.AllowEntityInteract.String(),
		},
		TrustedAlways: c.Trusted(claims.TrustAlways),
		TrustedOnline: c.Trusted(claims.TrustWhileOnline),
	}
	return resp
}

func (e *Engine) reload(req protocol.Request) protocol.Response {
	cfg, err := e.load(e.configPath)
	if err != nil {
		return protocol.Fail(req, protocol.ErrBadRequest, fmt.Sprintf("config not reloaded: %v", err))
	}
	e.policy.Update(cfg.LimitConfig())
	e.svc.SetDefaultRules(cfg.Rules())
	e.svc.SetMergeWindow(cfg.MergeWindow())
	e.publisher.SetStyle(cfg.Style())
	n := e.publisher.RefreshAll(e.reg)
	if e.onReload != nil {
		e.onReload(cfg)
	}
	e.logf("config reloaded from %q, %d markers redrawn", e.configPath, n)
	resp := protocol.Reply(req)
	resp.OK = true
	resp.Count = n
	resp.Message = "Reloaded the config."
	return resp
}

func (e *Engine) internal(req protocol.Request, err error) protocol.Response {
	e.logf("%s %s: %v", req.Type, req.ReqID, err)
	return protocol.Fail(req, protocol.ErrInternal, "Something went wrong, nothing changed.")
}

func (e *Engine) writeSession(s persistlog.SessionEntry) {
	if e.sessions == nil {
		return
	}
	s.Time = e.now().UTC()
	if err := e.sessions.WriteSession(s); err != nil {
		e.logf("session log: %v", err)
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.log != nil {
		e.log.Printf(format, args...)
	}
}

func denied(req protocol.Request) protocol.Response {
	return protocol.Fail(req, protocol.ErrNoPermission, "You don't have permission to do that.")
}

func fromResult(req protocol.Request, res territory.Result) protocol.Response {
	resp := protocol.Reply(req)
	resp.OK = res.OK
	resp.Code = res.Code
	resp.Message = res.Message
	resp.ClaimID = int64(res.ClaimID)
	resp.Count = res.Count
	return resp
}

func cellOf(req protocol.Request) grid.ChunkPos {
	return grid.At(req.World, req.X, req.Z)
}

func cellFrom(c *protocol.Cell, fallback grid.ChunkPos) grid.ChunkPos {
	if c == nil {
		return fallback
	}
	return grid.At(c.World, c.X, c.Z)
}

func actorOf(req protocol.Request) protection.Actor {
	return protection.Actor{ID: req.Actor, Mode: protection.ParseMode(req.Mode)}
}

func actorRef(r *protocol.ActorRef) *protection.Actor {
	if r == nil {
		return nil
	}
	return &protection.Actor{ID: r.ID, Mode: protection.ParseMode(r.Mode)}
}
