package territory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"bonfire.gg/internal/claims"
	"bonfire.gg/internal/grid"
	"bonfire.gg/internal/limits"
	"bonfire.gg/internal/persistence/memstore"
	"bonfire.gg/internal/protocol"
	"bonfire.gg/internal/territory"
)

var errBoom = errors.New("boom")

// failStore fails every write while fail is set.
type failStore struct {
	*memstore.Store
	fail bool
}

func (s *failStore) AddChunk(ctx context.Context, id claims.ID, p grid.ChunkPos) error {
	if s.fail {
		return errBoom
	}
	return s.Store.AddChunk(ctx, id, p)
}

func (s *failStore) RemoveChunk(ctx context.Context, id claims.ID, p grid.ChunkPos) error {
	if s.fail {
		return errBoom
	}
	return s.Store.RemoveChunk(ctx, id, p)
}

func (s *failStore) UpdateRules(ctx context.Context, id claims.ID, r claims.Rules) error {
	if s.fail {
		return errBoom
	}
	return s.Store.UpdateRules(ctx, id, r)
}

func (s *failStore) UpdateOwner(ctx context.Context, id claims.ID, owner uuid.UUID) error {
	if s.fail {
		return errBoom
	}
	return s.Store.UpdateOwner(ctx, id, owner)
}

func (s *failStore) AddTrust(ctx context.Context, id claims.ID, p uuid.UUID, k claims.TrustKind) error {
	if s.fail {
		return errBoom
	}
	return s.Store.AddTrust(ctx, id, p, k)
}

func (s *failStore) RemoveTrust(ctx context.Context, id claims.ID, p uuid.UUID) error {
	if s.fail {
		return errBoom
	}
	return s.Store.RemoveTrust(ctx, id, p)
}

func (s *failStore) DeleteClaim(ctx context.Context, id claims.ID) error {
	if s.fail {
		return errBoom
	}
	return s.Store.DeleteClaim(ctx, id)
}

func (s *failStore) Atomic(ctx context.Context, fn func(territory.Store) error) error {
	if s.fail {
		return errBoom
	}
	return s.Store.Atomic(ctx, fn)
}

type stubLimits struct{ l limits.Limits }

func (s *stubLimits) Limits(uuid.UUID) limits.Limits { return s.l }

type stubPlayers map[string]uuid.UUID

func (s stubPlayers) Resolve(name string) (uuid.UUID, bool) {
	id, ok := s[name]
	return id, ok
}

type recordingRenderer struct {
	updated []claims.ID
	removed []claims.ID
}

func (r *recordingRenderer) Update(c *claims.Claim)          { r.updated = append(r.updated, c.ID) }
func (r *recordingRenderer) Remove(id claims.ID, _ uuid.UUID) { r.removed = append(r.removed, id) }

type recordingAudit struct{ entries []territory.AuditEntry }

func (a *recordingAudit) WriteAudit(e territory.AuditEntry) error {
	a.entries = append(a.entries, e)
	return nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type env struct {
	t       *testing.T
	ctx     context.Context
	world   uuid.UUID
	reg     *claims.Registry
	store   *failStore
	limits  *stubLimits
	players stubPlayers
	render  *recordingRenderer
	audit   *recordingAudit
	clock   *fakeClock
	svc     *territory.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		t:       t,
		ctx:     context.Background(),
		world:   uuid.New(),
		reg:     claims.NewRegistry(),
		store:   &failStore{Store: memstore.New()},
		limits:  &stubLimits{l: limits.Limits{MaxChunks: 100, MaxClaims: 10}},
		players: stubPlayers{},
		render:  &recordingRenderer{},
		audit:   &recordingAudit{},
		clock:   &fakeClock{t: time.Unix(1_700_000_000, 0)},
	}
	svc, err := territory.New(territory.Config{
		Registry:     e.reg,
		Store:        e.store,
		Limits:       e.limits,
		Players:      e.players,
		Renderer:     e.render,
		Audit:        e.audit,
		Now:          e.clock.now,
		DefaultRules: claims.Rules{AllowBlockInteract: true},
	})
	if err != nil {
		t.Fatalf("territory.New: %v", err)
	}
	e.svc = svc
	return e
}

func (e *env) at(x, z int32) grid.ChunkPos { return grid.At(e.world, x, z) }

func (e *env) claim(actor uuid.UUID, x, z int32) territory.Result {
	e.t.Helper()
	res, err := e.svc.Claim(e.ctx, actor, e.at(x, z))
	if err != nil {
		e.t.Fatalf("Claim(%d,%d): %v", x, z, err)
	}
	return res
}

func (e *env) mustOK(res territory.Result) territory.Result {
	e.t.Helper()
	if !res.OK {
		e.t.Fatalf("expected OK, got %+v", res)
	}
	return res
}

func (e *env) mustCode(res territory.Result, code string) {
	e.t.Helper()
	if res.OK || res.Code != code {
		e.t.Fatalf("expected %s, got %+v", code, res)
	}
}

func (e *env) stored() []*claims.Claim {
	e.t.Helper()
	all, err := e.store.LoadClaims(e.ctx)
	if err != nil {
		e.t.Fatalf("LoadClaims: %v", err)
	}
	return all
}

func TestClaimFoundsThenExtends(t *testing.T) {
	e := newEnv(t)
	alice := uuid.New()

	first := e.mustOK(e.claim(alice, 0, 0))
	if first.ClaimID != 1 {
		t.Fatalf("first claim id=%d", first.ClaimID)
	}
	c := e.reg.Get(first.ClaimID)
	if c == nil || !c.Rules.AllowBlockInteract || c.Owner != alice {
		t.Fatalf("new claim not registered with default rules: %+v", c)
	}
	second := e.mustOK(e.claim(alice, 1, 0))
	if second.ClaimID != first.ClaimID {
		t.Fatalf("adjacent cell must extend the claim, got id %d", second.ClaimID)
	}
	if e.reg.OwnedChunkCount(alice) != 2 || e.reg.OwnedClaimCount(alice) != 1 {
		t.Fatalf("counts chunks=%d claims=%d", e.reg.OwnedChunkCount(alice), e.reg.OwnedClaimCount(alice))
	}
	st := e.stored()
	if len(st) != 1 || st[0].Len() != 2 || !st[0].Rules.AllowBlockInteract {
		t.Fatalf("store disagrees with registry: %+v", st)
	}
	if len(e.audit.entries) != 2 || e.audit.entries[0].Action != "CREATE" || e.audit.entries[1].Action != "CLAIM" {
		t.Fatalf("unexpected audit: %+v", e.audit.entries)
	}
}

func TestClaimAlreadyClaimedIsNoop(t *testing.T) {
	e := newEnv(t)
	alice, bob := uuid.New(), uuid.New()
	e.mustOK(e.claim(alice, 0, 0))
	e.mustCode(e.claim(bob, 0, 0), protocol.ErrAlreadyClaimed)
	e.mustCode(e.claim(alice, 0, 0), protocol.ErrAlreadyClaimed)
	if e.reg.OwnedChunkCount(bob) != 0 || e.reg.At(e.at(0, 0)).Owner != alice {
		t.Fatalf("claimed cell changed hands")
	}
}

func TestClaimLimits(t *testing.T) {
	e := newEnv(t)
	alice := uuid.New()
	e.limits.l = limits.Limits{MaxChunks: 2, MaxClaims: 1}

	e.mustOK(e.claim(alice, 0, 0))
	e.mustCode(e.claim(alice, 5, 5), protocol.ErrClaimLimit)
	e.mustOK(e.claim(alice, 0, 1))
	e.mustCode(e.claim(alice, 0, 2), protocol.ErrChunkLimit)
	if e.reg.OwnedChunkCount(alice) != 2 {
		t.Fatalf("limit rejection mutated state")
	}
}

func TestMergeRequiresConfirmationWithinWindow(t *testing.T) {
	e := newEnv(t)
	alice, friend := uuid.New(), uuid.New()
	e.players["Friend"] = friend

	a := e.mustOK(e.claim(alice, 0, 0)).ClaimID
	b := e.mustOK(e.claim(alice, 2, 0)).ClaimID
	if _, err := e.svc.AddTrust(e.ctx, alice, e.at(2, 0), "Friend", "always"); err != nil {
		t.Fatalf("AddTrust: %v", err)
	}
	if _, err := e.svc.SetRule(e.ctx, alice, e.at(0, 0), territory.RuleAllowBlockBreak, "true"); err != nil {
		t.Fatalf("SetRule: %v", err)
	}

	res := e.claim(alice, 1, 0)
	e.mustCode(res, protocol.CodeConfirmMerge)
	if res.ClaimID != a || res.Count != 2 {
		t.Fatalf("proposal should target the oldest claim: %+v", res)
	}
	if e.reg.At(e.at(1, 0)) != nil || e.reg.Len() != 2 {
		t.Fatalf("proposal mutated the registry")
	}
	if _, ids, open := e.svc.PendingMerge(alice); !open || len(ids) != 2 || ids[0] != a || ids[1] != b {
		t.Fatalf("pending merge=%v open=%v", ids, open)
	}

	e.clock.advance(15 * time.Second)
	merged := e.mustOK(e.claim(alice, 1, 0))
	if merged.ClaimID != a {
		t.Fatalf("survivor id=%d want %d", merged.ClaimID, a)
	}
	main := e.reg.Get(a)
	if e.reg.Get(b) != nil || main.Len() != 3 {
		t.Fatalf("merge incomplete: donor=%v len=%d", e.reg.Get(b), main.Len())
	}
	if !main.Rules.AllowBlockBreak {
		t.Fatalf("survivor rules must be preserved")
	}
	if k, ok := main.TrustOf(friend); !ok || k != claims.TrustAlways {
		t.Fatalf("donor trust not carried over")
	}
	if e.reg.OwnedClaimCount(alice) != 1 || e.reg.OwnedChunkCount(alice) != 3 {
		t.Fatalf("aggregates after merge: %d/%d", e.reg.OwnedClaimCount(alice), e.reg.OwnedChunkCount(alice))
	}
	if _, _, open := e.svc.PendingMerge(alice); open {
		t.Fatalf("pending merge not cleared")
	}
	st := e.stored()
	if len(st) != 1 || st[0].ID != a || st[0].Len() != 3 || !st[0].IsTrusted(friend) {
		t.Fatalf("store after merge: %+v", st)
	}
	if len(e.render.removed) != 1 || e.render.removed[0] != b {
		t.Fatalf("donor marker not removed: %v", e.render.removed)
	}
}

func TestMergeProposalExpires(t *testing.T) {
	e := newEnv(t)
	alice := uuid.New()
	e.mustOK(e.claim(alice, 0, 0))
	e.mustOK(e.claim(alice, 2, 0))

	e.mustCode(e.claim(alice, 1, 0), protocol.CodeConfirmMerge)
	e.clock.advance(15*time.Second + time.Millisecond)
	e.mustCode(e.claim(alice, 1, 0), protocol.CodeConfirmMerge)
	if e.reg.Len() != 2 {
		t.Fatalf("expired proposal must not merge")
	}
	e.clock.advance(time.Second)
	e.mustOK(e.claim(alice, 1, 0))
	if e.reg.Len() != 1 {
		t.Fatalf("renewed proposal should merge")
	}
}

func TestMergeProposalIsPerCell(t *testing.T) {
	e := newEnv(t)
	alice := uuid.New()
	// Two claims with two cells between them that touch both.
	e.mustOK(e.claim(alice, 0, 0))
	e.mustOK(e.claim(alice, 0, 1))
	e.mustOK(e.claim(alice, 2, 0))
	e.mustOK(e.claim(alice, 2, 1))

	e.mustCode(e.claim(alice, 1, 0), protocol.CodeConfirmMerge)
	e.mustCode(e.claim(alice, 1, 1), protocol.CodeConfirmMerge)
	if e.reg.Len() != 2 {
		t.Fatalf("a different cell restarts the negotiation")
	}
	e.mustOK(e.claim(alice, 1, 1))
	if e.reg.Len() != 1 || e.reg.At(e.at(1, 0)) != nil {
		t.Fatalf("only the confirmed cell is claimed")
	}
}

func TestMergeOfThreeClaims(t *testing.T) {
	e := newEnv(t)
	alice := uuid.New()
	ids := []claims.ID{
		e.mustOK(e.claim(alice, 1, 0)).ClaimID,
		e.mustOK(e.claim(alice, 0, 1)).ClaimID,
		e.mustOK(e.claim(alice, 2, 1)).ClaimID,
	}
	e.mustCode(e.claim(alice, 1, 1), protocol.CodeConfirmMerge)
	res := e.mustOK(e.claim(alice, 1, 1))
	if res.ClaimID != ids[0] || res.Count != 2 {
		t.Fatalf("unexpected merge result %+v", res)
	}
	if e.reg.Len() != 1 || e.reg.Get(ids[0]).Len() != 4 {
		t.Fatalf("three-way merge incomplete")
	}
	if !claims.Connected(e.reg.Get(ids[0])) {
		t.Fatalf("merged claim must be connected")
	}
}

func TestUnclaimKeepsClaimConnected(t *testing.T) {
	e := newEnv(t)
	alice := uuid.New()
	id := e.mustOK(e.claim(alice, 0, 0)).ClaimID
	e.mustOK(e.claim(alice, 1, 0))
	e.mustOK(e.claim(alice, 2, 0))

	res, err := e.svc.Unclaim(e.ctx, alice, e.at(1, 0))
	if err != nil {
		t.Fatalf("Unclaim: %v", err)
	}
	e.mustCode(res, protocol.ErrWouldSplit)
	if e.reg.Get(id).Len() != 3 {
		t.Fatalf("rejected unclaim mutated the claim")
	}

	for _, x := range []int32{0, 1} {
		res, err = e.svc.Unclaim(e.ctx, alice, e.at(x, 0))
		if err != nil {
			t.Fatalf("Unclaim: %v", err)
		}
		e.mustOK(res)
	}
	if e.reg.Get(id).Len() != 1 {
		t.Fatalf("len=%d", e.reg.Get(id).Len())
	}
	e.mustOK(mustResult(t)(e.svc.Unclaim(e.ctx, alice, e.at(2, 0))))
	if e.reg.Get(id) != nil || e.reg.OwnedClaimCount(alice) != 0 {
		t.Fatalf("removing the last cell must delete the claim")
	}
	if len(e.stored()) != 0 {
		t.Fatalf("claim still stored")
	}
	if len(e.render.removed) != 1 || e.render.removed[0] != id {
		t.Fatalf("marker not removed: %v", e.render.removed)
	}
	e.mustCode(mustResult(t)(e.svc.Unclaim(e.ctx, alice, e.at(2, 0))), protocol.ErrNotClaimed)
}

func mustResult(t *testing.T) func(territory.Result, error) territory.Result {
	return func(r territory.Result, err error) territory.Result {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return r
	}
}

func TestSetRuleValueDomain(t *testing.T) {
	e := newEnv(t)
	alice := uuid.New()
	id := e.mustOK(e.claim(alice, 0, 0)).ClaimID
	p := e.at(0, 0)

	e.mustCode(mustResult(t)(e.svc.SetRule(e.ctx, alice, p, territory.RuleAllowEntityInteract, "maybe")), protocol.ErrBadRule)
	if e.reg.Get(id).Rules.AllowEntityInteract != claims.EntityDeny {
		t.Fatalf("rejected value changed the rule")
	}
	e.mustOK(mustResult(t)(e.svc.SetRule(e.ctx, alice, p, territory.RuleAllowEntityInteract, "onlyMounts")))
	if e.reg.Get(id).Rules.AllowEntityInteract != claims.EntityOnlyMounts {
		t.Fatalf("rule not applied in memory")
	}
	if st := e.stored(); st[0].Rules.AllowEntityInteract != claims.EntityOnlyMounts {
		t.Fatalf("rule not persisted")
	}

	e.mustCode(mustResult(t)(e.svc.SetRule(e.ctx, alice, p, territory.RuleAllowBlockBreak, "yes")), protocol.ErrBadRule)
	e.mustCode(mustResult(t)(e.svc.SetRule(e.ctx, alice, p, "allowFlight", "true")), protocol.ErrBadRule)
	e.mustCode(mustResult(t)(e.svc.SetRule(e.ctx, alice, e.at(9, 9), territory.RuleAllowBlockBreak, "true")), protocol.ErrNotClaimed)
}

func TestTrustLifecycle(t *testing.T) {
	e := newEnv(t)
	alice, bob := uuid.New(), uuid.New()
	e.players["Bob"] = bob
	id := e.mustOK(e.claim(alice, 0, 0)).ClaimID
	p := e.at(0, 0)

	e.mustCode(mustResult(t)(e.svc.AddTrust(e.ctx, alice, p, "Nobody", "always")), protocol.ErrPlayerNotFound)
	e.mustCode(mustResult(t)(e.svc.AddTrust(e.ctx, alice, p, "Bob", "sometimes")), protocol.ErrBadRequest)
	e.mustOK(mustResult(t)(e.svc.AddTrust(e.ctx, alice, p, "Bob", "whileOnline")))
	e.mustCode(mustResult(t)(e.svc.AddTrust(e.ctx, alice, p, "Bob", "always")), protocol.ErrAlreadyTrusted)
	if k, _ := e.reg.Get(id).TrustOf(bob); k != claims.TrustWhileOnline {
		t.Fatalf("duplicate add changed the grant kind")
	}
	e.mustOK(mustResult(t)(e.svc.RemoveTrust(e.ctx, alice, p, "Bob")))
	e.mustCode(mustResult(t)(e.svc.RemoveTrust(e.ctx, alice, p, "Bob")), protocol.ErrNotTrusted)
	if e.stored()[0].HasTrusted() {
		t.Fatalf("trust still stored")
	}
}

func TestStoreFailureLeavesMemoryUntouched(t *testing.T) {
	e := newEnv(t)
	alice, bob := uuid.New(), uuid.New()
	e.players["Alice"] = alice
	e.players["Bob"] = bob
	id := e.mustOK(e.claim(alice, 0, 0)).ClaimID
	e.mustOK(e.claim(alice, 1, 0))
	e.mustOK(e.claim(alice, 3, 0))
	e.mustCode(e.claim(alice, 2, 0), protocol.CodeConfirmMerge)

	e.store.fail = true
	p := e.at(0, 0)
	calls := map[string]func() (territory.Result, error){
		"found":   func() (territory.Result, error) { return e.svc.Claim(e.ctx, alice, e.at(9, 9)) },
		"extend":  func() (territory.Result, error) { return e.svc.Claim(e.ctx, alice, e.at(0, 1)) },
		"merge":   func() (territory.Result, error) { return e.svc.Claim(e.ctx, alice, e.at(2, 0)) },
		"unclaim": func() (territory.Result, error) { return e.svc.Unclaim(e.ctx, alice, p) },
		"rule":    func() (territory.Result, error) { return e.svc.SetRule(e.ctx, alice, p, territory.RuleAllowBlockBreak, "true") },
		"trust":   func() (territory.Result, error) { return e.svc.AddTrust(e.ctx, alice, p, "Bob", "always") },
		"owner":   func() (territory.Result, error) { return e.svc.AdminSetOwner(e.ctx, alice, p, "Bob") },
		"remove":  func() (territory.Result, error) { return e.svc.AdminRemoveClaim(e.ctx, alice, p) },
		"all":     func() (territory.Result, error) { return e.svc.AdminRemoveAll(e.ctx, alice, "Alice") },
	}

	for name, call := range calls {
		if _, err := call(); !errors.Is(err, errBoom) {
			t.Fatalf("%s: expected store error, got %v", name, err)
		}
	}
	c := e.reg.Get(id)
	if c == nil || c.Len() != 2 || c.Owner != alice || c.Rules.AllowBlockBreak || c.HasTrusted() {
		t.Fatalf("memory changed after failed writes: %+v", c)
	}
	if e.reg.Len() != 2 || e.reg.At(e.at(9, 9)) != nil || e.reg.At(e.at(2, 0)) != nil {
		t.Fatalf("registry changed after failed writes")
	}
	if e.reg.OwnedChunkCount(alice) != 3 || e.reg.OwnedClaimCount(alice) != 2 {
		t.Fatalf("aggregates changed after failed writes")
	}
}

func TestAdminOperations(t *testing.T) {
	e := newEnv(t)
	alice, bob, op := uuid.New(), uuid.New(), uuid.New()
	e.players["Alice"] = alice
	e.players["Bob"] = bob
	a := e.mustOK(e.claim(alice, 0, 0)).ClaimID
	e.mustOK(e.claim(alice, 0, 1))
	e.mustOK(e.claim(alice, 0, 2))
	e.mustOK(e.claim(alice, 5, 5))

	e.mustCode(mustResult(t)(e.svc.AdminUnclaim(e.ctx, op, e.at(0, 1))), protocol.ErrWouldSplit)
	e.mustOK(mustResult(t)(e.svc.AdminUnclaim(e.ctx, op, e.at(0, 2))))

	e.mustCode(mustResult(t)(e.svc.AdminSetOwner(e.ctx, op, e.at(0, 0), "Ghost")), protocol.ErrPlayerNotFound)
	e.mustOK(mustResult(t)(e.svc.AdminSetOwner(e.ctx, op, e.at(0, 0), "Bob")))
	if e.reg.Get(a).Owner != bob || e.reg.OwnedChunkCount(bob) != 2 || e.reg.OwnedChunkCount(alice) != 1 {
		t.Fatalf("ownership transfer not reflected")
	}
	if e.stored()[0].Owner != bob {
		t.Fatalf("owner not persisted")
	}

	res := e.mustOK(mustResult(t)(e.svc.AdminRemoveAll(e.ctx, op, "Alice")))
	if res.Count != 1 || e.reg.OwnedClaimCount(alice) != 0 {
		t.Fatalf("remove all: %+v", res)
	}
	e.mustCode(mustResult(t)(e.svc.AdminRemoveAll(e.ctx, op, "Alice")), protocol.ErrNoClaims)

	e.mustOK(mustResult(t)(e.svc.AdminRemoveClaim(e.ctx, op, e.at(0, 1))))
	if e.reg.Len() != 0 || len(e.stored()) != 0 {
		t.Fatalf("claims left after admin removal")
	}
	e.mustCode(mustResult(t)(e.svc.AdminRemoveClaim(e.ctx, op, e.at(0, 1))), protocol.ErrNotClaimed)
}
