package territory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"bonfire.gg/internal/claims"
	"bonfire.gg/internal/grid"
	"bonfire.gg/internal/protocol"
)

// Rule names accepted by SetRule.
const (
	RuleAllowBlockBreak     = "allowBlockBreak"
	RuleAllowBlockInteract  = "allowBlockInteract"
	RuleAllowEntityInteract = "allowEntityInteract"
)

// ApplyRule returns rules with name set to value. Boolean rules take "true"
// or "false"; allowEntityInteract also takes "onlyMounts".
func ApplyRule(rules claims.Rules, name, value string) (claims.Rules, error) {
	switch name {
	case RuleAllowBlockBreak, RuleAllowBlockInteract:
		b, err := parseBool(value)
		if err != nil {
			return rules, fmt.Errorf("%s: %w", name, err)
		}
		if name == RuleAllowBlockBreak {
			rules.AllowBlockBreak = b
		} else {
			rules.AllowBlockInteract = b
		}
	case RuleAllowEntityInteract:
		r, ok := claims.ParseEntityRule(value)
		if !ok {
			return rules, fmt.Errorf("%s must be true, false or onlyMounts, got %q", name, value)
		}
		rules.AllowEntityInteract = r
	default:
		return rules, fmt.Errorf("unknown rule %q", name)
	}
	return rules, nil
}

// parseBool accepts exactly "true" and "false".
func parseBool(v string) (bool, error) {
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("want true or false, got %q", v)
}

// SetRule changes one rule of the claim at p. Callers check that actor owns
// the claim.
func (s *Service) SetRule(ctx context.Context, actor uuid.UUID, p grid.ChunkPos, name, value string) (Result, error) {
	c := s.reg.At(p)
	if c == nil {
		return reject(protocol.ErrNotClaimed, "You aren't inside a claim."), nil
	}
	next, err := ApplyRule(c.Rules, name, value)
	if err != nil {
		return reject(protocol.ErrBadRule, err.Error()), nil
	}
	if err := s.store.UpdateRules(ctx, c.ID, next); err != nil {
		return Result{}, fmt.Errorf("update rules of claim %d: %w", c.ID, err)
	}
	c.Rules = next
	s.record(actor, "SET_RULE", p, c.ID, map[string]any{"rule": name, "value": value})
	return ok(c.ID, fmt.Sprintf("Set %s to %s.", name, value)), nil
}

// AddTrust grants target trust of the given kind ("always" or "whileOnline")
// on the claim at p.
func (s *Service) AddTrust(ctx context.Context, actor uuid.UUID, p grid.ChunkPos, target, kind string) (Result, error) {
	c := s.reg.At(p)
	if c == nil {
		return reject(protocol.ErrNotClaimed, "You aren't inside a claim."), nil
	}
	k, valid := claims.ParseTrustKind(kind)
	if !valid {
		return reject(protocol.ErrBadRequest, fmt.Sprintf("unknown trust kind %q", kind)), nil
	}
	id, found := s.players.Resolve(target)
	if !found {
		return reject(protocol.ErrPlayerNotFound, "This player wasn't found. They have to join once before they can be added to claims."), nil
	}
	if c.IsTrusted(id) {
		return reject(protocol.ErrAlreadyTrusted, "This player was added already, nothing changed."), nil
	}
	if err := s.store.AddTrust(ctx, c.ID, id, k); err != nil {
		return Result{}, fmt.Errorf("add trust to claim %d: %w", c.ID, err)
	}
	c.AddTrust(id, k)
	s.record(actor, "ADD_TRUST", p, c.ID, map[string]any{"player": id.String(), "kind": k.String()})
	return ok(c.ID, fmt.Sprintf("Added %s to the claim.", target)), nil
}

// RemoveTrust revokes any trust target holds on the claim at p.
func (s *Service) RemoveTrust(ctx context.Context, actor uuid.UUID, p grid.ChunkPos, target string) (Result, error) {
	c := s.reg.At(p)
	if c == nil {
		return reject(protocol.ErrNotClaimed, "You aren't inside a claim."), nil
	}
	id, found := s.players.Resolve(target)
	if !found {
		return reject(protocol.ErrPlayerNotFound, "This player wasn't found."), nil
	}
	if !c.IsTrusted(id) {
		return reject(protocol.ErrNotTrusted, "This player isn't added to the claim, nothing changed."), nil
	}
	if err := s.store.RemoveTrust(ctx, c.ID, id); err != nil {
		return Result{}, fmt.Errorf("remove trust from claim %d: %w", c.ID, err)
	}
	c.RemoveTrust(id)
	s.record(actor, "REMOVE_TRUST", p, c.ID, map[string]any{"player": id.String()})
	return ok(c.ID, fmt.Sprintf("Removed %s from the claim.", target)), nil
}
