// Package acl implements the permission engine for Responsibility Centres:
// ownership checks, effective-access computation across direct and group
// grants, and owner-only grant lifecycle operations.
package acl

import (
	"context"
	"fmt"
	"time"

	"github.com/cccs-paul/rcbudget/pkg/centre"
	"github.com/cccs-paul/rcbudget/pkg/directory"
	"github.com/cccs-paul/rcbudget/pkg/observability"
	"github.com/cccs-paul/rcbudget/pkg/principal"
)

// Engine answers authorization questions for Responsibility Centres and
// mutates the grant table on behalf of centre owners. Requesters are plain
// identifier strings; authentication is the caller's responsibility.
type Engine struct {
	centres     *centre.Store
	principals  *principal.Resolver
	grants      *Store
	directory   directory.Lookup
	searchLimit int
	cache       *AccessCache
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// EngineConfig wires an Engine's collaborators. Directory, Cache, and
// Metrics are optional; a nil Directory means unknown identifiers cannot
// receive user grants.
type EngineConfig struct {
	Centres              *centre.Store
	Principals           *principal.Resolver
	Grants               *Store
	Directory            directory.Lookup
	DirectorySearchLimit int
	Cache                *AccessCache
	Logger               *observability.Logger
	Metrics              *observability.Metrics
}

// NewEngine creates a permission engine
func NewEngine(cfg EngineConfig) *Engine {
	limit := cfg.DirectorySearchLimit
	if limit <= 0 {
		limit = directory.DefaultSearchLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Engine{
		centres:     cfg.Centres,
		principals:  cfg.Principals,
		grants:      cfg.Grants,
		directory:   cfg.Directory,
		searchLimit: limit,
		cache:       cfg.Cache,
		logger:      logger,
		metrics:     cfg.Metrics,
	}
}

func (e *Engine) recordCheck(result string, cached bool, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.AccessChecksTotal.WithLabelValues(result).Inc()
	e.metrics.AccessCheckDuration.WithLabelValues(fmt.Sprintf("%t", cached)).Observe(time.Since(start).Seconds())
}

func (e *Engine) recordMutation(operation, outcome string) {
	if e.metrics == nil {
		return
	}
	e.metrics.GrantMutationsTotal.WithLabelValues(operation, outcome).Inc()
}

func (e *Engine) recordLookup(outcome string) {
	if e.metrics == nil {
		return
	}
	e.metrics.DirectoryLookupsTotal.WithLabelValues(outcome).Inc()
}

func errNotOwner() error {
	return authorizationf("Only the owner can manage access to this responsibility centre.")
}

// duplicateGrantError builds the failure for a grant that already exists.
// The update suggestion is appended only when the requested level differs
// from the level already held.
func duplicateGrantError(principalType PrincipalType, identifier string, existing, requested AccessLevel) error {
	subject := identifier
	if label := principalType.EntityLabel(); label != "" {
		subject = label + " " + identifier
	}
	msg := fmt.Sprintf("%s already has %s access to this responsibility centre.", subject, existing)
	if requested != existing {
		msg += " Use update to change the access level."
	}
	return &ValidationError{Code: CodeDuplicate, Message: msg}
}

// IsOwner reports whether identifier is the owner of the centre, either as
// the centre's primary owner or through an explicit OWNER-level user grant.
// An absent centre yields false, never an error.
func (e *Engine) IsOwner(ctx context.Context, centreID int64, identifier string) (bool, error) {
	c, err := e.centres.FindByID(ctx, centreID)
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, nil
	}

	p, err := e.principals.Resolve(ctx, identifier)
	if err != nil {
		return false, err
	}
	if p.IsLocal() && p.Local.ID == c.OwnerID {
		return true, nil
	}

	// Explicit OWNER grants count, including for directory-only
	// principals with no local account.
	var grant *Grant
	if p.IsLocal() {
		grant, err = e.grants.ByCentreAndLocalUser(ctx, centreID, p.Local.ID)
		if err != nil {
			return false, err
		}
	}
	if grant == nil {
		grant, err = e.grants.ByCentreAndIdentifier(ctx, centreID, identifier, PrincipalUser)
		if err != nil {
			return false, err
		}
	}
	return grant != nil && grant.Level == LevelOwner, nil
}

// EffectiveAccessLevel computes the highest access level identifier holds on
// a centre across ownership, direct grants, and grants to any of the
// caller-supplied group memberships. The boolean reports whether any access
// exists at all.
func (e *Engine) EffectiveAccessLevel(ctx context.Context, centreID int64, identifier string, groups []string) (AccessLevel, bool, error) {
	start := time.Now()

	c, err := e.centres.FindByID(ctx, centreID)
	if err != nil {
		return "", false, err
	}
	if c == nil {
		e.recordCheck("none", false, start)
		return "", false, nil
	}

	p, err := e.principals.Resolve(ctx, identifier)
	if err != nil {
		return "", false, err
	}
	if p.IsLocal() && p.Local.ID == c.OwnerID {
		e.recordCheck(string(LevelOwner), false, start)
		return LevelOwner, true, nil
	}

	level, found, hit, gen := e.cache.GetLevel(ctx, centreID, identifier, groups)
	if hit {
		if e.metrics != nil {
			e.metrics.AccessCacheHitsTotal.Inc()
		}
		result := "none"
		if found {
			result = string(level)
		}
		e.recordCheck(result, true, start)
		return level, found, nil
	}
	if e.metrics != nil {
		e.metrics.AccessCacheMissesTotal.Inc()
	}

	var levels []AccessLevel

	var direct *Grant
	if p.IsLocal() {
		direct, err = e.grants.ByCentreAndLocalUser(ctx, centreID, p.Local.ID)
		if err != nil {
			return "", false, err
		}
		if direct != nil {
			levels = append(levels, direct.Level)
		}
	}

	// Match by raw identifier regardless of local resolution so directory
	// users with no local record are covered.
	byIdentifier, err := e.grants.ByCentreAndIdentifier(ctx, centreID, identifier, PrincipalUser)
	if err != nil {
		return "", false, err
	}
	if byIdentifier != nil && (direct == nil || byIdentifier.ID != direct.ID) {
		levels = append(levels, byIdentifier.Level)
	}

	groupGrants, err := e.grants.ByCentreAndGroupIdentifiers(ctx, centreID, groups)
	if err != nil {
		return "", false, err
	}
	for _, g := range groupGrants {
		levels = append(levels, g.Level)
	}

	if len(levels) == 0 {
		e.cache.SetLevel(ctx, centreID, gen, identifier, groups, "", false)
		e.recordCheck("none", false, start)
		return "", false, nil
	}

	max := levels[0]
	for _, l := range levels[1:] {
		max = MaxLevel(max, l)
	}
	e.cache.SetLevel(ctx, centreID, gen, identifier, groups, max, true)
	e.recordCheck(string(max), false, start)
	return max, true, nil
}

// CanEditContent reports whether identifier may mutate budget entities in
// the centre. Requires OWNER or READ_WRITE access.
func (e *Engine) CanEditContent(ctx context.Context, centreID int64, identifier string, groups []string) (bool, error) {
	level, found, err := e.EffectiveAccessLevel(ctx, centreID, identifier, groups)
	if err != nil {
		return false, err
	}
	return found && level.AtLeast(LevelReadWrite), nil
}

// CanManageCentre reports whether identifier may manage the centre itself,
// including its grants. Strictly narrower than CanEditContent: true
// ownership is required, READ_WRITE is not enough.
func (e *Engine) CanManageCentre(ctx context.Context, centreID int64, identifier string) (bool, error) {
	return e.IsOwner(ctx, centreID, identifier)
}

// PermissionsForCentre lists every explicit grant on a centre plus a
// synthesized entry for the centre's primary owner, which has no grant row.
// Only the owner may list.
func (e *Engine) PermissionsForCentre(ctx context.Context, centreID int64, requester string) ([]*Grant, error) {
	owner, err := e.IsOwner(ctx, centreID, requester)
	if err != nil {
		return nil, err
	}
	if !owner {
		return nil, errNotOwner()
	}

	c, err := e.centres.FindByID(ctx, centreID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, validationf(CodeNotFound, "Responsibility centre %d not found.", centreID)
	}

	grants, err := e.grants.ByCentre(ctx, centreID)
	if err != nil {
		return nil, err
	}

	ownerID := c.OwnerID
	ownerEntry := &Grant{
		CentreID:             c.ID,
		PrincipalIdentifier:  c.OwnerUsername,
		PrincipalType:        PrincipalUser,
		PrincipalDisplayName: c.OwnerDisplayName,
		LocalUserID:          &ownerID,
		Level:                LevelOwner,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}

	return append([]*Grant{ownerEntry}, grants...), nil
}

// resolveGrantTarget resolves a user-grant target to its display name and
// optional local user record. Unknown identifiers are searched in the
// directory; exactly one match is required and no local record is created
// for it.
func (e *Engine) resolveGrantTarget(ctx context.Context, identifier string) (string, *int64, error) {
	p, err := e.principals.Resolve(ctx, identifier)
	if err != nil {
		return "", nil, err
	}
	if p.IsLocal() {
		id := p.Local.ID
		return p.Local.DisplayName(), &id, nil
	}

	if e.directory == nil {
		return "", nil, validationf(CodeInvalid, "User %s could not be found.", identifier)
	}

	matches, err := e.directory.Search(ctx, identifier, e.searchLimit)
	if err != nil {
		e.recordLookup("error")
		return "", nil, fmt.Errorf("directory search for %q failed: %w", identifier, err)
	}
	if len(matches) != 1 {
		if len(matches) == 0 {
			e.recordLookup("no_match")
			return "", nil, validationf(CodeInvalid, "User %s could not be found.", identifier)
		}
		e.recordLookup("ambiguous")
		return "", nil, validationf(CodeInvalid, "User %s matched more than one directory entry.", identifier)
	}
	e.recordLookup("match")

	displayName := matches[0].DisplayName
	if displayName == "" {
		displayName = identifier
	}
	return displayName, nil, nil
}

// GrantUserAccess grants a user, local or directory-sourced, access to a
// centre. Only the centre owner may grant.
func (e *Engine) GrantUserAccess(ctx context.Context, centreID int64, requester, targetIdentifier string, level AccessLevel) (*Grant, error) {
	grant, err := e.grantAccess(ctx, centreID, requester, func(ctx context.Context) (*Grant, error) {
		displayName, localUserID, err := e.resolveGrantTarget(ctx, targetIdentifier)
		if err != nil {
			return nil, err
		}
		return &Grant{
			CentreID:             centreID,
			PrincipalIdentifier:  targetIdentifier,
			PrincipalType:        PrincipalUser,
			PrincipalDisplayName: displayName,
			LocalUserID:          localUserID,
			Level:                level,
		}, nil
	})
	if err != nil {
		e.recordMutation("grant_user", mutationOutcome(err))
		return nil, err
	}
	e.recordMutation("grant_user", "success")
	e.logger.WithFields(map[string]interface{}{
		"centre_id": centreID,
		"target":    targetIdentifier,
		"level":     string(level),
	}).Info("access granted")
	return grant, nil
}

// GrantGroupAccess grants a group or distribution list access to a centre.
// USER is rejected as a principal type here; user grants must go through
// GrantUserAccess. Only the centre owner may grant.
func (e *Engine) GrantGroupAccess(ctx context.Context, centreID int64, requester, groupIdentifier, displayName string, principalType PrincipalType, level AccessLevel) (*Grant, error) {
	grant, err := e.grantAccess(ctx, centreID, requester, func(ctx context.Context) (*Grant, error) {
		if principalType != PrincipalGroup && principalType != PrincipalDistributionList {
			return nil, validationf(CodeInvalid, "Principal type %s is not valid for a group grant.", principalType)
		}
		if displayName == "" {
			displayName = groupIdentifier
		}
		return &Grant{
			CentreID:             centreID,
			PrincipalIdentifier:  groupIdentifier,
			PrincipalType:        principalType,
			PrincipalDisplayName: displayName,
			Level:                level,
		}, nil
	})
	if err != nil {
		e.recordMutation("grant_group", mutationOutcome(err))
		return nil, err
	}
	e.recordMutation("grant_group", "success")
	e.logger.WithFields(map[string]interface{}{
		"centre_id": centreID,
		"target":    groupIdentifier,
		"type":      string(principalType),
		"level":     string(level),
	}).Info("access granted")
	return grant, nil
}

// grantAccess runs the shared grant preconditions in order: requester must
// own the centre, the centre must exist, the level must be valid, the
// target must build, and no grant may already cover the same principal. The
// storage unique constraint remains the authoritative duplicate check.
func (e *Engine) grantAccess(ctx context.Context, centreID int64, requester string, build func(context.Context) (*Grant, error)) (*Grant, error) {
	owner, err := e.IsOwner(ctx, centreID, requester)
	if err != nil {
		return nil, err
	}
	if !owner {
		return nil, errNotOwner()
	}

	c, err := e.centres.FindByID(ctx, centreID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, validationf(CodeNotFound, "Responsibility centre %d not found.", centreID)
	}

	grant, err := build(ctx)
	if err != nil {
		return nil, err
	}
	if !grant.Level.Valid() {
		return nil, validationf(CodeInvalid, "Access level %s is not valid.", grant.Level)
	}

	existing, err := e.grants.ByCentreAndIdentifier(ctx, centreID, grant.PrincipalIdentifier, grant.PrincipalType)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, duplicateGrantError(grant.PrincipalType, grant.PrincipalIdentifier, existing.Level, grant.Level)
	}

	if err := e.grants.Create(ctx, grant); err != nil {
		if err == ErrDuplicateGrant {
			// Lost the race to a concurrent grant; report the same
			// duplicate failure the pre-check would have produced.
			existing, lookupErr := e.grants.ByCentreAndIdentifier(ctx, centreID, grant.PrincipalIdentifier, grant.PrincipalType)
			if lookupErr == nil && existing != nil {
				return nil, duplicateGrantError(grant.PrincipalType, grant.PrincipalIdentifier, existing.Level, grant.Level)
			}
			return nil, duplicateGrantError(grant.PrincipalType, grant.PrincipalIdentifier, grant.Level, grant.Level)
		}
		return nil, err
	}

	if cacheErr := e.cache.Invalidate(ctx, centreID); cacheErr != nil {
		e.logger.WithError(cacheErr).WithField("centre_id", centreID).Warn("access cache invalidation failed")
	}
	return grant, nil
}

// UpdatePermission changes the access level of an existing grant. The
// requester must own the centre the grant belongs to. Updating to the
// current level is a permitted no-op.
func (e *Engine) UpdatePermission(ctx context.Context, grantID int64, requester string, newLevel AccessLevel) (*Grant, error) {
	grant, err := e.grants.GetByID(ctx, grantID)
	if err != nil {
		e.recordMutation("update", "error")
		return nil, err
	}
	if grant == nil {
		e.recordMutation("update", "not_found")
		return nil, validationf(CodeNotFound, "Access grant %d not found.", grantID)
	}

	owner, err := e.IsOwner(ctx, grant.CentreID, requester)
	if err != nil {
		e.recordMutation("update", "error")
		return nil, err
	}
	if !owner {
		e.recordMutation("update", "denied")
		return nil, errNotOwner()
	}

	if !newLevel.Valid() {
		e.recordMutation("update", "invalid")
		return nil, validationf(CodeInvalid, "Access level %s is not valid.", newLevel)
	}

	updated, err := e.grants.UpdateLevel(ctx, grantID, newLevel)
	if err != nil {
		e.recordMutation("update", "error")
		return nil, err
	}
	if updated == nil {
		e.recordMutation("update", "not_found")
		return nil, validationf(CodeNotFound, "Access grant %d not found.", grantID)
	}

	if cacheErr := e.cache.Invalidate(ctx, grant.CentreID); cacheErr != nil {
		e.logger.WithError(cacheErr).WithField("centre_id", grant.CentreID).Warn("access cache invalidation failed")
	}
	e.recordMutation("update", "success")
	e.logger.WithFields(map[string]interface{}{
		"grant_id":  grantID,
		"centre_id": grant.CentreID,
		"level":     string(newLevel),
	}).Info("access updated")
	return updated, nil
}

// RevokeAccess deletes a grant. The requester must own the centre the grant
// belongs to.
func (e *Engine) RevokeAccess(ctx context.Context, grantID int64, requester string) error {
	grant, err := e.grants.GetByID(ctx, grantID)
	if err != nil {
		e.recordMutation("revoke", "error")
		return err
	}
	if grant == nil {
		e.recordMutation("revoke", "not_found")
		return validationf(CodeNotFound, "Access grant %d not found.", grantID)
	}

	owner, err := e.IsOwner(ctx, grant.CentreID, requester)
	if err != nil {
		e.recordMutation("revoke", "error")
		return err
	}
	if !owner {
		e.recordMutation("revoke", "denied")
		return errNotOwner()
	}

	deleted, err := e.grants.Delete(ctx, grantID)
	if err != nil {
		e.recordMutation("revoke", "error")
		return err
	}
	if !deleted {
		e.recordMutation("revoke", "not_found")
		return validationf(CodeNotFound, "Access grant %d not found.", grantID)
	}

	if cacheErr := e.cache.Invalidate(ctx, grant.CentreID); cacheErr != nil {
		e.logger.WithError(cacheErr).WithField("centre_id", grant.CentreID).Warn("access cache invalidation failed")
	}
	e.recordMutation("revoke", "success")
	e.logger.WithFields(map[string]interface{}{
		"grant_id":  grantID,
		"centre_id": grant.CentreID,
	}).Info("access revoked")
	return nil
}

func mutationOutcome(err error) string {
	switch {
	case IsAuthorization(err):
		return "denied"
	case IsDuplicate(err):
		return "duplicate"
	case IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}
