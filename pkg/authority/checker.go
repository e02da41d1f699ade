package authority

import (
	"context"
	"database/sql"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Checker resolves principals and evaluates authority decisions.
type Checker interface {
	// PrincipalByName loads a principal with their grants
	PrincipalByName(ctx context.Context, principalName string) (*Principal, error)

	// Allowed evaluates whether a principal may perform an action
	// scoped to an institution
	Allowed(principal *Principal, action Action, institutionID int64) Decision

	// Invalidate drops a principal's cached grants after an authority
	// mutation
	Invalidate(principalName string)
}

// PostgresChecker implements Checker against the authority_grants
// table, with a bounded LRU cache of resolved principals.
type PostgresChecker struct {
	db    *sql.DB
	cache *lru.Cache[string, *Principal]
}

// NewPostgresChecker creates a new PostgresChecker. cacheSize bounds
// the number of cached principals.
func NewPostgresChecker(db *sql.DB, cacheSize int) (*PostgresChecker, error) {
	cache, err := lru.New[string, *Principal](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create authority cache: %w", err)
	}
	return &PostgresChecker{db: db, cache: cache}, nil
}

// PrincipalByName loads a principal and their institution-scoped
// grants, serving repeated lookups from the cache.
func (c *PostgresChecker) PrincipalByName(ctx context.Context, principalName string) (*Principal, error) {
	if cached, ok := c.cache.Get(principalName); ok {
		return cached, nil
	}

	principal := &Principal{PrincipalName: principalName}
	query := `
		SELECT institution_id, level, super_user
		FROM authority_grants
		WHERE LOWER(principal_name) = LOWER($1)
	`
	rows, err := c.db.QueryContext(ctx, query, principalName)
	if err != nil {
		return nil, fmt.Errorf("failed to load authority grants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var institutionID sql.NullInt64
		var levelName string
		var superUser bool
		if err := rows.Scan(&institutionID, &levelName, &superUser); err != nil {
			return nil, fmt.Errorf("failed to scan authority grant: %w", err)
		}
		if superUser {
			principal.SuperUser = true
			continue
		}
		level, err := ParseLevel(levelName)
		if err != nil {
			return nil, err
		}
		principal.Grants = append(principal.Grants, Grant{
			InstitutionID: institutionID.Int64,
			Level:         level,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load authority grants: %w", err)
	}

	c.cache.Add(principalName, principal)
	return principal, nil
}

// Allowed evaluates an action against the principal's level within the
// institution. Super users are always allowed.
func (c *PostgresChecker) Allowed(principal *Principal, action Action, institutionID int64) Decision {
	required, ok := requiredLevel[action]
	if !ok {
		return Decision{Allowed: false, Reason: fmt.Sprintf("unknown action %q", action)}
	}
	if principal == nil {
		return Decision{Allowed: false, Reason: "no principal"}
	}
	level := principal.LevelFor(institutionID)
	if level >= required {
		return Decision{Allowed: true, Reason: fmt.Sprintf("%s >= %s", level, required)}
	}
	return Decision{Allowed: false, Reason: fmt.Sprintf("%s requires %s, principal has %s", action, required, level)}
}

// Invalidate drops a cached principal
func (c *PostgresChecker) Invalidate(principalName string) {
	c.cache.Remove(principalName)
}
