package acl

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kalendlab/admin-core/internal/cache"
)

// abilityKeyPrefix keys the per-user ability set in the fast KV cache.
const abilityKeyPrefix = "api:"

// DefaultAbilityTTL bounds how long a cached ability set survives without a
// fresh resolution (login writes through on every call).
const DefaultAbilityTTL = 24 * time.Hour

// AbilityKey returns the cache key holding the user's ability set.
func AbilityKey(userID string) string {
	return abilityKeyPrefix + strings.TrimSpace(userID)
}

// Ability is one parsed "<menu-path>:<permission-code>" token.
type Ability struct {
	Path string
	Code string
}

// ParseAbility splits an ability string at its last colon. Tokens without a
// colon or with an empty side are rejected.
func ParseAbility(s string) (Ability, bool) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return Ability{}, false
	}
	return Ability{Path: s[:i], Code: strings.ToLower(s[i+1:])}, true
}

// Allows reports whether the ability grants the request. The code must equal
// the lowercased verb and the ability's path template must match the request
// path (with the global API prefix already trimmed by the caller). Malformed
// templates never match.
func (a Ability) Allows(method Method, path string) bool {
	if a.Code != strings.ToLower(string(method)) {
		return false
	}
	re := compiledPattern(a.Path)
	if re == nil {
		return false
	}
	return re.MatchString(path)
}

// compiledPatterns memoizes ability path templates. The same small set of
// templates recurs on every authorized request, so each distinct template is
// compiled once for the process lifetime. Malformed templates memoize as nil.
var compiledPatterns sync.Map

func compiledPattern(path string) *regexp.Regexp {
	canonical := CanonicalPath(path)
	if v, ok := compiledPatterns.Load(canonical); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}
	re, err := CompilePattern(canonical)
	if err != nil {
		re = nil
	}
	compiledPatterns.Store(canonical, re)
	return re
}

// AbilityCache is the write-through store of flattened ability strings keyed
// "api:<userId>", shared by the menu tree resolver (writer) and the ACL
// middleware (reader).
type AbilityCache struct {
	store cache.Store
	ttl   time.Duration
}

// NewAbilityCache wraps a cache store. A nil store yields a nil cache, which
// every method tolerates.
func NewAbilityCache(store cache.Store, ttl time.Duration) *AbilityCache {
	if store == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultAbilityTTL
	}
	return &AbilityCache{store: store, ttl: ttl}
}

// Put replaces the user's cached ability set with a JSON-serialized array.
func (c *AbilityCache) Put(ctx context.Context, userID string, abilities []string) error {
	if c == nil {
		return fmt.Errorf("acl: ability cache not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("acl: user id is required")
	}
	if abilities == nil {
		abilities = []string{}
	}

	payload, err := json.Marshal(abilities)
	if err != nil {
		return fmt.Errorf("acl: encode abilities: %w", err)
	}
	return c.store.Set(ctx, AbilityKey(userID), payload, c.ttl)
}

// Fetch loads the user's cached ability set. A missing key reports found=false
// with no error.
func (c *AbilityCache) Fetch(ctx context.Context, userID string) ([]string, bool, error) {
	if c == nil {
		return nil, false, nil
	}

	data, found, err := c.store.Get(ctx, AbilityKey(userID))
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	var abilities []string
	if err := json.Unmarshal(data, &abilities); err != nil {
		return nil, false, fmt.Errorf("acl: decode abilities: %w", err)
	}
	return abilities, true, nil
}

// Drop discards the user's cached ability set, e.g. at logout or after a
// permission rebind.
func (c *AbilityCache) Drop(ctx context.Context, userID string) error {
	if c == nil {
		return nil
	}
	return c.store.Delete(ctx, AbilityKey(userID))
}
