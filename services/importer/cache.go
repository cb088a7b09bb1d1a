package importer

// resolutionCache memoizes property resolution for the duration of one
// import call. It never spans transactions, so visibility of partially
// committed rows is a non-issue.
//
// Keys are a plain struct type: a hostile property code ("__proto__",
// "constructor", "toString") is just another string value and cannot collide
// with, or redirect, map lookups.
type cacheKey struct {
	system string
	code   string
}

type resolvedProperty struct {
	ID             int64
	IsRelationship bool
}

type resolutionCache struct {
	entries map[cacheKey]resolvedProperty
}

func newResolutionCache() *resolutionCache {
	return &resolutionCache{
		entries: make(map[cacheKey]resolvedProperty),
	}
}

func (c *resolutionCache) get(systemURL, code string) (resolvedProperty, bool) {
	r, ok := c.entries[cacheKey{system: systemURL, code: code}]
	return r, ok
}

func (c *resolutionCache) put(systemURL, code string, r resolvedProperty) {
	c.entries[cacheKey{system: systemURL, code: code}] = r
}
