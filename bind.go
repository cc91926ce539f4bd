package dqueue

import (
	"fmt"
	"maps"
	"os"
	"regexp"
	"strings"
	"sync"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Bind represents a set of variables which are substituted into a query
// string before it is sent to a store. Values which come from outside the
// process should be passed as query arguments instead.
type Bind struct {
	sync.RWMutex
	vars map[string]any
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

var (
	reIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
	reNumeric    = regexp.MustCompile(`^[0-9]+$`)
)

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewBind creates a new Bind object with the given name/value pairs.
// Returns nil if the number of arguments is not even, or a name is empty.
func NewBind(pairs ...any) *Bind {
	if len(pairs)%2 != 0 {
		return nil
	}

	// Populate the vars map
	vars := make(map[string]any, len(pairs)>>1)
	for i := 0; i < len(pairs); i += 2 {
		if key, ok := pairs[i].(string); !ok || key == "" {
			return nil
		} else {
			vars[key] = pairs[i+1]
		}
	}

	// Return the Bind object
	return &Bind{vars: vars}
}

// Copy creates a copy of the bind object with additional name/value pairs.
func (bind *Bind) Copy(pairs ...any) *Bind {
	if len(pairs)%2 != 0 {
		return nil
	}

	// Lock before copying
	bind.RLock()
	varsCopy := make(map[string]any, len(bind.vars)+(len(pairs)>>1))
	maps.Copy(varsCopy, bind.vars)
	bind.RUnlock()

	for i := 0; i < len(pairs); i += 2 {
		if key, ok := pairs[i].(string); !ok || key == "" {
			return nil
		} else {
			varsCopy[key] = pairs[i+1]
		}
	}

	// Return the copied Bind object
	return &Bind{vars: varsCopy}
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Set sets a bind var and returns the key
func (bind *Bind) Set(key string, value any) string {
	bind.Lock()
	defer bind.Unlock()

	if key == "" {
		return ""
	}
	bind.vars[key] = value
	return key
}

// Get returns a bind var by key
func (bind *Bind) Get(key string) any {
	bind.RLock()
	defer bind.RUnlock()
	return bind.vars[key]
}

// Has returns true if there is a bind var with the given key
func (bind *Bind) Has(key string) bool {
	bind.RLock()
	defer bind.RUnlock()

	_, ok := bind.vars[key]
	return ok
}

// Replace returns a query string with ${subtitution} replaced by the values:
//   - ${key} => value
//   - ${'key'} => 'value', or 'a','b' when the value is a []string
//   - ${"key"} => "value"
//   - ${`key`} => `value`
//   - $1 => $1
//   - $$ => $$
func (bind *Bind) Replace(query string) string {
	bind.RLock()
	defer bind.RUnlock()
	return replace(query, bind.vars)
}

// Query returns the named query with the bind vars substituted. The named
// query is expected to be a bind var itself, usually loaded with WithQueries.
func (bind *Bind) Query(key string) string {
	bind.RLock()
	defer bind.RUnlock()
	return replace(fmt.Sprint(bind.vars[key]), bind.vars)
}

// WithQueries sets the queries as bind vars, so they can be referenced by key
func (bind *Bind) WithQueries(queries ...*Queries) *Bind {
	bind.Lock()
	defer bind.Unlock()
	for _, q := range queries {
		for _, key := range q.Keys() {
			bind.vars[key] = q.Get(key)
		}
	}
	return bind
}

// ValidIdentifier returns true if the name can be used as a table or type
// name in any of the stores without further escaping
func ValidIdentifier(name string) bool {
	return reIdentifier.MatchString(name)
}

// Quote returns a single-quoted string literal
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// DoubleQuote returns a double-quoted identifier
func DoubleQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// BackQuote returns a backtick-quoted identifier
func BackQuote(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func replace(query string, vars map[string]any) string {
	fetch := func(key string) string {
		return fmt.Sprint(vars[key])
	}
	return os.Expand(query, func(key string) string {
		switch {
		case key == "$": // $$ => $$
			return "$$"
		case reNumeric.MatchString(key): // $1 => $1
			return "$" + key
		case isQuoted(key, '\''): // ${'key'} => 'value'
			key := strings.Trim(key, "'")
			switch v := vars[key].(type) {
			case []string:
				result := make([]string, len(v))
				for i, s := range v {
					result[i] = Quote(s)
				}
				return strings.Join(result, ",")
			default:
				return Quote(fetch(key))
			}
		case isQuoted(key, '"'): // ${"key"} => "value"
			return DoubleQuote(fetch(strings.Trim(key, `"`)))
		case isQuoted(key, '`'): // ${`key`} => `value`
			return BackQuote(fetch(strings.Trim(key, "`")))
		}
		return fetch(key) // ${key} => value
	})
}

func isQuoted(key string, q byte) bool {
	return len(key) >= 2 && key[0] == q && key[len(key)-1] == q
}
