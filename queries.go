package dqueue

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Queries is an ordered collection of named SQL statements. Each backend
// embeds its statements in a .sql file, where each statement is preceded
// by a comment line of the form: -- <key>
type Queries struct {
	keys    []string
	queries map[string]string
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

var (
	reQuerySeparator = regexp.MustCompile(`^--\s*([a-zA-Z0-9_.-]+)\s*$`)
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewQueries parses SQL statements from a reader. Lines before the first
// separator are ignored, and duplicate keys return ErrBadParameter.
//
// Example input format:
//
//	-- queue.insert
//	INSERT INTO queue (type, data) VALUES ($1, $2);
//
//	-- queue.count
//	SELECT COUNT(*) FROM queue;
func NewQueries(r io.Reader) (*Queries, error) {
	var key string
	var sql strings.Builder

	self := &Queries{
		queries: make(map[string]string),
	}

	// Save the statement accumulated for the current key
	flush := func() {
		if key != "" {
			self.queries[key] = strings.TrimSpace(sql.String())
			self.keys = append(self.keys, key)
		}
		sql.Reset()
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if matches := reQuerySeparator.FindStringSubmatch(line); matches == nil {
			sql.WriteString(line)
			sql.WriteString("\n")
			continue
		} else {
			flush()
			key = matches[1]
		}
		if _, exists := self.queries[key]; exists {
			return nil, ErrBadParameter.Withf("duplicate SQL statement key: %q", key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	// Return success
	return self, nil
}

// MustQueries parses SQL statements from a string, and panics on error.
// It is intended for statements embedded at compile time.
func MustQueries(sql string) *Queries {
	queries, err := NewQueries(strings.NewReader(sql))
	if err != nil {
		panic(err)
	}
	return queries
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Keys returns the statement keys in the order they were parsed
func (s *Queries) Keys() []string {
	return s.keys
}

// Get returns the statement for a key, or an empty string
func (s *Queries) Get(key string) string {
	return s.queries[key]
}
