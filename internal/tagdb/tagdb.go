package tagdb

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/logging"

	"github.com/arbovm/levenshtein"
)

var log = logging.For("tagdb")

// Entry is one canonical tag.
type Entry struct {
	Name        string   `json:"name"`
	Category    int      `json:"category"`
	Description string   `json:"description,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
}

// RowError describes a source row that was skipped.
type RowError struct {
	Line   int
	Reason string
}

func (r RowError) String() string {
	return fmt.Sprintf("line %d: %s", r.Line, r.Reason)
}

type key struct {
	text  string
	entry int
}

// Database is an immutable tag lookup table.
type Database struct {
	entries []Entry
	names   []key // sorted by text
	aliases []key // sorted by text, then canonical name
	byName  map[string]int
	byAlias map[string]int
	skipped []RowError
}

// Normalize lowercases s, trims it and replaces spaces with underscores.
func Normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

// New builds a database from entries. Entries with an empty name are dropped
// and later duplicates of a name are ignored.
func New(entries []Entry) *Database {
	db := &Database{
		byName:  make(map[string]int, len(entries)),
		byAlias: make(map[string]int),
	}
	for _, e := range entries {
		db.add(e, 0)
	}
	db.index()
	return db
}

func (db *Database) add(e Entry, line int) bool {
	k := Normalize(e.Name)
	if k == "" {
		db.skip(line, "empty tag name")
		return false
	}
	if _, dup := db.byName[k]; dup {
		db.skip(line, fmt.Sprintf("duplicate tag %q", e.Name))
		return false
	}
	idx := len(db.entries)
	aliases := make([]string, 0, len(e.Aliases))
	for _, a := range e.Aliases {
		a = strings.TrimSpace(a)
		if a != "" {
			aliases = append(aliases, a)
		}
	}
	e.Name = strings.TrimSpace(e.Name)
	e.Aliases = aliases
	db.entries = append(db.entries, e)
	db.byName[k] = idx
	return true
}

func (db *Database) skip(line int, reason string) {
	if line > 0 {
		log.Warn("skipping line %d: %s", line, reason)
	}
	db.skipped = append(db.skipped, RowError{Line: line, Reason: reason})
}

func (db *Database) index() {
	db.names = make([]key, 0, len(db.entries))
	for i, e := range db.entries {
		db.names = append(db.names, key{text: Normalize(e.Name), entry: i})
		for _, a := range e.Aliases {
			ak := Normalize(a)
			db.aliases = append(db.aliases, key{text: ak, entry: i})
			// a canonical name always wins over an alias of the same spelling
			if _, isName := db.byName[ak]; isName {
				continue
			}
			if _, taken := db.byAlias[ak]; !taken {
				db.byAlias[ak] = i
			}
		}
	}
	sort.Slice(db.names, func(i, j int) bool { return db.names[i].text < db.names[j].text })
	sort.Slice(db.aliases, func(i, j int) bool {
		if db.aliases[i].text != db.aliases[j].text {
			return db.aliases[i].text < db.aliases[j].text
		}
		return db.entries[db.aliases[i].entry].Name < db.entries[db.aliases[j].entry].Name
	})
}

// LoadFile opens path and parses it with LoadCSV.
func LoadFile(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.DatabaseLoad("open", path, err)
	}
	defer f.Close()

	db, err := LoadCSV(f)
	if err != nil {
		var ae *apperrors.Error
		if errors.As(err, &ae) {
			ae.Path = path
		}
		return nil, err
	}
	log.Info("loaded %d tags (%d aliases) from %s", db.Len(), len(db.aliases), path)
	return db, nil
}

// Len returns the number of canonical tags
func (db *Database) Len() int { return len(db.entries) }

// Skipped returns the rows dropped while loading.
func (db *Database) Skipped() []RowError {
	out := make([]RowError, len(db.skipped))
	copy(out, db.skipped)
	return out
}

// Lookup finds a canonical tag by name or alias.
func (db *Database) Lookup(name string) (Entry, bool) {
	k := Normalize(name)
	if i, ok := db.byName[k]; ok {
		return db.entries[i], true
	}
	if i, ok := db.byAlias[k]; ok {
		return db.entries[i], true
	}
	return Entry{}, false
}

// Resolve maps an alias to its canonical name. Unknown input is returned
// unchanged.
func (db *Database) Resolve(input string) string {
	if db == nil {
		return input
	}
	if e, ok := db.Lookup(input); ok {
		return e.Name
	}
	return input
}

// Suggest returns up to limit canonical names whose name or alias starts with
// prefix. Name matches come first, then names reached only through an alias;
// each group is alphabetical.
func (db *Database) Suggest(prefix string, limit int) []string {
	p := Normalize(prefix)
	if p == "" || limit <= 0 || db == nil {
		return []string{}
	}

	out := make([]string, 0, limit)
	seen := make(map[int]bool)

	for _, k := range prefixRange(db.names, p) {
		if len(out) == limit {
			return out
		}
		seen[k.entry] = true
		out = append(out, db.entries[k.entry].Name)
	}

	var viaAlias []string
	for _, k := range prefixRange(db.aliases, p) {
		if seen[k.entry] {
			continue
		}
		seen[k.entry] = true
		viaAlias = append(viaAlias, db.entries[k.entry].Name)
	}
	sort.Strings(viaAlias)

	for _, name := range viaAlias {
		if len(out) == limit {
			break
		}
		out = append(out, name)
	}
	return out
}

func prefixRange(keys []key, prefix string) []key {
	lo := sort.Search(len(keys), func(i int) bool { return keys[i].text >= prefix })
	hi := lo
	for hi < len(keys) && strings.HasPrefix(keys[hi].text, prefix) {
		hi++
	}
	return keys[lo:hi]
}

// Closest returns the canonical name nearest to input by edit distance, if
// one is within maxDistance.
func (db *Database) Closest(input string, maxDistance int) (string, bool) {
	k := Normalize(input)
	if k == "" || db == nil {
		return "", false
	}
	best, bestDist := -1, maxDistance+1
	for _, n := range db.names {
		d := levenshtein.Distance(k, n.text)
		if d < bestDist {
			best, bestDist = n.entry, d
		}
	}
	if best < 0 {
		return "", false
	}
	return db.entries[best].Name, true
}
