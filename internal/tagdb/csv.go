package tagdb

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"dataset-tagger/internal/apperrors"
)

// LoadCSV parses rows of name,category[,description[,aliases]]. Malformed
// rows are skipped with a warning; a read failure returns a
// DatabaseLoadFailure and no database.
func LoadCSV(r io.Reader) (*Database, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	db := &Database{
		byName:  make(map[string]int),
		byAlias: make(map[string]int),
	}

	line := 0
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				db.skip(pe.Line, pe.Err.Error())
				continue
			}
			return nil, apperrors.DatabaseLoad("read", "", err)
		}

		entry, reason := parseRow(record)
		if reason != "" {
			db.skip(line, reason)
			continue
		}
		db.add(entry, line)
	}

	db.index()
	return db, nil
}

func parseRow(record []string) (Entry, string) {
	if len(record) < 2 {
		return Entry{}, "expected at least name and category"
	}
	name := strings.TrimSpace(record[0])
	if name == "" {
		return Entry{}, "empty tag name"
	}
	category, err := strconv.Atoi(strings.TrimSpace(record[1]))
	if err != nil {
		return Entry{}, "category is not a number: " + record[1]
	}

	e := Entry{Name: name, Category: category}
	if len(record) > 2 {
		e.Description = strings.TrimSpace(record[2])
	}
	if len(record) > 3 && strings.TrimSpace(record[3]) != "" {
		e.Aliases = strings.Split(record[3], ",")
	}
	return e, ""
}
