package query

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"multiview/pkg/common"
)

// SelectStmt is a parsed point query:
// SELECT * FROM <table> WHERE <field> = <value> [AND <field> = <value>]...
type SelectStmt struct {
	Table string
	Where []Cond
}

// Cond is one equality predicate. Value holds an int64 or a string.
type Cond struct {
	Field common.Field
	Value any
}

var (
	headRe = regexp.MustCompile(`(?is)^SELECT\s+\*\s+FROM\s+([a-zA-Z_][a-zA-Z0-9_]*)(?:\s+WHERE\s+(.*))?$`)
	condRe = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_]*)\s*(=|!=|>=|<=|>|<)\s*('(?:[^']|'')*'|"(?:[^"]|"")*"|-?\d+)\s*`)
	andRe  = regexp.MustCompile(`(?i)^AND\s+`)
)

// Parse parses simple point queries:
// "SELECT * FROM persons WHERE name = 'Bob'"
// "SELECT * FROM persons WHERE age = 30 AND nickname = \"Bobby\""
// Only equality predicates joined by AND are accepted. Strings are single or
// double quoted; a doubled quote inside a string stands for one quote.
func Parse(s string) (*SelectStmt, error) {
	orig := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ";"))
	if orig == "" {
		return nil, errors.New("empty query")
	}

	matches := headRe.FindStringSubmatch(orig)
	if matches == nil {
		return nil, errors.New("syntax: expected SELECT * FROM <table> WHERE <field> = <value> [AND ...]")
	}
	stmt := &SelectStmt{Table: matches[1]}

	rest := strings.TrimSpace(matches[2])
	if rest == "" {
		return nil, errors.New("missing WHERE clause: only point lookups are supported")
	}

	seen := make(map[common.Field]struct{})
	for {
		m := condRe.FindStringSubmatch(rest)
		if m == nil {
			return nil, fmt.Errorf("syntax: bad predicate near %q", rest)
		}
		field, err := common.ParseField(m[1])
		if err != nil {
			return nil, err
		}
		if m[2] != "=" {
			return nil, fmt.Errorf("operator %q not supported: only equality predicates", m[2])
		}
		if _, dup := seen[field]; dup {
			return nil, fmt.Errorf("field %q constrained twice", field)
		}
		seen[field] = struct{}{}

		val, err := parseLiteral(m[3])
		if err != nil {
			return nil, err
		}
		stmt.Where = append(stmt.Where, Cond{Field: field, Value: val})

		rest = rest[len(m[0]):]
		if rest == "" {
			break
		}
		loc := andRe.FindStringIndex(rest)
		if loc == nil {
			return nil, fmt.Errorf("syntax: expected AND near %q", rest)
		}
		rest = rest[loc[1]:]
	}

	return stmt, nil
}

func parseLiteral(lit string) (any, error) {
	switch lit[0] {
	case '\'', '"':
		q := lit[:1]
		return strings.ReplaceAll(lit[1:len(lit)-1], q+q, q), nil
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid integer %q", lit)
	}
	return n, nil
}

// Fields returns the constrained fields in predicate order.
func (stmt *SelectStmt) Fields() []common.Field {
	out := make([]common.Field, len(stmt.Where))
	for i, c := range stmt.Where {
		out[i] = c.Field
	}
	return out
}

// ValuesFor reorders the predicate values to follow fields. It reports false
// unless the predicates constrain exactly that set of fields.
func (stmt *SelectStmt) ValuesFor(fields []common.Field) ([]any, bool) {
	if len(fields) != len(stmt.Where) {
		return nil, false
	}
	out := make([]any, len(fields))
	for i, f := range fields {
		found := false
		for _, c := range stmt.Where {
			if c.Field == f {
				out[i] = c.Value
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return out, true
}
