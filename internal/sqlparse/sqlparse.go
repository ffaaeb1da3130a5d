// Package sqlparse translates the constrained query dialect used by the
// adapter layer into backend-native operations. The dialect covers
// single-table SELECT/INSERT/UPDATE/DELETE with '?' placeholders and at
// most one equality WHERE condition; anything else is rejected with
// ErrUnsupportedQuery so callers decompose the work into simple queries.
//
// Translation is pure and stateless: the same (query, params) pair always
// yields the same output, and nothing here touches network or storage.
package sqlparse

import (
	"fmt"
	"strings"

	"github.com/keeperhq/stockpile/pkg/types"
)

// Query is the typed intermediate representation of a parsed statement.
// Exactly one of Select, Insert, Update, or Delete implements it.
type Query interface {
	// Table returns the single table the statement addresses.
	Table() string
	// Placeholders returns the number of '?' markers the statement binds.
	Placeholders() int
}

// Equality is the single supported WHERE condition: column = ?.
// DateTrunc marks the date(col) = date(?) comparison form used for
// day-granularity lookups; only the relational backends can express it.
type Equality struct {
	Column    string
	DateTrunc bool
}

// Ordering is the optional ORDER BY clause of a Select.
type Ordering struct {
	Column     string
	Descending bool
}

// Select is SELECT cols FROM table [WHERE col = ?] [ORDER BY col [ASC|DESC]].
type Select struct {
	From    string
	Columns []string // nil means '*'
	Where   *Equality
	Order   *Ordering
}

// Insert is INSERT INTO table (c1, c2, ...) VALUES (?, ?, ...).
type Insert struct {
	Into    string
	Columns []string
}

// Update is UPDATE table SET c1 = ?, c2 = ? WHERE col = ?.
type Update struct {
	Name    string
	Columns []string
	Where   *Equality
}

// Delete is DELETE FROM table WHERE col = ?.
type Delete struct {
	From  string
	Where *Equality
}

func (s *Select) Table() string { return s.From }
func (i *Insert) Table() string { return i.Into }
func (u *Update) Table() string { return u.Name }
func (d *Delete) Table() string { return d.From }

func (s *Select) Placeholders() int {
	if s.Where != nil {
		return 1
	}
	return 0
}

func (i *Insert) Placeholders() int { return len(i.Columns) }

func (u *Update) Placeholders() int {
	n := len(u.Columns)
	if u.Where != nil {
		n++
	}
	return n
}

func (d *Delete) Placeholders() int {
	if d.Where != nil {
		return 1
	}
	return 0
}

// Parse tokenizes and parses query into its typed representation.
// Returns ErrUnsupportedQuery (wrapped with position detail) for any shape
// outside the dialect.
func Parse(query string) (Query, error) {
	toks, err := tokenize(query)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}

	var q Query
	switch {
	case p.acceptKeyword("SELECT"):
		q, err = p.parseSelect()
	case p.acceptKeyword("INSERT"):
		q, err = p.parseInsert()
	case p.acceptKeyword("UPDATE"):
		q, err = p.parseUpdate()
	case p.acceptKeyword("DELETE"):
		q, err = p.parseDelete()
	default:
		return nil, fmt.Errorf("%w: statement must start with SELECT, INSERT, UPDATE, or DELETE", types.ErrUnsupportedQuery)
	}
	if err != nil {
		return nil, err
	}

	p.acceptPunct(";")
	if !p.eof() {
		return nil, fmt.Errorf("%w: trailing tokens after statement: %q", types.ErrUnsupportedQuery, p.peek().text)
	}
	return q, nil
}

// CheckParams validates that len(params) matches the statement's
// placeholder count. This is a contract precondition: a mismatch fails the
// operation rather than being logged and tolerated.
func CheckParams(q Query, params []any) error {
	want := q.Placeholders()
	if len(params) != want {
		return fmt.Errorf("%w: %d placeholders, %d params", types.ErrParamCount, want, len(params))
	}
	return nil
}

// token kinds.
const (
	tokWord  = iota // identifier or keyword
	tokPunct        // ( ) , = ; * ?
)

type token struct {
	kind int
	text string
}

func tokenize(query string) ([]token, error) {
	var toks []token
	s := query
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isWordByte(c):
			j := i
			for j < len(s) && isWordByte(s[j]) {
				j++
			}
			toks = append(toks, token{tokWord, s[i:j]})
			i = j
		case strings.IndexByte("(),=;*?", c) >= 0:
			toks = append(toks, token{tokPunct, string(c)})
			i++
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", types.ErrUnsupportedQuery, string(c))
		}
	}
	return toks, nil
}

func isWordByte(c byte) bool {
	return c == '_' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) eof() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() token {
	if p.eof() {
		return token{}
	}
	return p.toks[p.pos]
}

func (p *parser) acceptKeyword(kw string) bool {
	if !p.eof() && p.toks[p.pos].kind == tokWord && strings.EqualFold(p.toks[p.pos].text, kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) acceptPunct(text string) bool {
	if !p.eof() && p.toks[p.pos].kind == tokPunct && p.toks[p.pos].text == text {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectIdent(what string) (string, error) {
	if p.eof() || p.toks[p.pos].kind != tokWord {
		return "", fmt.Errorf("%w: expected %s", types.ErrUnsupportedQuery, what)
	}
	id := p.toks[p.pos].text
	p.pos++
	return id, nil
}

func (p *parser) expectPunct(text, what string) error {
	if !p.acceptPunct(text) {
		return fmt.Errorf("%w: expected %s", types.ErrUnsupportedQuery, what)
	}
	return nil
}

func (p *parser) parseSelect() (Query, error) {
	sel := &Select{}

	if p.acceptPunct("*") {
		sel.Columns = nil
	} else {
		for {
			col, err := p.expectIdent("select column")
			if err != nil {
				return nil, err
			}
			sel.Columns = append(sel.Columns, col)
			if !p.acceptPunct(",") {
				break
			}
		}
	}

	if !p.acceptKeyword("FROM") {
		return nil, fmt.Errorf("%w: expected FROM", types.ErrUnsupportedQuery)
	}
	table, err := p.expectIdent("table name")
	if err != nil {
		return nil, err
	}
	sel.From = table

	if p.acceptKeyword("WHERE") {
		sel.Where, err = p.parseEquality()
		if err != nil {
			return nil, err
		}
	}

	if p.acceptKeyword("ORDER") {
		if !p.acceptKeyword("BY") {
			return nil, fmt.Errorf("%w: expected BY after ORDER", types.ErrUnsupportedQuery)
		}
		col, err := p.expectIdent("order column")
		if err != nil {
			return nil, err
		}
		ord := &Ordering{Column: col}
		if p.acceptKeyword("DESC") {
			ord.Descending = true
		} else {
			p.acceptKeyword("ASC")
		}
		sel.Order = ord
	}

	return sel, nil
}

func (p *parser) parseInsert() (Query, error) {
	if !p.acceptKeyword("INTO") {
		return nil, fmt.Errorf("%w: expected INTO", types.ErrUnsupportedQuery)
	}
	table, err := p.expectIdent("table name")
	if err != nil {
		return nil, err
	}
	ins := &Insert{Into: table}

	if err := p.expectPunct("(", "column list"); err != nil {
		return nil, err
	}
	for {
		col, err := p.expectIdent("insert column")
		if err != nil {
			return nil, err
		}
		ins.Columns = append(ins.Columns, col)
		if !p.acceptPunct(",") {
			break
		}
	}
	if err := p.expectPunct(")", "end of column list"); err != nil {
		return nil, err
	}

	if !p.acceptKeyword("VALUES") {
		return nil, fmt.Errorf("%w: expected VALUES", types.ErrUnsupportedQuery)
	}
	if err := p.expectPunct("(", "values list"); err != nil {
		return nil, err
	}
	marks := 0
	for {
		if err := p.expectPunct("?", "placeholder in VALUES"); err != nil {
			return nil, err
		}
		marks++
		if !p.acceptPunct(",") {
			break
		}
	}
	if err := p.expectPunct(")", "end of values list"); err != nil {
		return nil, err
	}
	if marks != len(ins.Columns) {
		return nil, fmt.Errorf("%w: %d columns, %d value placeholders", types.ErrParamCount, len(ins.Columns), marks)
	}

	return ins, nil
}

func (p *parser) parseUpdate() (Query, error) {
	table, err := p.expectIdent("table name")
	if err != nil {
		return nil, err
	}
	upd := &Update{Name: table}

	if !p.acceptKeyword("SET") {
		return nil, fmt.Errorf("%w: expected SET", types.ErrUnsupportedQuery)
	}
	for {
		col, err := p.expectIdent("set column")
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("=", "'=' in SET"); err != nil {
			return nil, err
		}
		if err := p.expectPunct("?", "placeholder in SET"); err != nil {
			return nil, err
		}
		upd.Columns = append(upd.Columns, col)
		if !p.acceptPunct(",") {
			break
		}
	}

	if !p.acceptKeyword("WHERE") {
		return nil, fmt.Errorf("%w: UPDATE requires a WHERE clause", types.ErrUnsupportedQuery)
	}
	upd.Where, err = p.parseEquality()
	if err != nil {
		return nil, err
	}

	return upd, nil
}

func (p *parser) parseDelete() (Query, error) {
	if !p.acceptKeyword("FROM") {
		return nil, fmt.Errorf("%w: expected FROM", types.ErrUnsupportedQuery)
	}
	table, err := p.expectIdent("table name")
	if err != nil {
		return nil, err
	}
	del := &Delete{From: table}

	if !p.acceptKeyword("WHERE") {
		return nil, fmt.Errorf("%w: DELETE requires a WHERE clause", types.ErrUnsupportedQuery)
	}
	del.Where, err = p.parseEquality()
	if err != nil {
		return nil, err
	}

	return del, nil
}

// parseEquality parses "col = ?" or "date(col) = date(?)" / "date(col) = ?".
func (p *parser) parseEquality() (*Equality, error) {
	eq := &Equality{}

	id, err := p.expectIdent("condition column")
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(id, "date") && p.acceptPunct("(") {
		eq.DateTrunc = true
		eq.Column, err = p.expectIdent("date() column")
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")", "end of date()"); err != nil {
			return nil, err
		}
	} else {
		eq.Column = id
	}

	if err := p.expectPunct("=", "'=' in WHERE"); err != nil {
		return nil, err
	}

	if eq.DateTrunc && p.acceptKeyword("date") {
		if err := p.expectPunct("(", "date() on right side"); err != nil {
			return nil, err
		}
		if err := p.expectPunct("?", "placeholder in date()"); err != nil {
			return nil, err
		}
		if err := p.expectPunct(")", "end of date()"); err != nil {
			return nil, err
		}
		return eq, nil
	}

	if err := p.expectPunct("?", "placeholder in WHERE"); err != nil {
		return nil, err
	}
	return eq, nil
}
