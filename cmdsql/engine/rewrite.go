package engine

import (
	"fmt"
	"strings"

	"github.com/steelcutops/cmdsql/cmdsql/table"
	"github.com/steelcutops/cmdsql/common"
)

// TableCall is one table-function call found in a query.
type TableCall struct {
	Name string
	Args []table.Expr
	// Temp is the name the call was replaced with.
	Temp string
}

// clauseEnd lists keywords that end a FROM list at the current depth.
var clauseEnd = map[string]bool{
	"SELECT": true, "WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true,
	"LIMIT": true, "UNION": true, "EXCEPT": true, "INTERSECT": true, "WINDOW": true,
	"VALUES": true, "SET": true, "RETURNING": true,
}

// notAlias lists keywords that may follow a table reference and are not an alias.
var notAlias = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true, "LIMIT": true,
	"UNION": true, "EXCEPT": true, "INTERSECT": true, "WINDOW": true, "ON": true,
	"USING": true, "JOIN": true, "LEFT": true, "RIGHT": true, "FULL": true,
	"INNER": true, "OUTER": true, "CROSS": true, "NATURAL": true, "OFFSET": true,
}

// sqliteTableFunctions are table-valued functions SQLite provides itself.
var sqliteTableFunctions = map[string]bool{
	"json_each": true, "json_tree": true, "jsonb_each": true, "jsonb_tree": true,
	"generate_series": true,
}

func isSQLiteTableFunction(name string) bool {
	return sqliteTableFunctions[name] || strings.HasPrefix(name, "pragma_")
}

// Rewrite replaces every registered table in FROM or JOIN position,
// called with arguments or named bare, with a temporary table name: prefix
// followed by a sequence number. A bare name bound by a WITH clause refers
// to the common table expression and is left alone. References without an alias are aliased
// to the table name so columns like ps.pid keep working. A call to an
// unknown name in that position is an UnknownTable error.
func Rewrite(sql string, isTable func(name string) bool, prefix string) (string, []TableCall, error) {
	tokens, err := lex(sql)
	if err != nil {
		return "", nil, fmt.Errorf("engine: %w", err)
	}

	var (
		out   strings.Builder
		calls []TableCall
		from  = []bool{false}
		prev  token
		ctes  = cteNames(tokens)
	)

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if !t.significant() {
			out.WriteString(t.text)
			continue
		}

		depth := len(from) - 1
		if t.kind == tokIdent || t.kind == tokQuotedIdent {
			afterFrom := prev.keyword() == "FROM" || prev.keyword() == "JOIN" || (prev.is(",") && from[depth])
			open := nextSignificant(tokens, i+1)
			isCall := open >= 0 && tokens[open].is("(")
			name := strings.ToLower(t.name())
			if afterFrom && isCall && !isTable(name) && !isSQLiteTableFunction(name) {
				return "", nil, &common.ScanError{Kind: common.UnknownTable, Table: name, Err: fmt.Errorf("no table function named %q", t.name())}
			}
			if afterFrom && isTable(name) && (isCall || !ctes[name]) {
				var (
					args []table.Expr
					end  = i
				)
				if isCall {
					if args, end, err = parseArgs(tokens, open); err != nil {
						return "", nil, fmt.Errorf("engine: %s(...): %w", name, err)
					}
				}
				call := TableCall{Name: name, Args: args, Temp: fmt.Sprintf("%s%d", prefix, len(calls))}
				calls = append(calls, call)

				out.WriteString(quoteIdent(call.Temp))
				if !hasAlias(tokens, end+1) {
					out.WriteString(" AS ")
					out.WriteString(quoteIdent(name))
				}
				prev = tokens[end]
				i = end
				continue
			}
		}

		switch {
		case t.is("("):
			from = append(from, false)
		case t.is(")"):
			if len(from) > 1 {
				from = from[:len(from)-1]
			}
		case t.keyword() == "FROM" || t.keyword() == "JOIN":
			from[depth] = true
		case clauseEnd[t.keyword()]:
			from[depth] = false
		}

		out.WriteString(t.text)
		prev = t
	}
	return out.String(), calls, nil
}

// cteNames returns the lower-cased names bound by WITH clauses:
// `WITH [RECURSIVE] name [(columns)] AS [[NOT] MATERIALIZED] (` and the
// same form after a comma.
func cteNames(tokens []token) map[string]bool {
	names := map[string]bool{}
	for i, t := range tokens {
		if t.kind != tokIdent && t.kind != tokQuotedIdent {
			continue
		}
		p := prevSignificant(tokens, i-1)
		if p < 0 {
			continue
		}
		if k := tokens[p].keyword(); k != "WITH" && k != "RECURSIVE" && !tokens[p].is(",") {
			continue
		}

		j := nextSignificant(tokens, i+1)
		if j >= 0 && tokens[j].is("(") {
			if j = closing(tokens, j); j < 0 {
				continue
			}
			j = nextSignificant(tokens, j+1)
		}
		if j < 0 || tokens[j].keyword() != "AS" {
			continue
		}
		j = nextSignificant(tokens, j+1)
		if j >= 0 && tokens[j].keyword() == "NOT" {
			j = nextSignificant(tokens, j+1)
		}
		if j >= 0 && tokens[j].keyword() == "MATERIALIZED" {
			j = nextSignificant(tokens, j+1)
		}
		if j >= 0 && tokens[j].is("(") {
			names[strings.ToLower(t.name())] = true
		}
	}
	return names
}

// closing returns the index of the parenthesis matching tokens[open], or -1.
func closing(tokens []token, open int) int {
	depth := 0
	for i := open; i < len(tokens); i++ {
		switch {
		case tokens[i].is("("):
			depth++
		case tokens[i].is(")"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func prevSignificant(tokens []token, i int) int {
	for ; i >= 0; i-- {
		if tokens[i].significant() {
			return i
		}
	}
	return -1
}

func nextSignificant(tokens []token, i int) int {
	for ; i < len(tokens); i++ {
		if tokens[i].significant() {
			return i
		}
	}
	return -1
}

func hasAlias(tokens []token, i int) bool {
	n := nextSignificant(tokens, i)
	if n < 0 {
		return false
	}
	t := tokens[n]
	if t.keyword() == "AS" || t.kind == tokQuotedIdent {
		return true
	}
	return t.kind == tokIdent && !notAlias[t.keyword()]
}

// parseArgs reads the argument list opening at tokens[open] and returns
// the index of the closing parenthesis.
func parseArgs(tokens []token, open int) ([]table.Expr, int, error) {
	var (
		args  []table.Expr
		cur   []token
		depth int
	)
	for i := open + 1; i < len(tokens); i++ {
		t := tokens[i]
		switch {
		case t.is("("):
			depth++
		case t.is(")") && depth > 0:
			depth--
		case t.is(")"):
			if len(args) > 0 || hasSignificant(cur) {
				e, err := toExpr(cur)
				if err != nil {
					return nil, 0, err
				}
				args = append(args, e)
			}
			return args, i, nil
		case t.is(",") && depth == 0:
			e, err := toExpr(cur)
			if err != nil {
				return nil, 0, err
			}
			args = append(args, e)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
	return nil, 0, fmt.Errorf("missing closing parenthesis")
}

func hasSignificant(tokens []token) bool {
	return nextSignificant(tokens, 0) >= 0
}

// significantAt returns the positions of the significant tokens.
func significantAt(tokens []token) []int {
	var idx []int
	for i, t := range tokens {
		if t.significant() {
			idx = append(idx, i)
		}
	}
	return idx
}

// toExpr classifies one argument.
func toExpr(tokens []token) (table.Expr, error) {
	idx := significantAt(tokens)
	sig := make([]token, len(idx))
	for i, j := range idx {
		sig[i] = tokens[j]
	}
	if len(sig) == 0 {
		return nil, fmt.Errorf("empty argument")
	}

	if len(sig) == 1 {
		t := sig[0]
		switch {
		case t.kind == tokString:
			return table.Literal{Value: t.stringValue()}, nil
		case t.kind == tokNumber:
			return table.Literal{Value: t.text}, nil
		case t.keyword() == "TRUE" || t.keyword() == "FALSE":
			return table.Literal{Value: strings.ToLower(t.text)}, nil
		}
	}
	if len(sig) == 2 && (sig[0].is("-") || sig[0].is("+")) && sig[1].kind == tokNumber {
		return table.Literal{Value: strings.TrimPrefix(sig[0].text, "+") + sig[1].text}, nil
	}

	if len(sig) >= 3 && (sig[0].kind == tokIdent || sig[0].kind == tokQuotedIdent) && sig[1].is("(") && sig[len(sig)-1].is(")") {
		args, end, err := parseArgs(tokens, idx[1])
		if err == nil && nextSignificant(tokens, end+1) < 0 {
			return table.Call{Name: sig[0].name(), Args: args}, nil
		}
	}

	var text strings.Builder
	for _, t := range tokens {
		text.WriteString(t.text)
	}
	return table.Raw{Text: strings.TrimSpace(text.String())}, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
