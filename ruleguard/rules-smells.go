package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func smells(m dsl.Matcher) {
	// Consecutive guards returning the same value can be merged with ||.
	m.Match(`if $c1 { return $ret }; if $c2 { return $ret }`).
		Report(`two consecutive guards return the same value; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { return $ret }`)

	m.Match(`if $c1 { continue }; if $c2 { continue }`).
		Report(`two consecutive continues; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { continue }`)

	m.Match(`for $*_ { for $*_ { $*_ } }`).
		Report(`nested for-loop; consider extracting inner loop logic or reducing algorithmic complexity`)
}

func errorWrapping(m dsl.Matcher) {
	m.Match(`fmt.Errorf($format, $*_, $err)`).
		Where(m["err"].Type.Is(`error`) && !m["format"].Text.Matches(`%w`)).
		Report(`wrap $err with %w so callers can use errors.Is/As`)

	m.Match(`errors.New(fmt.Sprintf($*args))`).
		Report(`use fmt.Errorf instead of errors.New(fmt.Sprintf(...))`).
		Suggest(`fmt.Errorf($args)`)
}

func logging(m dsl.Matcher) {
	m.Match(`log.Printf($*_)`, `log.Println($*_)`, `log.Print($*_)`, `fmt.Printf($*_)`, `fmt.Println($*_)`).
		Where(m.File().PkgPath.Matches(`/internal/`)).
		Report(`use the injected *slog.Logger instead of printing`)
}

func sqlSafety(m dsl.Matcher) {
	m.Match(
		`$db.ExecContext($ctx, $q + $x, $*_)`,
		`$db.QueryContext($ctx, $q + $x, $*_)`,
		`$db.QueryRowContext($ctx, $q + $x, $*_)`,
		`sqlscan.Get($ctx, $db, $dst, $q + $x, $*_)`,
		`sqlscan.Select($ctx, $db, $dst, $q + $x, $*_)`,
	).
		Where(!m["x"].Const).
		Report(`build SQL with placeholders, not string concatenation`)
}

func contextUsage(m dsl.Matcher) {
	m.Match(`context.Background()`, `context.TODO()`).
		Where(m.File().PkgPath.Matches(`/internal/domain/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report(`domain code must use the caller's context`)
}
