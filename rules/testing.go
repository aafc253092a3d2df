//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// TestingContext flags context.Background() and context.TODO() in tests.
// t.Context() is canceled when the test ends, which stops sessions and
// publishers started by the test.
func TestingContext(m dsl.Matcher) {
	m.Match(
		`$ctx := context.Background()`,
		`$ctx = context.Background()`,
		`$ctx := context.TODO()`,
		`$ctx = context.TODO()`,
	).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("in tests, use t.Context() instead")
}

// BenchmarkLoop flags b.N loops.
func BenchmarkLoop(m dsl.Matcher) {
	m.Match(`for $i := 0; $i < $b.N; $i++ { $*body }`).
		Where(m["b"].Type.Is("*testing.B")).
		Report("use for $b.Loop() { ... }")

	m.Match(`for range $b.N { $*body }`).
		Where(m["b"].Type.Is("*testing.B")).
		Report("use for $b.Loop() { ... }").
		Suggest("for $b.Loop() { $body }")
}

// WaitForChannel flags hand-rolled channel timeouts in tests.
func WaitForChannel(m dsl.Matcher) {
	m.Match(`select { case <-$ch: ; case <-time.After($d): $*_ }`).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("use testutil.WaitForChannel($ch, ...)")
}
