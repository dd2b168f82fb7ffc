package conformance

import (
	"fmt"
	"strings"
)

// AllPassed reports whether every result in the list passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Render formats results as a plain-text report: one PASS/FAIL row per check
// in suite order, then a summary line. Output depends only on the results, so
// identical runs render identically.
func Render(results []Result) string {
	var b strings.Builder
	passed := 0
	for _, r := range results {
		status := "FAIL"
		if r.Passed {
			status = "PASS"
			passed++
		}
		fmt.Fprintf(&b, "%-4s  %-24s  %s\n", status, r.Name, r.Details)
	}
	fmt.Fprintf(&b, "\n%d/%d checks passed\n", passed, len(results))
	return b.String()
}
