package batchrun

import "strings"

// BuildFilter renders the OR-of-substring-match filter language the
// downstream test runner understands from a batch's filter prefixes, for
// logging and diagnostics. The wire protocol itself carries the explicit
// test identifier list (protocol.RunCmd.Tests) rather than this string;
// BuildFilter documents what the equivalent engine-native filter would
// read like.
func BuildFilter(prefixes []string) string {
	if len(prefixes) == 0 {
		return ""
	}
	clauses := make([]string, len(prefixes))
	for i, p := range prefixes {
		clauses[i] = "Name~" + escapeFilterValue(p)
	}
	return strings.Join(clauses, "|")
}

func escapeFilterValue(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r == '(' || r == ')' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
