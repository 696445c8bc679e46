package salesforce

import "strings"

var soqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	`"`, `\"`,
)

// quote renders s as a SOQL string literal.
func quote(s string) string {
	return "'" + soqlEscaper.Replace(s) + "'"
}

// inList renders a SOQL IN (...) operand.
func inList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, quote(v))
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}
