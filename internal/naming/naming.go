// Package naming converts declared entity and field names into their
// wire and storage forms.
package naming

import "strings"

// SnakeCase converts a CamelCase or mixedCase name to snake_case.
func SnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			// Add underscore if:
			// 1. Previous char was lowercase (camelCase boundary)
			// 2. Next char is lowercase and current is uppercase (acronym end)
			// 3. Previous char was uppercase AND current is uppercase (acronym)
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
				result = append(result, '_')
			} else if prev >= 'A' && prev <= 'Z' {
				result = append(result, '_')
			}
		}
		// Convert uppercase to lowercase
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}

	return string(result)
}

// RoutePrefix derives an entity's URL namespace from its declared name:
// snake_case with leading underscores stripped.
func RoutePrefix(name string) string {
	return strings.TrimLeft(SnakeCase(name), "_")
}

// TableName derives an entity's storage table name. Unlike RoutePrefix it
// keeps a leading underscore, so private-by-convention entities stay
// distinguishable in the database.
func TableName(name string) string {
	return SnakeCase(name)
}
