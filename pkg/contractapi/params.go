package contractapi

// ExtractParameters returns the distinct `:identifier` tokens of query in
// first-occurrence order, without the leading colon. An identifier is a run
// of ASCII letters, digits and underscores. Quoting and comments are not
// interpreted.
func ExtractParameters(query string) []string {
	var out []string
	seen := make(map[string]struct{})
	for i := 0; i < len(query); i++ {
		if query[i] != ':' {
			continue
		}
		j := i + 1
		for j < len(query) && isIdentByte(query[j]) {
			j++
		}
		if j == i+1 {
			continue
		}
		name := query[i+1 : j]
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			out = append(out, name)
		}
		i = j - 1
	}
	return out
}

// ExtractAllParameters merges the parameters of the main query and the given
// variable queries, main query first, keeping first-seen order.
func ExtractAllParameters(mainQuery string, variableQueries []string) []string {
	out := ExtractParameters(mainQuery)
	seen := make(map[string]struct{}, len(out))
	for _, name := range out {
		seen[name] = struct{}{}
	}
	for _, q := range variableQueries {
		for _, name := range ExtractParameters(q) {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

func isIdentByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
