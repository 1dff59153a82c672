package router

import "strings"

// Sanitize implements the tool-name rewriting rule from spec §4.8: keep
// [A-Za-z0-9_.-], replace other runes with '_', trim leading/trailing
// '.', map empty to '_'.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "_"
	}
	return out
}

// Namespace builds the rewritten tool name "<upstream>.<sanitize(name)>".
func Namespace(upstream, name string) string {
	return upstream + "." + Sanitize(name)
}

// SplitNamespaced resolves a namespaced tool name back into an upstream
// name and the remaining tool-name fragment, using the *longest*
// matching upstream-name prefix since upstream names may themselves
// contain '.' (spec §4.8).
func SplitNamespaced(namespaced string, knownUpstreams []string) (upstream, rest string, ok bool) {
	bestLen := -1
	for _, u := range knownUpstreams {
		prefix := u + "."
		if strings.HasPrefix(namespaced, prefix) && len(prefix) > bestLen {
			upstream = u
			rest = namespaced[len(prefix):]
			bestLen = len(prefix)
			ok = true
		}
	}
	return upstream, rest, ok
}
