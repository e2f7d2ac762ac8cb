// Package ahocorasick implements a multi-pattern substring matching
// automaton, used to scan request paths and user agents against
// configured suspicious/sensitive substring lists in a single pass
// instead of one strings.Contains per pattern.
package ahocorasick

type node struct {
	children map[byte]int
	fail     int
	output   []int // indices into the original pattern list terminating here
}

// Matcher is a built Aho-Corasick automaton over a fixed pattern set.
type Matcher struct {
	nodes    []node
	patterns []string
}

// New builds a Matcher over patterns. An empty pattern list yields a
// Matcher that never matches.
func New(patterns []string) *Matcher {
	m := &Matcher{
		nodes:    []node{{children: make(map[byte]int)}},
		patterns: append([]string(nil), patterns...),
	}
	for i, p := range m.patterns {
		m.insert(p, i)
	}
	m.buildFailureLinks()
	return m
}

func (m *Matcher) insert(pattern string, idx int) {
	cur := 0
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		next, ok := m.nodes[cur].children[c]
		if !ok {
			m.nodes = append(m.nodes, node{children: make(map[byte]int)})
			next = len(m.nodes) - 1
			m.nodes[cur].children[c] = next
		}
		cur = next
	}
	m.nodes[cur].output = append(m.nodes[cur].output, idx)
}

func (m *Matcher) buildFailureLinks() {
	var queue []int
	for c, next := range m.nodes[0].children {
		m.nodes[next].fail = 0
		queue = append(queue, next)
		_ = c
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for c, next := range m.nodes[cur].children {
			queue = append(queue, next)

			failState := m.nodes[cur].fail
			for {
				if n, ok := m.nodes[failState].children[c]; ok && n != next {
					m.nodes[next].fail = n
					break
				}
				if failState == 0 {
					m.nodes[next].fail = 0
					break
				}
				failState = m.nodes[failState].fail
			}
			m.nodes[next].output = append(m.nodes[next].output, m.nodes[m.nodes[next].fail].output...)
		}
	}
}

// ContainsAny reports whether any configured pattern occurs in text.
func (m *Matcher) ContainsAny(text string) bool {
	if len(m.patterns) == 0 {
		return false
	}
	cur := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		for {
			if next, ok := m.nodes[cur].children[c]; ok {
				cur = next
				break
			}
			if cur == 0 {
				break
			}
			cur = m.nodes[cur].fail
		}
		if len(m.nodes[cur].output) > 0 {
			return true
		}
	}
	return false
}

// MatchedPatterns returns every configured pattern found anywhere in
// text, in the order they are first found while scanning text, without
// duplicates.
func (m *Matcher) MatchedPatterns(text string) []string {
	if len(m.patterns) == 0 {
		return nil
	}
	seen := make(map[int]bool)
	var out []string
	cur := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		for {
			if next, ok := m.nodes[cur].children[c]; ok {
				cur = next
				break
			}
			if cur == 0 {
				break
			}
			cur = m.nodes[cur].fail
		}
		for _, idx := range m.nodes[cur].output {
			if !seen[idx] {
				seen[idx] = true
				out = append(out, m.patterns[idx])
			}
		}
	}
	return out
}
