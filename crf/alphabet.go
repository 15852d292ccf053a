package crf

// Alphabet assigns dense integer IDs to the strings it has seen.
// IDs are handed out in insertion order starting at zero.
type Alphabet struct {
	ids   map[string]int
	names []string
}

// NewAlphabet creates an empty alphabet.
func NewAlphabet() *Alphabet {
	return &Alphabet{ids: make(map[string]int)}
}

// Add interns s and returns its ID, allocating a new one on first sight.
func (a *Alphabet) Add(s string) int {
	if id, ok := a.ids[s]; ok {
		return id
	}
	id := len(a.names)
	a.ids[s] = id
	a.names = append(a.names, s)
	return id
}

// Lookup returns the ID of s, or -1 when s was never added.
func (a *Alphabet) Lookup(s string) int {
	if id, ok := a.ids[s]; ok {
		return id
	}
	return -1
}

// Name returns the string with the given ID.
func (a *Alphabet) Name(id int) string { return a.names[id] }

// Len returns the number of interned strings.
func (a *Alphabet) Len() int { return len(a.names) }
