package reduction

// Summarise folds a set of entries (typically the result of an
// EntriesInRange-style range query already bounded to a period) into the
// rollup embedded in an emission summary. It
// takes plain entries rather than a repository so internal/summary can
// call it without importing anything beyond the Entry/Summary types.
func Summarise(entries []Entry) Summary {
	s := newSummary()
	for _, e := range entries {
		s.add(e)
	}
	return s
}
