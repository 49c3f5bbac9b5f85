package ticktime

// Seek returns the smallest index j with at(s[j]) >= target, or len(s) when
// there is none. s must be sorted by at. The walk starts from index from and
// moves backward or forward, so its cost is the distance moved rather than a
// function of len(s). from may be anywhere, including past the end.
func Seek[E any](s []E, from int, target Time, at func(E) Time) int {
	n := len(s)
	if from < 0 {
		from = 0
	}
	if from >= n || at(s[from]) >= target {
		i := min(from, n)
		for i > 0 && at(s[i-1]) >= target {
			i--
		}
		return i
	}
	i := from
	for i+1 < n && at(s[i+1]) < target {
		i++
	}
	return i + 1
}
