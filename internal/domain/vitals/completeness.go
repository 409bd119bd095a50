package vitals

// CheckCompleteness returns, in expected order, every kind the snapshot does
// not carry. Only presence is checked; callers wanting a recency bound must
// filter the snapshot first.
func CheckCompleteness(snap *Snapshot, expected []Kind) []Kind {
	missing := make([]Kind, 0, len(expected))
	for _, k := range expected {
		if !snap.Has(k) {
			missing = append(missing, k)
		}
	}
	return missing
}
