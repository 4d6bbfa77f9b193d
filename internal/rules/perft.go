package rules

// Perft counts leaf nodes of the legal move tree to the given depth.
func Perft(b *Board, depth int) uint64 {
	if depth <= 0 {
		return 1
	}
	moves := LegalMoves(b, b.Turn)
	if depth == 1 {
		return uint64(len(moves))
	}
	var n uint64
	for _, m := range moves {
		if err := b.Apply(m); err != nil {
			continue
		}
		n += Perft(b, depth-1)
		_, _ = b.Undo()
	}
	return n
}
