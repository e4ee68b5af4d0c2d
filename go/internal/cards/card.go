package cards

// Card is one entry in a set's card pool. Cards are immutable and shared
// read-only across every room that drafts the same set.
type Card struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsLeader bool   `json:"is_leader"`
	IsBase   bool   `json:"is_base"`
}

// Pack is an ordered sequence of cards currently unpicked. Origin records
// which booster the pack was dealt as; Generation counts how many times the
// pack has rotated between seats.
type Pack struct {
	Origin     int
	Generation int
	Cards      []Card
}

// Remove takes the card with the given id out of the pack, preserving the
// deal order of the remaining cards. The second return is false when the id
// is not in the pack.
func (p *Pack) Remove(cardID string) (Card, bool) {
	for i, c := range p.Cards {
		if c.ID == cardID {
			p.Cards = append(p.Cards[:i], p.Cards[i+1:]...)
			return c, true
		}
	}
	return Card{}, false
}

// First returns the first card in deal order without removing it.
func (p *Pack) First() (Card, bool) {
	if len(p.Cards) == 0 {
		return Card{}, false
	}
	return p.Cards[0], true
}

// Empty reports whether every card in the pack has been taken.
func (p *Pack) Empty() bool {
	return len(p.Cards) == 0
}

// Size returns the number of unpicked cards remaining.
func (p *Pack) Size() int {
	return len(p.Cards)
}
