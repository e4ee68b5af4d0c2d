package cards

import (
	"fmt"
	"math/rand"
)

// DealShape describes the packs a single room needs dealt.
type DealShape struct {
	SeatCount    int
	PacksPerSeat int
	PackSize     int
}

func (s DealShape) totalCards() int {
	return s.SeatCount * s.PacksPerSeat * s.PackSize
}

// DealPacks deals packs for every seat from the given pool. The result is
// deterministic for the same pool, shape and seed, which keeps disputed
// drafts reproducible from the room's recorded seed. Leaders and bases are
// not draftable and are filtered out of the pool before dealing.
//
// The returned slice is indexed by seat; each seat gets PacksPerSeat packs
// with Origin set to the booster number (0-based). DealPacks never mutates
// the pool it is given.
func DealPacks(pool []Card, shape DealShape, seed int64) ([][]*Pack, error) {
	if shape.SeatCount <= 0 || shape.PacksPerSeat <= 0 || shape.PackSize <= 0 {
		return nil, fmt.Errorf("%w: seats=%d packs=%d size=%d",
			ErrConfiguration, shape.SeatCount, shape.PacksPerSeat, shape.PackSize)
	}

	draftable := make([]Card, 0, len(pool))
	for _, c := range pool {
		if c.IsLeader || c.IsBase {
			continue
		}
		draftable = append(draftable, c)
	}

	need := shape.totalCards()
	if len(draftable) < need {
		return nil, fmt.Errorf("%w: need %d draftable cards, pool has %d",
			ErrConfiguration, need, len(draftable))
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(draftable), func(i, j int) {
		draftable[i], draftable[j] = draftable[j], draftable[i]
	})

	dealt := make([][]*Pack, shape.SeatCount)
	next := 0
	for booster := 0; booster < shape.PacksPerSeat; booster++ {
		for seat := 0; seat < shape.SeatCount; seat++ {
			pack := &Pack{
				Origin: booster,
				Cards:  make([]Card, shape.PackSize),
			}
			copy(pack.Cards, draftable[next:next+shape.PackSize])
			next += shape.PackSize
			dealt[seat] = append(dealt[seat], pack)
		}
	}

	return dealt, nil
}
