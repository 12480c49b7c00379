package demo

// Player replays items one step at a time through apply.
type Player[T any] struct {
	// OnDone runs once, on the first Step after the last item.
	OnDone func()

	items []T
	pos   int
	apply func(T)
	done  bool
}

func NewPlayer[T any](items []T, apply func(T)) *Player[T] {
	return &Player[T]{items: items, apply: apply}
}

// Step applies the next item. It returns false once playback is over.
func (p *Player[T]) Step() bool {
	if p.pos >= len(p.items) {
		if !p.done {
			p.done = true
			if p.OnDone != nil {
				p.OnDone()
			}
		}
		return false
	}
	p.apply(p.items[p.pos])
	p.pos++
	return true
}

// Seek moves playback to item i, clamped to the available range.
func (p *Player[T]) Seek(i int) {
	p.pos = max(0, min(i, len(p.items)))
	p.done = false
}

func (p *Player[T]) Position() int { return p.pos }

func (p *Player[T]) Remaining() int { return len(p.items) - p.pos }

func (p *Player[T]) Done() bool { return p.done }
