package event

import "fmt"

// Streams buffers received events per registration until the host reads
// them.
type Streams struct {
	pending map[int][]any
}

func NewStreams() *Streams {
	return &Streams{pending: make(map[int][]any)}
}

func (s *Streams) Push(reg *Registration, value any) {
	s.pending[reg.ID] = append(s.pending[reg.ID], value)
}

func (s *Streams) Len(reg *Registration) int {
	return len(s.pending[reg.ID])
}

func (s *Streams) Clear() {
	clear(s.pending)
}

// Drain returns and forgets every buffered value of reg.
func Drain[T any](s *Streams, reg *Registration) []T {
	values := s.pending[reg.ID]
	delete(s.pending, reg.ID)

	typed := make([]T, 0, len(values))
	for _, v := range values {
		t, ok := v.(T)
		if !ok {
			panic(fmt.Sprintf("tickwire: stream %s holds %T, not %T", reg, v, t))
		}
		typed = append(typed, t)
	}
	return typed
}
