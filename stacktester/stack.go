package stacktester

// Stack is the operand stack. Index 0 addresses the top.
type Stack struct {
	items []*Item
	n     int
}

func (s *Stack) grow() {
	newCap := len(s.items) * 2
	if newCap == 0 {
		newCap = 8
	}
	items := make([]*Item, newCap)
	copy(items, s.items[:s.n])
	s.items = items
}

func (s *Stack) Push(item *Item) {
	if s.n >= len(s.items) {
		s.grow()
	}
	s.items[s.n] = item
	s.n++
}

func (s *Stack) Len() int {
	return s.n
}

func (s *Stack) TryPop() (*Item, bool) {
	if s.n == 0 {
		return nil, false
	}
	s.n--
	item := s.items[s.n]
	s.items[s.n] = nil
	return item, true
}

func (s *Stack) Pop() (*Item, error) {
	item, ok := s.TryPop()
	if !ok {
		return nil, ErrEmptyStack
	}
	return item, nil
}

func (s *Stack) TryPeek() (*Item, bool) {
	if s.n == 0 {
		return nil, false
	}
	return s.items[s.n-1], true
}

func (s *Stack) Peek() (*Item, error) {
	item, ok := s.TryPeek()
	if !ok {
		return nil, ErrEmptyStack
	}
	return item, nil
}

// Dup pushes the top item again. Both slots share the item and its origin index.
func (s *Stack) Dup() error {
	item, err := s.Peek()
	if err != nil {
		return err
	}
	s.Push(item)
	return nil
}

// At returns the item i positions below the top.
func (s *Stack) At(i int) (*Item, bool) {
	if i < 0 || i >= s.n {
		return nil, false
	}
	return s.items[s.n-1-i], true
}

func (s *Stack) Swap(a, b int) error {
	if a < 0 || a >= s.n || b < 0 || b >= s.n {
		return ErrSwapIndex
	}
	i, j := s.n-1-a, s.n-1-b
	s.items[i], s.items[j] = s.items[j], s.items[i]
	return nil
}

func (s *Stack) Clear() {
	clear(s.items[:s.n])
	s.n = 0
}

// Items returns the stack bottom to top.
func (s *Stack) Items() []*Item {
	return append([]*Item(nil), s.items[:s.n]...)
}
