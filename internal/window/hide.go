package window

// Hide wraps b so that TopLevel omits the window reported by hidden. The
// mirror uses it to keep its own window out of selection. hidden returns 0
// when there is nothing to hide.
func Hide(b Backend, hidden func() Handle) Backend {
	return &hidingBackend{Backend: b, hidden: hidden}
}

type hidingBackend struct {
	Backend
	hidden func() Handle
}

func (b *hidingBackend) TopLevel() ([]Node, error) {
	nodes, err := b.Backend.TopLevel()
	if err != nil {
		return nil, err
	}
	h := b.hidden()
	if h == 0 {
		return nodes, nil
	}
	out := nodes[:0]
	for _, n := range nodes {
		if n.Handle != h {
			out = append(out, n)
		}
	}
	return out, nil
}
