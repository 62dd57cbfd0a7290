package search

// Side names one of the two search trees
type Side int

const (
	SideA Side = iota
	SideB
)

// Other returns the opposite side
func (s Side) Other() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

func (s Side) String() string {
	if s == SideA {
		return "A"
	}
	return "B"
}

// phase returns the side expanded at a 1-based step: odd steps expand A, even steps expand B
func phase(step int) Side {
	if step%2 == 1 {
		return SideA
	}
	return SideB
}
