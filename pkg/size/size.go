package size

import "fmt"

// Size is a frame or canvas dimension in pixels.
type Size struct {
	Width  int
	Height int
}

// IsZero reports whether either dimension is unset.
func (size Size) IsZero() bool {
	return size.Width <= 0 || size.Height <= 0
}

// Or returns size, or fallback for each dimension that is unset.
func (size Size) Or(fallback Size) Size {
	if size.Width <= 0 {
		size.Width = fallback.Width
	}
	if size.Height <= 0 {
		size.Height = fallback.Height
	}
	return size
}

func (size Size) String() string {
	return fmt.Sprintf("{Width: %v, Height: %v}", size.Width, size.Height)
}
