package graphics

import (
	"fmt"
	"strings"
)

// Flip selects the texture coordinate set of a quad.
type Flip uint8

const (
	FlipNone Flip = iota
	FlipHorizontal
	FlipVertical
	FlipBoth
)

// Vertices of the quad as a triangle strip.
var Vertices = [8]float32{
	-1, -1,
	1, -1,
	-1, 1,
	1, 1,
}

var texCoords = [4][8]float32{
	FlipNone:       {0, 0, 1, 0, 0, 1, 1, 1},
	FlipHorizontal: {1, 0, 0, 0, 1, 1, 0, 1},
	FlipVertical:   {0, 1, 1, 1, 0, 0, 1, 0},
	FlipBoth:       {1, 1, 0, 1, 1, 0, 0, 0},
}

// TexCoords returns the texture coordinates matching Vertices.
func TexCoords(f Flip) [8]float32 {
	if f > FlipBoth {
		f = FlipNone
	}
	return texCoords[f]
}

// Mirrors tells which axes are mirrored.
func (f Flip) Mirrors() (x, y bool) {
	return f == FlipHorizontal || f == FlipBoth, f == FlipVertical || f == FlipBoth
}

func (f Flip) String() string {
	switch f {
	case FlipNone:
		return "none"
	case FlipHorizontal:
		return "horizontal"
	case FlipVertical:
		return "vertical"
	case FlipBoth:
		return "both"
	}
	return fmt.Sprintf("flip(%d)", f)
}

func ParseFlip(s string) (Flip, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return FlipNone, nil
	case "horizontal", "h":
		return FlipHorizontal, nil
	case "vertical", "v":
		return FlipVertical, nil
	case "both":
		return FlipBoth, nil
	}
	return FlipNone, fmt.Errorf("unknown flip %q", s)
}
