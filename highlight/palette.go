package highlight

// AutoColors is the fixed gradient palette for auto-derived slots, assigned
// by word position. Colors repeat in pairs so adjacent query words share a
// hue level.
var AutoColors = []string{
	"#ffee58", // yellow (L1)
	"#ffee58",
	"#f48fb1", // pink (L2)
	"#f48fb1",
	"#b39ddb", // purple (L3)
	"#b39ddb",
	"#a5d6a7", // green (L4)
	"#a5d6a7",
}

// autoColor returns the palette color for position i, cycling when the
// palette is shorter than the slot list.
func autoColor(i int) string {
	return AutoColors[i%len(AutoColors)]
}
