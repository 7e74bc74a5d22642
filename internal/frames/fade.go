package frames

import (
	"fmt"
	"strconv"
	"strings"
)

var namedColors = map[string][3]int{
	"white":  {255, 255, 255},
	"black":  {0, 0, 0},
	"red":    {255, 0, 0},
	"yellow": {255, 255, 0},
}

// FadeColor returns an rgba() form of color with the given opacity, for the
// simulated fade-in. Colors it cannot parse are returned unchanged, which
// simply disables the fade for that style.
func FadeColor(color string, alpha float64) string {
	if alpha >= 1 {
		return color
	}
	if alpha < 0 {
		alpha = 0
	}

	r, g, b, ok := parseColor(color)
	if !ok {
		return color
	}
	return fmt.Sprintf("rgba(%d,%d,%d,%.2f)", r, g, b, alpha)
}

func parseColor(color string) (r, g, b int, ok bool) {
	c := strings.ToLower(strings.TrimSpace(color))
	if rgb, found := namedColors[c]; found {
		return rgb[0], rgb[1], rgb[2], true
	}
	if strings.HasPrefix(c, "#") && len(c) == 7 {
		rv, err1 := strconv.ParseInt(c[1:3], 16, 32)
		gv, err2 := strconv.ParseInt(c[3:5], 16, 32)
		bv, err3 := strconv.ParseInt(c[5:7], 16, 32)
		if err1 == nil && err2 == nil && err3 == nil {
			return int(rv), int(gv), int(bv), true
		}
	}
	return 0, 0, 0, false
}
