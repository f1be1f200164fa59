package codec

import (
	"fmt"
	"html"
	"strings"

	"github.com/MarcoPoloResearchLab/storyboard/internal/geometry"
)

// Poll widget placement in baseline export pixels.
var (
	pollBaselineSize     = geometry.Size{Width: 880, Height: 440}
	pollBaselinePosition = geometry.Point{X: 100, Y: 700}
)

const (
	pollQuestionHeight = 140.0
	pollOptionGap      = 20.0
)

func pollMarkup(poll Poll) string {
	width, height := pollBaselineSize.Width, pollBaselineSize.Height
	var builder strings.Builder
	fmt.Fprintf(&builder, `<svg xmlns="http://www.w3.org/2000/svg" width="%g" height="%g" viewBox="0 0 %g %g">`, width, height, width, height)
	fmt.Fprintf(&builder, `<rect x="0" y="0" width="%g" height="%g" rx="32" fill="#FFFFFF"/>`, width, height)
	if poll.Question != "" {
		fmt.Fprintf(&builder, `<text x="%g" y="%g" fill="#111111" font-size="40" font-weight="700" font-family="Inter" text-anchor="middle" dominant-baseline="middle">%s</text>`,
			width/2, pollQuestionHeight/2, html.EscapeString(poll.Question))
	}
	if count := len(poll.Options); count > 0 {
		available := height - pollQuestionHeight - pollOptionGap
		optionHeight := available/float64(count) - pollOptionGap
		for index, option := range poll.Options {
			y := pollQuestionHeight + float64(index)*(optionHeight+pollOptionGap)
			fmt.Fprintf(&builder, `<rect x="40" y="%g" width="%g" height="%g" rx="%g" fill="#F1F1F1"/>`, y, width-80, optionHeight, optionHeight/2)
			fmt.Fprintf(&builder, `<text x="%g" y="%g" fill="#111111" font-size="34" font-weight="600" font-family="Inter" text-anchor="middle" dominant-baseline="middle">%s</text>`,
				width/2, y+optionHeight/2, html.EscapeString(option))
		}
	}
	builder.WriteString("</svg>")
	return builder.String()
}
