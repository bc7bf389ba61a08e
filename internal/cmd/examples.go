package cmd

import (
	"math/rand"
	"regexp"

	"github.com/dotcommander/betbox/internal/present"
)

var examples = map[string]string{
	"Ask which sports are on the exchange": `betbox "which sports can I bet on right now?"`,
	"Find competitions for a sport":        `betbox ask "list the tennis competitions with open markets" | glow`,
	"Add context from a file":              `cat notes.md | betbox ask "which of these fixtures have markets?"`,
	"Serve the chat API":                   `betbox serve --listen :8000 --log-format json | tee betbox.log`,
}

func randomExample() string {
	keys := make([]string, 0, len(examples))
	for k := range examples {
		keys = append(keys, k)
	}
	desc := keys[rand.Intn(len(keys))] //nolint:gosec
	return desc
}

func cheapHighlighting(s present.Styles, code string) string {
	code = regexp.
		MustCompile(`"([^"\\]|\\.)*"`).
		ReplaceAllStringFunc(code, func(x string) string {
			return s.Quote.Render(x)
		})
	code = regexp.
		MustCompile(`\|`).
		ReplaceAllStringFunc(code, func(x string) string {
			return s.Pipe.Render(x)
		})
	return code
}
