package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dotcommander/betbox/internal/present"
)

func drainStdin() {
	if present.IsInputTTY() {
		return
	}
	_, _ = io.Copy(io.Discard, os.Stdin)
}

// readPrompt joins args with whatever is piped on r. A terminal on stdin is
// never read.
func readPrompt(r io.Reader, args []string) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if r == os.Stdin && present.IsInputTTY() {
		return prompt, nil
	}
	piped, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if in := strings.TrimSpace(string(piped)); in != "" {
		if prompt == "" {
			return in, nil
		}
		return prompt + "\n\n" + in, nil
	}
	return prompt, nil
}
