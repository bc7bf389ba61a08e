package present

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"
)

func TestRenderTranscript(t *testing.T) {
	out, err := RenderTranscript("**You:** odds?\n\nArsenal\tto win at **1.4**\n", 80)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(out, "\n"))
	require.False(t, strings.HasSuffix(out, "\n\n"))
	require.False(t, strings.Contains(out, "\t"))
	require.Contains(t, out, "Arsenal")
}

func TestIsTerminal(t *testing.T) {
	require.False(t, IsTerminal(&bytes.Buffer{}))
	require.False(t, IsTerminal(nil))
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	require.False(t, IsTerminal(f))
}

func TestMakeGradientText(t *testing.T) {
	base := lipgloss.NewStyle()
	require.Equal(t, "bb", MakeGradientText(base, "bb"))
	require.Len(t, MakeGradientRamp(6), 6)
	require.Contains(t, MakeGradientText(base, "betbox"), "x")
}

func TestPrintConfirmation(t *testing.T) {
	var buf bytes.Buffer
	PrintConfirmation(&buf, "login", "session established")
	require.Contains(t, buf.String(), "LOGIN")
	require.Contains(t, buf.String(), "session established")
}

func TestMakeStyles(t *testing.T) {
	s := MakeStyles(lipgloss.DefaultRenderer())
	require.Equal(t, "ERROR", s.ErrorHeader.Value())
	require.Equal(t, ",", s.FlagComma.Value())
}
