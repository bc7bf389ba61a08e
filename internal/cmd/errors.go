package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dotcommander/betbox/internal/errs"
	"github.com/dotcommander/betbox/internal/present"
)

func handleError(w io.Writer, err error) {
	maybeWriteMemProfile()

	drainStdin()

	format := "\n%s\n\n"
	styles := present.StderrStyles()

	var ferr flagParseError
	if errors.As(err, &ferr) {
		args := []any{
			fmt.Sprintf(
				"Check out %s %s",
				styles.InlineCode.Render("betbox -h"),
				styles.Comment.Render("for help."),
			),
			fmt.Sprintf(
				ferr.ReasonFormat(),
				styles.InlineCode.Render(ferr.Flag()),
			),
		}
		fmt.Fprintf(w, format+"%s\n\n", args...)
		return
	}

	var merr errs.Error
	if errors.As(err, &merr) {
		formatArgs := []any{styles.ErrPadding.Render(styles.ErrorHeader.String(), merr.Reason)}
		if !errors.Is(merr.Err, context.Canceled) {
			format += "%s\n\n"
			formatArgs = append(formatArgs, styles.ErrPadding.Render(styles.ErrorDetails.Render(err.Error())))
		}
		fmt.Fprintf(w, format, formatArgs...)
		return
	}

	fmt.Fprintf(w, format, styles.ErrPadding.Render(styles.ErrorDetails.Render(err.Error())))
}
