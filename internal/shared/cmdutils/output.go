package cmdutils

import (
	"fmt"
	"io"
	"os"
)

const logo = "🐬"

// PrintResponse writes an assistant answer to stdout with the CLI banner.
func PrintResponse(text string) {
	FprintResponse(os.Stdout, text)
}

// FprintResponse writes an assistant answer to w with the CLI banner.
func FprintResponse(w io.Writer, text string) {
	if text == "" {
		return
	}

	fmt.Fprintf(w, "\n%s metadolphin\n%s\n\n", logo, text)
}
