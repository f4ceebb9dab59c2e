// voicegate - voice agent gateway: microphone loop and inbound webhook in
// front of a chain of speech, language and synthesis providers.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/teslashibe/voicegate/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var cerr *config.Error
		if errors.As(err, &cerr) {
			fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("configuration error:"), cerr)
		} else {
			fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), err)
		}
		os.Exit(1)
	}
}
