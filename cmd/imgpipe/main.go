// Command imgpipe exercises the imagepipeline engine end to end
// against a file:// or http(s):// source, wiring the reference
// loader/decode/encode/process collaborators into a running Pipeline.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
