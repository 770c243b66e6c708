// Binary entrypoint for rtcgateway. main.go stays minimal; command wiring
// lives in root.go and its sibling files.
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
