// Command attestctl is an operator tool for the attestor service: it derives
// the authority address, recomputes digests, checks credentials offline and
// mints admin tokens.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
