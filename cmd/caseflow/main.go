// Command caseflow runs auction-case analyses from the terminal or serves
// them over HTTP.
package main

import (
	"context"
	"os"
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:]))
}
