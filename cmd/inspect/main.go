// Command inspect decodes capture files offline: it lists segments, prints
// normalized documents, and reports per-file decode statistics.
//
// Usage:
//
//	inspect segments --include '*.json.gz' /data/tweets2013
//	inspect decode --limit 10 /data/tweets2013/2013-03-29.json.gz
//	inspect stats --workers 8 --manifest collection.yaml
package main

import (
	"fmt"
	"os"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	app := newCLIApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
