// Command studio is the entrypoint for the batch speech-to-text
// subtitle generation service: `studio serve` runs it in the foreground,
// `studio install`/`start`/`stop`/`uninstall` manage it as an OS service.
package main

import "sttstudio/internal/cli"

func main() {
	cli.Execute()
}
