// Command memwatch monitors memory channel-market prices and reports changes.
package main

import (
	"os"

	"memwatch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
