// Command migrate applies changelog-driven schema migrations.
package main

import (
	"os"

	"github.com/aqasim81/changelog-migrate/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
