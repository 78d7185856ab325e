// Command docindex checks, inspects, queries and converts documentation
// search-index files.
//
// Usage:
//
//	docindex check build/html/searchindex.js
//	docindex query searchindex.js floquet hamiltonian --limit 5
//	docindex convert searchindex.js --format json -o quspin.json
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
