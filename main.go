// Command confsync keeps AI assistant configuration files synchronized
// between a central store and any number of target directories. See
// `confsync --help` for the full command surface.
package main

import "github.com/fulmenhq/confsync/cmd"

func main() {
	cmd.Execute()
}
