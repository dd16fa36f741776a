// Command sandboxctl is the CLI client for submitting runs to a sandboxd
// server.
package main

import (
	"github.com/akshayaggarwal99/sandboxd/cmd/sandboxctl/cli"
)

func main() {
	cli.Execute()
}
