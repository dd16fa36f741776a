// Command sandboxd runs the sandbox orchestration server.
package main

import (
	"github.com/akshayaggarwal99/sandboxd/cmd/sandboxd/cli"
)

func main() {
	cli.Execute()
}
