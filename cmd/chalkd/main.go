package main

import "github.com/chalklabs/chalk-core/internal/cli"

func main() {
	cli.Execute()
}
