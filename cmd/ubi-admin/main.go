package main

import "github.com/turtacn/ubi/cmd/cli"

func main() {
	cli.Execute()
}
