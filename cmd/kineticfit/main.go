package main

import "kineticfit/internal/cli"

func main() {
	cli.Execute()
}
