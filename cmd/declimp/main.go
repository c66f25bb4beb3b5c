package main

import "declimp/internal/cli"

func main() {
	cli.Execute()
}
