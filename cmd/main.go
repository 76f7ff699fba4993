package main

import "github.com/dyike/SchwabAI/internal/cli"

func main() {
	cli.Run()
}
