package main

import "github.com/forensivid/forensivid/internal/cli"

func main() {
	cli.Execute()
}
