package main

import "github.com/wardgate/wardgate/internal/cli"

func main() {
	cli.Execute()
}
