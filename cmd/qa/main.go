package main

import "qa-assistant/internal/cli"

func main() {
	cli.Execute()
}
