package main

import "github.com/bryanchriswhite/downscaler/cmd/downscaler/commands"

func main() {
	commands.Execute()
}
