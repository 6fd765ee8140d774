package main

import "github.com/overengineeringstudio/fsema/cmd"

func main() {
	cmd.Execute()
}
