package main

import "github.com/Laisky/telefiles/cmd"

func main() {
	cmd.Execute()
}
