package main

import "github.com/tanq16/teraleech/cmd"

func main() {
	cmd.Execute()
}
