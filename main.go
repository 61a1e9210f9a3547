package main

import "github.com/audiolibrelab/audiobridge/cmd"

func main() {
	cmd.Execute()
}
