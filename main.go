package main

import "github.com/kozaktomas/face-engine/cmd"

func main() {
	cmd.Execute()
}
