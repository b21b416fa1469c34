package main

import "github.com/polysignal/signal-engine/cmd"

func main() {
	cmd.Execute()
}
