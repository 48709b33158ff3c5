package main

import "musplay/cmd"

func main() {
	cmd.Execute()
}
