package main

import "go-bookfetch/cmd/bookfetch/cmd"

func main() {
	cmd.Execute()
}
