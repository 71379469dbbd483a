package main

import "mindtracking-client/cmd/mindtracking/cmd"

func main() {
	cmd.Execute()
}
