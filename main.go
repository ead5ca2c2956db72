package main

import "github.com/boostpack/boostpack/cmd"

func main() {
	cmd.Execute()
}
