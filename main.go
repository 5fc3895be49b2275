package main

import "github.com/jmehdipour/simbase-hub/cmd"

func main() {
	cmd.Execute()
}
