package main

import "github.com/datastash/stash/cmd/stash/cmd"

func main() {
	cmd.Execute()
}
