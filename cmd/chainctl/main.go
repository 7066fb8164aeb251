package main

import "github.com/langell/chainOverflow/cmd/chainctl/cmd"

func main() {
	cmd.Execute()
}
