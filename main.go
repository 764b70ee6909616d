package main

import "github.com/papapumpkin/asp/cmd"

func main() {
	cmd.Execute()
}
