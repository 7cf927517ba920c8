package main

import "github.com/chriserin/pcc/cmd"

func main() {
	cmd.Execute()
}
