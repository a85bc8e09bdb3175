package main

import "github.com/bistrohq/bistroctl/cmd"

func main() {
	cmd.Execute()
}
