package main

import (
	"github.com/arundel/herald/cmd"
)

func main() {
	cmd.Execute()
}
