package main

import (
	"github.com/glintlabs/glint/cmd"
)

func main() {
	cmd.Execute()
}
