package main

import (
	"github.com/agoralabs/agora/cmd/agora/cmd"
)

func main() {
	cmd.Execute()
}
