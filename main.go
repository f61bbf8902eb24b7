package main

import (
	"github.com/keevingness/image-shipper-relay/cmd"
)

// version变量，将在构建时通过-ldflags注入
var version = "dev"

func main() {
	cmd.Execute(version)
}
