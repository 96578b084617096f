package main

import (
	"github.com/mchmarny/permitctl/pkg/cli"
)

func main() {
	cli.Execute()
}
