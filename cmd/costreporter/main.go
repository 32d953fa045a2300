package main

import (
	"github.com/dongkoony/aws-cost-slack-reporter/internal/cli"
)

func main() {
	cli.Execute()
}
