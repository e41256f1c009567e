package main

import "github.com/ogulcanaydogan/ai-spend-guardian/internal/cli"

func main() {
	cli.Execute()
}
