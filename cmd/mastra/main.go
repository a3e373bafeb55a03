package main

import "github.com/mastra-ai/mastra/cmd/mastra/cli"

func main() {
	cli.Execute()
}
