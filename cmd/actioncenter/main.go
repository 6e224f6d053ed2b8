package main

import "revenue-action-center/internal/cli"

func main() {
	cli.Execute()
}
