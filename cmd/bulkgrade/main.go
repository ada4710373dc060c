package main

import "github.com/noah-isme/gema-bulk-grader/internal/cli"

func main() {
	cli.Execute()
}
