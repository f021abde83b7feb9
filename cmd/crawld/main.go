package main

import (
	cmd "github.com/rohmanhakim/crawlsvc/internal/cli"
)

func main() {
	cmd.Execute()
}
