package main

import "github.com/vietddude/fleetclient/internal/cli"

func main() {
	cli.Execute()
}
