package main

import "github.com/humac/mcp-iot-poc/cmd"

func main() {
	cmd.Execute()
}
