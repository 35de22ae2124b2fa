package main

import "github.com/fakeyudi/contractdesk/cmd"

func main() {
	cmd.Execute()
}
