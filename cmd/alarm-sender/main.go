package main

import "github.com/oshokin/alarm-broadcast/cmd/alarm-sender/cmd"

func main() {
	cmd.Execute()
}
