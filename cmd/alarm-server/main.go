package main

import "github.com/oshokin/alarm-broadcast/cmd/alarm-server/cmd"

func main() {
	cmd.Execute()
}
