package main

import "github.com/oshokin/alarm-broadcast/cmd/alarm-client/cmd"

func main() {
	cmd.Execute()
}
