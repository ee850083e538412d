package main

import "github.com/oshokin/alarm-broadcast/cmd/alarm-passwd/cmd"

func main() {
	cmd.Execute()
}
