package main

import "github.com/oshokin/alarm-broadcast/cmd/alarm-updater/cmd"

func main() {
	cmd.Execute()
}
