package main

import "github.com/bryanchriswhite/gamescope-dbus/cmd/gamescope-dbus/commands"

func main() {
	commands.Execute()
}
