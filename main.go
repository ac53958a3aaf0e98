package main

import "onlinstall/cmd"

func main() {
	cmd.Execute()
}
