package main

import "vmsync/cmd"

func main() {
	cmd.Execute()
}
