package main

import "github.com/carelink/notify-gateway/cmd"

func main() {
	cmd.Execute()
}
