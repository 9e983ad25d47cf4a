package main

import "github.com/Tiliavir/tracktime/cmd"

func main() {
	cmd.Execute()
}
