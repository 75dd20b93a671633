package main

import "github.com/scriptbridge/sb-broker/cmd"

func main() {
	cmd.Execute()
}
