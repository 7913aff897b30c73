package main

import "github.com/jmcleod/oaclient/cmd/oactl/cmd"

func main() {
	cmd.Execute()
}
