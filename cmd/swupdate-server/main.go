package main

import "github.com/oshokin/swupdate/cmd/swupdate-server/cmd"

func main() {
	cmd.Execute()
}
