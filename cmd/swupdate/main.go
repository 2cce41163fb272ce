package main

import "github.com/oshokin/swupdate/cmd/swupdate/cmd"

func main() {
	cmd.Execute()
}
