package main

import "github.com/herelabs/go-near/cmd/near/cmd"

func main() {
	cmd.Execute()
}
