package main

import "github.com/crystaldolphin/metadolphin/cmd"

func main() {
	cmd.Execute()
}
