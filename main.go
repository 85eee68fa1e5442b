package main

import "github.com/super-flat/pipeline/cmd"

func main() {
	cmd.Execute()
}
