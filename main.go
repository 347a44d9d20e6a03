package main

import "github.com/project-dy/Essentials/cmd"

func main() {
	cmd.Execute()
}
