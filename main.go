package main

import "github.com/javanhut/vers/cli"

func main() {
	cli.Execute()
}
