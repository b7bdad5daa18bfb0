package main

import "github.com/ewag/orthanc-graph/internal/cli"

func main() {
	cli.Execute()
}
