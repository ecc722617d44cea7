package main

import "github.com/fusiondata/datakit/cmd"

func main() {
	cmd.Execute()
}
