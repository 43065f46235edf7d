package main

import "github.com/ngld/knossos/packages/vuelib-tools/cmd"

func main() {
	cmd.Execute()
}
