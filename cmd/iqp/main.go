package main

import "github.com/AndyMelnik/iot-query-probe-v2/cmd/iqp/cmd"

func main() {
	cmd.Execute()
}
