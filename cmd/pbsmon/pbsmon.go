package main

import (
	"PBSFrontEnd/internal/pbsmon"
)

func main() {
	pbsmon.ParseCmdArgs()
}
