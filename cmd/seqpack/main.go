// cmd/seqpack/main.go
package main

import (
	"seqpack/internal/app"
	"seqpack/internal/appshell"
)

func main() {
	appshell.Main(app.Run)
}
