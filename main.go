package main

import (
	_ "embed"

	"github.com/kirsrus/diskimage/cmd"
)

// Program version, set from the git tag with -ldflags
var version = "0.0.0"

// Current commit, set with -ldflags
var gitCommit = "00000000000000000"

// Time of the last commit, set with -ldflags
var gitDate = "0000.00.00 00:00:00"

//go:embed templates/index.html
var indexTpl string

//go:embed templates/tree.html
var treeTpl string

func main() {
	cmd.Execute(version, gitCommit, gitDate, cmd.Template{
		Index: indexTpl,
		Tree:  treeTpl,
	})
}
