// Command build defines the developer tasks of this repository.
//
// Usage:
//
//	go run ./build          # runs all
//	go run ./build -h       # lists tasks
package main

import (
	"github.com/goyek/goyek/v3"
	"github.com/goyek/x/boot"
	"github.com/goyek/x/cmd"
)

var test = goyek.Define(goyek.Task{
	Name:  "test",
	Usage: "go test with race detector",
	Action: func(a *goyek.A) {
		cmd.Exec(a, "go test -race -covermode=atomic ./...")
	},
})

var lint = goyek.Define(goyek.Task{
	Name:  "lint",
	Usage: "go vet and gofmt check",
	Action: func(a *goyek.A) {
		if !cmd.Exec(a, "go vet ./...") {
			return
		}
		cmd.Exec(a, "gofmt -l -d .")
	},
})

var tidy = goyek.Define(goyek.Task{
	Name:  "tidy",
	Usage: "go mod tidy",
	Action: func(a *goyek.A) {
		cmd.Exec(a, "go mod tidy")
	},
})

var all = goyek.Define(goyek.Task{
	Name:  "all",
	Usage: "tidy, lint and test",
	Deps:  goyek.Deps{tidy, lint, test},
})

func main() {
	goyek.SetDefault(all)
	boot.Main()
}
