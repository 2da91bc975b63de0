package main

import (
	"flag"
	"log"

	"github.com/stardot/MatrixBrandy-sub002/cli"
	"github.com/stardot/MatrixBrandy-sub002/heap"
	"github.com/stardot/MatrixBrandy-sub002/localfiles"
	"github.com/stardot/MatrixBrandy-sub002/mos"
	"github.com/stardot/MatrixBrandy-sub002/object"
	"github.com/stardot/MatrixBrandy-sub002/progserv"
	"github.com/stardot/MatrixBrandy-sub002/terminal"
)

var (
	size  = flag.Int("size", 16*heap.MinSize, "workspace size in bytes")
	lib   = flag.String("lib", "", "program library directory")
	serve = flag.String("serve", "", "also serve the library over http on this address")
)

func main() {
	flag.Parse()

	term := terminal.New()
	defer term.Close()

	env := object.NewEnvironment(term, heap.New(*size))
	env.SetFS(localfiles.New(""))
	env.SetMos(mos.New(term))
	env.Filepath = *lib

	if *serve != "" {
		dir := *lib
		if dir == "" {
			dir = "."
		}
		go func() {
			if err := progserv.Serve(*serve, dir); err != nil {
				log.Println(err)
			}
		}()
	}

	cli.Start(env)
}
