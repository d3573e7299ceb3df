// Command hizdump builds a Hi-Z depth pyramid from a depth image and writes
// every mip level as an image.
//
// Usage:
//
//	hizdump build depth.png --policy max --batch 4 --out ./mips
//	hizdump backends --probe
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/gogpu/hiz/cmd/hizdump/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := commands.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
