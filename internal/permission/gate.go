// Package permission models the microphone permission check that precedes
// every transport start.
package permission

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
)

// Gate answers whether the microphone may be used. A fresh request is issued
// on every call: permission can be changed externally between attempts, so a
// prior denial is never cached. Gates never return an error; denial is false.
type Gate interface {
	Request(ctx context.Context) bool
}

// GrantAll is the gate for platforms with no runtime permission model.
type GrantAll struct{}

func (GrantAll) Request(context.Context) bool { return true }

// PromptGate asks on a terminal and treats anything but "y"/"yes" as denial.
// Used by headless runs where an interactive confirmation stands in for the
// OS permission dialog.
type PromptGate struct {
	In  io.Reader
	Out io.Writer
}

func (g *PromptGate) Request(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	fmt.Fprint(g.Out, "Allow microphone access? [y/N] ")
	reader := bufio.NewReader(g.In)
	line, err := reader.ReadString('\n')
	if err != nil {
		log.Printf("permission prompt read error: %v", err)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
