package mcp

import (
	"bufio"
	"context"
	"io"
	"log"
	"os"
)

// maxLineBuf bounds a single JSON-RPC line's size.
const maxLineBuf = 4 * 1024 * 1024

// StdioTransport serves a Server over line-delimited JSON-RPC on the
// given reader and writer, logging diagnostics to a dedicated stderr
// logger so stdout carries nothing but response lines.
type StdioTransport struct {
	server *Server
	in     io.Reader
	out    io.Writer
	logger *log.Logger
}

// NewStdioTransport constructs a transport over srv using in/out as the
// JSON-RPC line stream.
func NewStdioTransport(srv *Server, in io.Reader, out io.Writer) *StdioTransport {
	return &StdioTransport{
		server: srv,
		in:     in,
		out:    out,
		logger: log.New(os.Stderr, "icm-mcp: ", log.LstdFlags),
	}
}

// Serve reads lines from in until ctx is cancelled or the input is
// exhausted, dispatching each to the server and writing back its
// response line. Empty lines are skipped; notifications produce no
// response line.
func (t *StdioTransport) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(t.in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineBuf)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !scanner.Scan() {
			return scanner.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := t.server.HandleLine(ctx, line)
		if resp == nil {
			continue
		}
		if err := t.writeLine(resp); err != nil {
			return err
		}
	}
}

func (t *StdioTransport) writeLine(line []byte) error {
	if _, err := t.out.Write(line); err != nil {
		return err
	}
	_, err := t.out.Write([]byte("\n"))
	return err
}
