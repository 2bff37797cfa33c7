package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to.
type execIface interface {
	isLoggedIn() bool
	RequestCode(ctx context.Context, subject string) error
	Verify(ctx context.Context, subject string) error
	Upload(ctx context.Context, path string) error
	List(ctx context.Context) error
	Share(ctx context.Context, fileID string) error
	Delete(ctx context.Context, fileID string) error
	Download(ctx context.Context, fileID string) error
	Fetch(ctx context.Context, link string) error
}

// runREPL reads commands line by line and dispatches them to a. Command
// handlers prompt through the same reader, so input is never split between
// two buffers.
//
//	otp <subject>       request a one-time code
//	verify [subject]    enter the code and start a session
//	upload <path>       upload a local file
//	(l)ist              list your files
//	share <file-id>     create a share link
//	delete <file-id>    delete a file
//	download <file-id>  save one of your files under ./downloads
//	fetch <link>        save a shared file (token or full link)
//	exit | quit         leave the program
//
// Handler errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("cv %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		err = nil
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: upload, (l)ist, share, delete, download, fetch, otp, verify, exit")
			} else {
				printlnFn("Available commands: otp, verify, fetch, exit")
			}

		case "otp":
			if len(args) != 1 {
				printlnFn("Usage: otp <subject>")
				continue
			}
			err = a.RequestCode(ctx, args[0])

		case "verify":
			subject := ""
			if len(args) > 0 {
				subject = args[0]
			}
			err = a.Verify(ctx, subject)

		case "upload":
			if len(args) != 1 {
				printlnFn("Usage: upload <path>")
				continue
			}
			err = a.Upload(ctx, args[0])

		case "l", "list":
			err = a.List(ctx)

		case "share":
			if len(args) != 1 {
				printlnFn("Usage: share <file-id>")
				continue
			}
			err = a.Share(ctx, args[0])

		case "delete":
			if len(args) != 1 {
				printlnFn("Usage: delete <file-id>")
				continue
			}
			err = a.Delete(ctx, args[0])

		case "download":
			if len(args) != 1 {
				printlnFn("Usage: download <file-id>")
				continue
			}
			err = a.Download(ctx, args[0])

		case "fetch":
			if len(args) != 1 {
				printlnFn("Usage: fetch <link>")
				continue
			}
			err = a.Fetch(ctx, args[0])

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
	}
}
