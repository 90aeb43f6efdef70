package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs. The real
// App type satisfies it; tests provide a lightweight stub.
type execIface interface {
	isAuthenticated() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Verify(ctx context.Context, args []string) error
	Resend(ctx context.Context, args []string) error
	Skip(ctx context.Context) error
	Link(ctx context.Context) error
	MFA(ctx context.Context, args []string) error
	Code(ctx context.Context, args []string) error
	Recover(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Creds(ctx context.Context) error
	Rename(ctx context.Context, args []string) error
	RemoveCred(ctx context.Context, args []string) error
	Back(ctx context.Context) error
	Logout(ctx context.Context) error
	Delete(ctx context.Context) error
}

// runREPL reads a line, parses the first token as the command, and
// dispatches to a. Exits on scanner EOF or "exit"/"quit". Handlers report
// their own errors; the loop stays up regardless.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("auth> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isAuthenticated() {
				printlnFn("Available commands: whoami, creds, rename <id>, rmcred <id>, logout, delete, exit")
			} else {
				printlnFn("Available commands: register, login, verify <email|phone>, resend <email|phone>, skip, link, mfa <email|phone>, code <otp>, recover, back, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "verify":
			_ = a.Verify(ctx, args)

		case "resend":
			_ = a.Resend(ctx, args)

		case "skip":
			_ = a.Skip(ctx)

		case "link":
			_ = a.Link(ctx)

		case "mfa":
			_ = a.MFA(ctx, args)

		case "code":
			_ = a.Code(ctx, args)

		case "recover":
			_ = a.Recover(ctx)

		case "whoami":
			_ = a.WhoAmI(ctx)

		case "creds":
			_ = a.Creds(ctx)

		case "rename":
			_ = a.Rename(ctx, args)

		case "rmcred":
			_ = a.RemoveCred(ctx, args)

		case "back":
			_ = a.Back(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "delete":
			_ = a.Delete(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
