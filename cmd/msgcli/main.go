// Command msgcli is the interactive client. It registers (or reloads) the
// local identity, lets the user pick a message server, runs the handshake and
// then sends typed lines as encrypted messages.
//
// Usage: msgcli AUTHADDR IDENTITYFILE.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"code.kerpass.org/ticketauth/internal/client"
	"code.kerpass.org/ticketauth/internal/observability"
	"code.kerpass.org/ticketauth/internal/utils"
)

func main() {
	if 3 != len(os.Args) {
		fmt.Fprintf(os.Stderr, "usage: %s AUTHADDR IDENTITYFILE\n", os.Args[0])
		os.Exit(2)
	}

	err := run(os.Args[1], os.Args[2])
	if nil != err {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(authAddr, identityPath string) error {
	obs := &observability.Observability{Logger: observability.NoopLogger()}
	ctx := observability.SetObservability(context.Background(), obs)
	stdin := bufio.NewScanner(os.Stdin)

	cli, err := client.New(client.Config{AuthAddr: authAddr, IdentityPath: identityPath})
	if nil != err {
		return err
	}
	defer cli.Close()

	if cli.Registered() {
		fmt.Printf("welcome back %s\n", cli.Name())
		cli.SetPassword(prompt(stdin, "password: "))
	} else {
		name := prompt(stdin, "pick a name: ")
		password := prompt(stdin, "pick a password: ")
		err = cli.Register(ctx, name, password)
		if errors.Is(err, client.ErrNameTaken) {
			return fmt.Errorf("name %q is already taken, remove %s to retry with another", name, identityPath)
		}
		if nil != err {
			return err
		}
		fmt.Printf("registered as %s\n", name)
	}

	for {
		err = selectAndConnect(ctx, cli, stdin)
		if nil != err {
			return err
		}

		again, err := messageLoop(ctx, cli, stdin)
		if nil != err {
			return err
		}
		if !again {
			return nil
		}
	}
}

// selectAndConnect lists the message servers, prompts for one and runs the
// handshake against it.
func selectAndConnect(ctx context.Context, cli *client.Client, stdin *bufio.Scanner) error {
	servers, err := cli.ListServers(ctx)
	if nil != err {
		return err
	}

	fmt.Println("available message servers:")
	for pos, srv := range servers {
		fmt.Printf("  [%d] %s (%s:%d, id %s)\n", pos, srv.Name, srv.Ip, srv.Port, utils.HexBinary(srv.Id[:]))
	}
	for {
		choice := prompt(stdin, "server number: ")
		pos, err := strconv.Atoi(choice)
		if nil != err || pos < 0 || pos >= len(servers) {
			fmt.Println("not a listed server number")
			continue
		}
		err = cli.Connect(ctx, servers[pos])
		if nil != err {
			return err
		}
		fmt.Printf("connected to %s\n", servers[pos].Name)
		return nil
	}
}

// messageLoop sends typed lines until /servers (re-select, returns true),
// /quit or EOF (returns false). An expired session also returns true, the
// handshake restarts from server selection.
func messageLoop(ctx context.Context, cli *client.Client, stdin *bufio.Scanner) (bool, error) {
	fmt.Println("type messages, /servers to switch server, /quit to exit")
	for {
		line := prompt(stdin, "> ")
		switch line {
		case "":
			return false, nil
		case "/quit":
			return false, nil
		case "/servers":
			return true, nil
		}

		err := cli.Send(ctx, line)
		if errors.Is(err, client.ErrRejected) {
			fmt.Println("session rejected, it probably expired, pick a server to reconnect")
			return true, nil
		}
		if nil != err {
			return false, err
		}
		fmt.Println("delivered")
	}
}

func prompt(stdin *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !stdin.Scan() {
		return ""
	}
	return strings.TrimSpace(stdin.Text())
}
