package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cyberguard/cyberguard/internal/account"
	"github.com/cyberguard/cyberguard/internal/chat"
	"github.com/cyberguard/cyberguard/internal/credential"
)

func (a *app) runChat(ctx context.Context) error {
	key, err := chat.ResolveAPIKey(a.cfg.Chat, nil)
	if errors.Is(err, chat.ErrNoAPIKey) {
		return fmt.Errorf("%w: set CYBERGUARD_CHAT_API_KEY or run `cyberguard set-key`", err)
	}
	if err != nil {
		return err
	}

	client := chat.New(a.cfg.Chat, key, a.logger.Named("chat"))
	history := chat.NewHistory(a.cfg.Chat.MaxHistory)

	fmt.Println("Ask a security question. /reset clears the conversation, /quit exits.")
	lines := readLines(ctx.Done(), os.Stdin)

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch question := strings.TrimSpace(line); question {
			case "":
			case "/quit":
				return nil
			case "/reset":
				history.Reset()
			default:
				fmt.Println(client.Reply(ctx, history, question))
			}
		}
	}
}

// runAccount reads "register NAME EMAIL PASSWORD" and "login EMAIL PASSWORD"
// lines from stdin. Users persist only when the store is file-backed.
func (a *app) runAccount(ctx context.Context) error {
	registry := account.NewRegistry(a.store, account.WithLogger(a.logger.Named("account")))

	fmt.Println("Commands: register NAME EMAIL PASSWORD | login EMAIL PASSWORD | quit")
	lines := readLines(ctx.Done(), os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}

			switch {
			case fields[0] == "quit":
				return nil
			case fields[0] == "register" && len(fields) == 4:
				user, err := registry.Register(ctx, fields[1], fields[2], fields[3])
				if err != nil {
					fmt.Printf("! %v\n", err)
					continue
				}
				fmt.Printf("Registered %s <%s>.\n", user.Name, user.Email)
			case fields[0] == "login" && len(fields) == 3:
				user, err := registry.Login(ctx, fields[1], fields[2])
				if err != nil {
					fmt.Printf("! %v\n", err)
					continue
				}
				fmt.Printf("Welcome back, %s.\n", user.Name)
			default:
				fmt.Println("! usage: register NAME EMAIL PASSWORD | login EMAIL PASSWORD | quit")
			}
		}
	}
}

// runSetKey stores the chat API key read from stdin in the keyring.
func (a *app) runSetKey() error {
	fmt.Print("Gemini API key: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading key: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return errors.New("no key entered")
	}
	if err := credential.Set(chat.KeyringAPIKey, key); err != nil {
		return err
	}
	fmt.Println("Saved.")
	return nil
}
