package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cyberguard/cyberguard/internal/mailbox"
	"github.com/cyberguard/cyberguard/internal/model"
	"github.com/cyberguard/cyberguard/internal/provider"
	appsync "github.com/cyberguard/cyberguard/internal/sync"
)

const tempMailHelp = `Commands: [r]efresh, [l]ist, [n]ew address, [o]pen N, [d]elete N, [i]nfo notifications, [x] discard, [q]uit`

func (a *app) mailboxService() *mailbox.Service {
	client := provider.NewClient(a.cfg.Provider.BaseURL,
		provider.WithTimeout(a.cfg.Provider.RequestTimeout),
		provider.WithRateLimit(a.cfg.Provider.RateLimit),
		provider.WithMaxRetries(a.cfg.Provider.MaxRetries),
		provider.WithMetrics(a.metrics),
		provider.WithLogger(a.logger.Named("provider")),
	)
	return mailbox.NewService(client, a.cfg.Mailbox,
		mailbox.WithLogger(a.logger.Named("mailbox")),
		mailbox.WithMetrics(a.metrics),
	)
}

func (a *app) runTempMail(ctx context.Context, discard bool) error {
	svc := a.mailboxService()
	poller := appsync.New(
		appsync.WithInterval(a.cfg.Mailbox.PollInterval),
		appsync.WithFetchTimeout(a.cfg.Mailbox.FetchTimeout),
		appsync.WithLogger(a.logger.Named("poller")),
		appsync.WithMetrics(a.metrics),
	)
	session := appsync.NewSession(svc, poller, a.store, a.logger.Named("session"))
	defer session.Close()

	if _, err := a.newAddress(ctx, session); err != nil {
		return err
	}
	if n, err := session.PruneStale(ctx); err != nil {
		a.logger.Warn("pruning stale identities failed", zap.Error(err))
	} else if n > 0 {
		a.logger.Info("pruned stale identities", zap.Int("count", n))
	}
	if discard {
		defer func() {
			// The signal context is already done here.
			dctx, cancel := context.WithTimeout(context.Background(), a.cfg.Provider.RequestTimeout)
			defer cancel()
			a.discard(dctx, session)
		}()
	}

	fmt.Println(tempMailHelp)

	lines := readLines(ctx.Done(), os.Stdin)
	var (
		inbox []model.InboxMessage
		shown bool
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case update, ok := <-session.Updates():
			if !ok {
				return nil
			}
			if cur := session.Identity(); cur == nil || cur.Address != update.Address {
				continue
			}
			if update.Err != nil {
				fmt.Printf("! %s: %v\n", update.Address, update.Err)
				continue
			}
			if update.NewCount > 0 || len(update.Messages) != len(inbox) || !shown {
				printInbox(update)
				shown = true
			}
			inbox = update.Messages

		case line, ok := <-lines:
			if !ok {
				// Without stdin keep watching until interrupted.
				lines = nil
				continue
			}
			cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
			switch cmd {
			case "":
			case "q", "quit":
				return nil
			case "r", "refresh":
				if _, err := session.RefreshNow(ctx); err != nil {
					fmt.Printf("! refresh failed: %v\n", err)
				}
			case "l", "list":
				stored, err := session.Inbox(ctx)
				if err != nil {
					fmt.Printf("! %v\n", err)
					continue
				}
				inbox = stored
				printInbox(appsync.InboxUpdateMsg{Address: session.Identity().Address, Messages: stored})
				shown = true
			case "n", "new":
				inbox, shown = nil, false
				if _, err := a.newAddress(ctx, session); err != nil {
					fmt.Printf("! %v\nNo address is active. Press n to try again.\n", err)
				}
			case "i", "info":
				a.printNotifications(ctx, session)
			case "x", "discard":
				a.discard(ctx, session)
				inbox, shown = nil, false
			case "o", "open":
				msg, ok := pick(inbox, arg)
				if !ok {
					fmt.Println("! no such message")
					continue
				}
				identity := session.Identity()
				if identity == nil {
					fmt.Println("! no address is active")
					continue
				}
				a.openMessage(ctx, svc, identity, msg)
			case "d", "delete":
				msg, ok := pick(inbox, arg)
				if !ok {
					fmt.Println("! no such message")
					continue
				}
				identity := session.Identity()
				if identity == nil {
					fmt.Println("! no address is active")
					continue
				}
				if err := svc.DeleteMessage(ctx, identity, msg.ID); err != nil {
					fmt.Printf("! %v\n", err)
					continue
				}
				_, _ = session.RefreshNow(ctx)
			default:
				fmt.Println(tempMailHelp)
			}
		}
	}
}

// newAddress provisions an identity and starts polling it.
func (a *app) newAddress(ctx context.Context, session *appsync.Session) (*model.Identity, error) {
	identity, err := session.GenerateIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("generating address: %w", err)
	}
	if err := session.StartPolling(identity, nil); err != nil {
		return nil, fmt.Errorf("starting poller: %w", err)
	}

	fmt.Printf("Your temporary address: %s (valid for about %s)\n",
		identity.Address, identity.Remaining(time.Now()).Round(time.Minute))
	return identity, nil
}

// discard deletes the current mailbox at the provider and locally.
func (a *app) discard(ctx context.Context, session *appsync.Session) {
	identity, err := session.Discard(ctx)
	if errors.Is(err, appsync.ErrNoIdentity) {
		return
	}
	if err != nil {
		a.logger.Warn("discarding mailbox failed", zap.Error(err))
		fmt.Printf("! discarding mailbox failed: %v\n", err)
		return
	}
	fmt.Printf("Deleted %s at the provider.\n", identity.Address)
}

func (a *app) printNotifications(ctx context.Context, session *appsync.Session) {
	notes, err := session.Notifications(ctx)
	if err != nil {
		fmt.Printf("! %v\n", err)
		return
	}
	if len(notes) == 0 {
		fmt.Println("No unread notifications.")
		return
	}
	for _, n := range notes {
		fmt.Printf("[%s] %s\n", n.CreatedAt.Local().Format(time.Kitchen), n.Message)
	}
}

func (a *app) openMessage(ctx context.Context, svc *mailbox.Service, identity *model.Identity, msg model.InboxMessage) {
	detail, err := svc.MessageDetail(ctx, identity, msg.ID)
	if err != nil {
		fmt.Printf("! %v\n", err)
		return
	}

	fmt.Printf("\nFrom:    %s\nSubject: %s\nDate:    %s\n\n", detail.Sender, detail.Subject,
		detail.ReceivedAt.Local().Format(time.RFC1123))
	body := detail.Text
	if body == "" {
		body = detail.HTML
	}
	fmt.Println(body)
	for _, att := range detail.Attachments {
		fmt.Printf("[attachment] %s (%s, %d bytes)\n", att.Filename, att.ContentType, att.Size)
	}
	fmt.Println()

	if !msg.Read {
		if err := svc.MarkRead(ctx, identity, msg.ID); err != nil {
			a.logger.Debug("marking message read failed", zap.Error(err))
		}
	}
}

func printInbox(update appsync.InboxUpdateMsg) {
	if update.NewCount > 0 {
		fmt.Printf("\n%d new message(s) for %s\n", update.NewCount, update.Address)
	}
	if len(update.Messages) == 0 {
		fmt.Printf("Inbox for %s is empty.\n", update.Address)
		return
	}
	for i, m := range update.Messages {
		mark := " "
		if !m.Read {
			mark = "*"
		}
		fmt.Printf("%s %2d. %-30s %s\n", mark, i+1, m.Sender, m.Subject)
	}
}

func pick(inbox []model.InboxMessage, arg string) (model.InboxMessage, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 1 || n > len(inbox) {
		return model.InboxMessage{}, false
	}
	return inbox[n-1], true
}

// readLines feeds lines from r into a channel that is closed at EOF or
// once done is closed.
func readLines(done <-chan struct{}, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}
