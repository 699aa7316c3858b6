// Package main provides the join CLI: it redeems a Komandorr invite by
// driving the Plex PIN authorization flow from the terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/komandorr/komandorr-server/internal/browser"
	"github.com/komandorr/komandorr-server/internal/logger"
	"github.com/komandorr/komandorr-server/internal/redemption"
)

// browserOpener adapts the browser package to the coordinator's
// popup opener.
type browserOpener struct {
	opener *browser.Opener
}

func (b browserOpener) Open(url string) (redemption.Popup, error) {
	return b.opener.Open(url)
}

func main() {
	serverURL := flag.String("server", "", "Komandorr server URL (e.g. https://join.example.com)")
	code := flag.String("code", "", "Invite code to redeem")
	timeout := flag.Duration("timeout", 5*time.Minute, "How long to wait for authorization")
	logLevel := flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flag.Parse()

	if *serverURL == "" || *code == "" {
		fmt.Fprintln(os.Stderr, "Usage: join --server <url> --code <invite-code>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	log := logger.New(logger.Config{
		Level: logger.ParseLevel(*logLevel),
	})

	backend := redemption.NewClient(*serverURL)
	opener := browserOpener{opener: browser.NewOpener(log.Logger)}

	opts := redemption.DefaultOptions()
	opts.Timeout = *timeout

	coordinator := redemption.NewCoordinator(backend, opener, opts, log.Logger)
	defer coordinator.Close()

	// Terminal states land here; intermediate ones just update the console.
	done := make(chan redemption.State, 1)
	coordinator.OnStateChange(func(s redemption.State) {
		switch s {
		case redemption.StateAuthenticating:
			fmt.Println("Waiting for you to approve the sign-in in your browser...")
		case redemption.StateAuthorized:
			fmt.Println("Authorized. Finishing up...")
		case redemption.StateInvalid, redemption.StateSucceeded, redemption.StateFailed:
			done <- s
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		fmt.Fprintln(os.Stderr, "\nCancelled.")
		cancel()
	}()

	fmt.Printf("Checking invite %s...\n", *code)
	if err := coordinator.Validate(ctx, *code); err != nil {
		if redemption.IsInviteInvalid(err) {
			fmt.Fprintf(os.Stderr, "Invite cannot be redeemed: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Could not check the invite: %v\nVerify the --server URL and try again.\n", err)
		}
		os.Exit(1)
	}

	if err := coordinator.StartAuth(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Could not start authorization: %v\n", err)
		os.Exit(1)
	}

	switch <-done {
	case redemption.StateSucceeded:
		result := coordinator.Result()
		if result != nil && result.Member != nil {
			fmt.Printf("Welcome aboard, %s! You now have access to the server.\n", result.Member.Username)
		} else {
			fmt.Println("You already have access to this server.")
		}
	case redemption.StateFailed:
		fmt.Fprintf(os.Stderr, "Redemption failed: %s\n", coordinator.FailureReason())
		os.Exit(1)
	default:
		os.Exit(1)
	}
}
