package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
)

// Loopback ports tried for the OAuth redirect.
const (
	callbackPortMin = 18080
	callbackPortMax = 18099
)

var mailboxCmd = &cobra.Command{
	Use:   "mailbox",
	Short: "Manage the mailbox producer",
}

var mailboxAuthorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Authorize read-only access to the mailbox",
	Long: `Opens the provider's consent page and stores the resulting refresh token
in mailbox.token_file. mailbox.client_id and mailbox.client_secret must be
set, and http://localhost:18080-18099/callback registered as redirect URIs.`,
	RunE: runMailboxAuthorize,
}

var (
	mailboxNoBrowser bool
	mailboxTimeout   time.Duration
)

func init() {
	mailboxAuthorizeCmd.Flags().BoolVar(&mailboxNoBrowser, "no-browser", false, "print the URL instead of opening a browser")
	mailboxAuthorizeCmd.Flags().DurationVar(&mailboxTimeout, "timeout", 5*time.Minute, "how long to wait for the redirect")

	mailboxCmd.AddCommand(mailboxAuthorizeCmd)
	rootCmd.AddCommand(mailboxCmd)
}

func runMailboxAuthorize(cmd *cobra.Command, _ []string) error {
	rt, err := requireRuntime()
	if err != nil {
		return err
	}
	if rt.MailboxAuth == nil {
		return errors.New("mailbox authorization not configured")
	}

	server, err := listenLoopback(callbackPortMin, callbackPortMax)
	if err != nil {
		return err
	}
	defer func() { _ = server.Close() }()

	flow, err := rt.MailboxAuth.Begin(server.RedirectURI())
	if err != nil {
		return err
	}
	server.Serve(flow.State)

	cmd.Println("Open this URL to authorize filer:")
	cmd.Println()
	cmd.Println("  " + flow.AuthURL)
	cmd.Println()
	if !mailboxNoBrowser {
		if err := openBrowser(flow.AuthURL); err != nil {
			cmd.Println(yellow("Could not open a browser; open the URL manually."))
		}
	}

	ctx, cancel := signalContext()
	defer cancel()
	waitCtx, cancelWait := context.WithTimeout(ctx, mailboxTimeout)
	defer cancelWait()

	code, err := server.WaitForCode(waitCtx)
	if err != nil {
		return err
	}
	if err := rt.MailboxAuth.Complete(ctx, flow, code); err != nil {
		return err
	}
	cmd.Printf("%s Mailbox authorized\n", green("✓"))
	return nil
}
