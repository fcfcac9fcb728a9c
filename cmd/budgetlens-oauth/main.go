// Command budgetlens-oauth runs the installed-app OAuth flow once and saves
// the token used by the sheets backend.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"budgetlens/internal/cli"
	"budgetlens/internal/entries/google"
)

const authTimeout = 5 * time.Minute

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(nil, os.Stderr)

	creds := google.CredentialsFromEnv()
	clientJSON, err := creds.OAuthClient()
	if err != nil {
		cli.Fatal(logger, "Missing OAuth client", err)
	}
	cfg, err := google.OAuthConfig(clientJSON)
	if err != nil {
		cli.Fatal(logger, "Invalid OAuth client", err)
	}

	// The redirect URI must be registered on the OAuth client.
	redirectPort := os.Getenv("OAUTH_REDIRECT_PORT")
	if redirectPort == "" {
		redirectPort = "8085"
	}
	cfg.RedirectURL = "http://localhost:" + redirectPort + "/callback"

	state := uuid.NewString()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("error") != "":
			http.Error(w, "OAuth error: "+q.Get("error"), http.StatusBadRequest)
			errCh <- errors.New(q.Get("error"))
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
		default:
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
			codeCh <- q.Get("code")
		}
	})
	srv := &http.Server{Addr: ":" + redirectPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	defer srv.Close()

	fmt.Printf("Open this URL to authorize:\n%s\n", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		cli.Fatal(logger, "Authorization failed", err)
	case <-ctx.Done():
		cli.Fatal(logger, "Authorization aborted", ctx.Err())
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		cli.Fatal(logger, "Token exchange failed", err)
	}

	outFile := creds.OAuthTokenFile
	if outFile == "" {
		outFile = "token.json"
	}
	data, err := json.Marshal(tok)
	if err != nil {
		cli.Fatal(logger, "Encode token", err)
	}
	if err := os.WriteFile(outFile, data, 0o600); err != nil {
		cli.Fatal(logger, "Write token", err, "path", outFile)
	}
	logger.Info("Saved OAuth token", "path", outFile)
}
