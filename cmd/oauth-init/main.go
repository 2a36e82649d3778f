// Command oauth-init obtains the OAuth token the sync worker uses when no
// service account is configured.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"expensecal/internal/cli"
	"expensecal/internal/config"
	applog "expensecal/internal/log"
	gsheet "expensecal/internal/sheets/google"
)

const authTimeout = 5 * time.Minute

func main() {
	cli.LoadEnvFile()
	logger := applog.Setup(applog.DefaultConfig().Level, applog.ComponentSheets)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", applog.FieldError, err)
		os.Exit(1)
	}
	gcfg := gsheet.Config{
		OAuthClientJSON: cfg.Google.OAuthClientJSON,
		OAuthClientFile: cfg.Google.OAuthClientFile,
		OAuthTokenFile:  cfg.Google.OAuthTokenFile,
	}

	oc, err := gsheet.OAuthConfig(gcfg)
	if err != nil {
		logger.Error("Failed to load OAuth client", applog.FieldError, err)
		os.Exit(1)
	}

	// The OAuth client must list this redirect URI.
	port := os.Getenv("OAUTH_REDIRECT_PORT")
	if port == "" {
		port = "8085"
	}
	oc.RedirectURL = "http://localhost:" + port + "/callback"

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	code, err := authorize(ctx, oc, ":"+port)
	if err != nil {
		logger.Error("Authorization failed", applog.FieldError, err)
		os.Exit(1)
	}

	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		logger.Error("Token exchange failed", applog.FieldError, err)
		os.Exit(1)
	}
	path := gsheet.TokenFile(gcfg)
	if err := gsheet.WriteToken(path, tok); err != nil {
		logger.Error("Failed to save token", applog.FieldError, err, "path", path)
		os.Exit(1)
	}
	logger.Info("Saved OAuth token", "path", path)
}

// authorize prints the consent URL and waits for the redirect carrying the
// authorization code.
func authorize(ctx context.Context, oc *oauth2.Config, addr string) (string, error) {
	state := uuid.NewString()
	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res result
		switch {
		case q.Get("state") != state:
			res.err = errors.New("state mismatch")
		case q.Get("error") != "":
			res.err = fmt.Errorf("consent refused: %s", q.Get("error"))
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			results <- result{err: err}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Open this URL to authorize:\n%s\n", oc.AuthCodeURL(state, oauth2.AccessTypeOffline))

	select {
	case res := <-results:
		return res.code, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for authorization: %w", ctx.Err())
	}
}
