// Command kmsagent runs the key custody flows against a KMS from the
// command line and can serve an in-memory KMS for development.
package main

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	keycustody "github.com/keycustody/client-go"
	"github.com/keycustody/client-go/internal/crypto"
	"github.com/keycustody/client-go/internal/logging"
	"github.com/keycustody/client-go/kmstest"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdin, os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "kmsagent",
		Usage:     "Enroll and retrieve RSA keys held by a key custody service",
		Version:   logging.Version,
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags:     globalFlags,
		Commands: []*cli.Command{
			{
				Name:   "get-private-key",
				Usage:  "Retrieve the private key of an account, enrolling one first if needed",
				Flags:  []cli.Flag{usernameFlag, passwordFlag},
				Action: getPrivateKey,
			},
			{
				Name:   "get-public-key",
				Usage:  "Look up a public key by key name id or username",
				Flags:  []cli.Flag{usernameFlag, keyNameIDFlag},
				Action: getPublicKey,
			},
			{
				Name:   "relay",
				Usage:  "Answer JSON tasks read line by line from stdin with JSON messages on stdout",
				Flags:  []cli.Flag{originFlag, allowedOriginsFlag},
				Action: relay,
			},
			{
				Name:   "serve-dev",
				Usage:  "Serve an in-memory KMS for development",
				Flags:  []cli.Flag{listenAddrFlag, dataDirFlag, tokenTTLFlag},
				Action: serveDev,
			},
		},
	}
}

// newClient builds a client from the config file overlaid with flags.
func newClient(cCtx *cli.Context, logger *slog.Logger, extra ...keycustody.Option) (*keycustody.Client, error) {
	cfg, err := LoadConfig(cCtx.String(configFlag.Name))
	if err != nil {
		return nil, err
	}
	if v := cCtx.String(urlFlag.Name); v != "" {
		cfg.URL = v
	}
	if v := cCtx.String(basePathFlag.Name); v != "" {
		cfg.BasePath = v
	}
	if v := cCtx.String(secretFlag.Name); v != "" {
		cfg.Secret = v
	}
	if v := cCtx.Duration(timeoutFlag.Name); v > 0 {
		cfg.Timeout = v
	}
	if v := cCtx.Duration(confirmTimeoutFlag.Name); v > 0 {
		cfg.ConfirmTimeout = v
	}
	if v := cCtx.String(keyFileFlag.Name); v != "" {
		cfg.KeyFile = v
	}
	if v := cCtx.StringSlice(allowedOriginsFlag.Name); len(v) > 0 {
		cfg.AllowedOrigins = v
	}

	opts := []keycustody.Option{
		keycustody.WithBaseURL(cfg.URL),
		keycustody.WithLogger(logger),
		keycustody.WithRetries(cfg.Retries),
	}
	if cfg.BasePath != "" {
		opts = append(opts, keycustody.WithBasePath(cfg.BasePath))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, keycustody.WithTimeout(cfg.Timeout))
	}
	if cfg.ConfirmTimeout > 0 {
		opts = append(opts, keycustody.WithConfirmTimeout(cfg.ConfirmTimeout))
	}
	if len(cfg.AllowedOrigins) > 0 {
		opts = append(opts, keycustody.WithAllowedOrigins(cfg.AllowedOrigins...))
	}
	if cfg.KeyFile != "" {
		priv, err := loadPrivateKey(cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, keycustody.WithKeyPair(priv))
	}
	return keycustody.New(cfg.Secret, append(opts, extra...)...)
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	defer crypto.Zero(data)
	return crypto.ParsePrivateJWK(data)
}

func getPrivateKey(cCtx *cli.Context) error {
	logger := setupLogger(cCtx)
	client, err := newClient(cCtx, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	priv, err := client.GetPrivateKey(cCtx.Context, cCtx.String(usernameFlag.Name), cCtx.String(passwordFlag.Name))
	if err != nil {
		return err
	}
	jwk, err := crypto.MarshalPrivateJWK(priv)
	if err != nil {
		return err
	}
	defer crypto.Zero(jwk)
	_, err = fmt.Fprintf(cCtx.App.Writer, "%s\n", jwk)
	return err
}

func getPublicKey(cCtx *cli.Context) error {
	var id keycustody.Identifier
	switch {
	case cCtx.IsSet(keyNameIDFlag.Name):
		id = keycustody.ByKeyNameID(cCtx.String(keyNameIDFlag.Name))
	case cCtx.IsSet(usernameFlag.Name):
		id = keycustody.ByUsername(cCtx.String(usernameFlag.Name))
	default:
		return errors.New("one of --keynameid or --username is required")
	}

	logger := setupLogger(cCtx)
	client, err := newClient(cCtx, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	pub, err := client.GetPublicKey(cCtx.Context, id)
	if err != nil {
		return err
	}
	jwk, err := crypto.PublicJWK(pub.Key)
	if err != nil {
		return err
	}
	return json.NewEncoder(cCtx.App.Writer).Encode(map[string]any{
		"key":       jwk,
		"keyNameId": pub.KeyNameID,
	})
}

func relay(cCtx *cli.Context) error {
	logger := setupLogger(cCtx)
	client, err := newClient(cCtx, logger, keycustody.WithRelay(keycustody.NewWriterRelay(cCtx.App.Writer)))
	if err != nil {
		return err
	}
	defer client.Close()

	logger.Info("relay started", "origin", cCtx.String(originFlag.Name))
	err = client.ServeTasks(cCtx.Context, cCtx.App.Reader, cCtx.String(originFlag.Name))
	logger.Info("relay stopped", "sessions", client.Sessions())
	return err
}

func serveDev(cCtx *cli.Context) error {
	logger := setupLogger(cCtx)
	opts := []kmstest.Option{kmstest.WithLogger(logger)}
	if ttl := cCtx.Duration(tokenTTLFlag.Name); ttl > 0 {
		opts = append(opts, kmstest.WithTokenTTL(ttl))
	}
	if dir := cCtx.String(dataDirFlag.Name); dir != "" {
		st, err := kmstest.OpenBadgerStore(dir)
		if err != nil {
			return err
		}
		defer st.Close()
		opts = append(opts, kmstest.WithStore(st))
	}
	kms := kmstest.New(opts...)
	if err := kms.Restore(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cCtx.String(listenAddrFlag.Name),
		Handler:           kms.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("development KMS listening", "addr", srv.Addr, "base_path", kmstest.BasePath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-cCtx.Context.Done():
	}

	logger.Info("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info("server shutdown complete",
		"requests", kms.Requests(), "enrolled", kms.Enrolled(), "retrieved", kms.Retrieved())
	return nil
}
