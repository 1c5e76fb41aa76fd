package main

import (
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/keycustody/client-go/internal/logging"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML config file",
		EnvVars: []string{"KMS_CONFIG"},
	}
	urlFlag = &cli.StringFlag{
		Name:    "url",
		Usage:   "KMS origin, e.g. https://kms.example.com",
		EnvVars: []string{"KMS_URL"},
	}
	basePathFlag = &cli.StringFlag{
		Name:  "base-path",
		Usage: "path prefix of the KMS endpoints (default /KMS)",
	}
	secretFlag = &cli.StringFlag{
		Name:    "secret",
		Usage:   "base64 application secret mixed into the wrapping key",
		EnvVars: []string{"KMS_SECRET"},
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "HTTP request timeout",
	}
	confirmTimeoutFlag = &cli.DurationFlag{
		Name:  "confirm-timeout",
		Usage: "how long to wait for the login confirmation",
	}
	keyFileFlag = &cli.StringFlag{
		Name:  "key-file",
		Usage: "private JWK to enroll instead of generating a fresh key pair",
	}

	usernameFlag = &cli.StringFlag{
		Name:    "username",
		Aliases: []string{"u"},
		Usage:   "account name sent with the confirmation",
	}
	passwordFlag = &cli.StringFlag{
		Name:    "password",
		Usage:   "password protecting the stored key",
		EnvVars: []string{"KMS_PASSWORD"},
	}
	keyNameIDFlag = &cli.StringFlag{
		Name:  "keynameid",
		Usage: "look the key up by key name id",
	}
	originFlag = &cli.StringFlag{
		Name:  "origin",
		Value: "stdin",
		Usage: "origin the tasks are attributed to",
	}
	allowedOriginsFlag = &cli.StringSliceFlag{
		Name:  "allowed-origin",
		Usage: "origin allowed to submit tasks; repeatable",
	}
	listenAddrFlag = &cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "data-dir",
		Usage: "directory persisting the development KMS accounts; in memory when empty",
	}
	tokenTTLFlag = &cli.DurationFlag{
		Name:  "token-ttl",
		Usage: "lifetime of access tokens issued by the development KMS",
	}

	logJSONFlag = &cli.BoolFlag{
		Name:  "log-json",
		Usage: "log in JSON format",
	}
	logDebugFlag = &cli.BoolFlag{
		Name:  "log-debug",
		Usage: "log debug messages",
	}
	logUIDFlag = &cli.BoolFlag{
		Name:  "log-uid",
		Usage: "generate a uuid and add to all log messages",
	}
	logServiceFlag = &cli.StringFlag{
		Name:  "log-service",
		Value: "kmsagent",
		Usage: "add 'service' tag to logs",
	}
)

var globalFlags = []cli.Flag{
	configFlag, urlFlag, basePathFlag, secretFlag, timeoutFlag,
	confirmTimeoutFlag, keyFileFlag,
	logJSONFlag, logDebugFlag, logUIDFlag, logServiceFlag,
}

func setupLogger(cCtx *cli.Context) *slog.Logger {
	return logging.Setup(&logging.Options{
		JSON:    cCtx.Bool(logJSONFlag.Name),
		Debug:   cCtx.Bool(logDebugFlag.Name),
		UID:     cCtx.Bool(logUIDFlag.Name),
		Service: cCtx.String(logServiceFlag.Name),
		Version: logging.Version,
		Output:  cCtx.App.ErrWriter,
	})
}
