package config

import (
	"flag"
	"os"
	"time"

	"github.com/fells-code/seamless-auth-go/internal/api"
	"github.com/fells-code/seamless-auth-go/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the auth service (default from Config)
//	-m string   deployment mode: web | server
//	-t string   credential transport: bearer | cookie
//	-d string   sqlite DSN for persisted client state
//	-i int      request timeout in seconds
//
// os.Args is filtered through flagx.FilterArgs so flags owned by other
// components are left alone.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-m", "-t", "-d", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.Host, "a", cfg.Host, "base URL of the auth service")
	mode := fs.String("m", string(cfg.Mode), "deployment mode (web|server)")
	creds := fs.String("t", string(cfg.Credentials), "credential transport (bearer|cookie)")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "sqlite DSN for persisted client state")
	timeout := fs.Int("i", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.Mode = api.Mode(*mode)
	cfg.Credentials = api.CredentialMode(*creds)
	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
}
