package historical

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pquerna/otp/totp"

	"marketcontext/pkg/smartconnect"
)

// Credentials are the Angel One login inputs.
type Credentials struct {
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string
}

// Login generates a fresh TOTP and opens a SmartAPI session.
func Login(ctx context.Context, creds Credentials, cfg smartconnect.Config) (*smartconnect.SmartConnect, error) {
	code, err := totp.GenerateCode(creds.TOTPSecret, time.Now())
	if err != nil {
		return nil, fmt.Errorf("totp: %w", err)
	}

	cfg.APIKey = creds.APIKey
	sc := smartconnect.NewSmartConnect(cfg)
	if err := sc.GenerateSession(ctx, creds.ClientCode, creds.Password, code); err != nil {
		return nil, err
	}
	log.Printf("[historical] session ready for %s", creds.ClientCode)
	return sc, nil
}
