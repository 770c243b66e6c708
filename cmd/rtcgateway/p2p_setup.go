package main

import (
	"context"
	"fmt"

	"github.com/nodeglow/rtcgateway/internal/credentials"
	"github.com/nodeglow/rtcgateway/internal/oauth"
	"github.com/nodeglow/rtcgateway/internal/rtcconfig"
)

func credentialsPath() string {
	cfg, err := rtcconfig.Load(cfgFile)
	if err == nil && cfg.CredentialsPath != "" {
		return cfg.CredentialsPath
	}
	return credentials.DefaultPath()
}

// runP2PSetup runs the OAuth device flow and saves the resulting
// credentials. reauth forces a fresh flow even if credentials already
// exist, overwriting them.
func runP2PSetup(ctx context.Context, reauth bool) error {
	path := credentialsPath()

	if !reauth {
		if _, err := credentials.Load(path); err == nil {
			fmt.Println("credentials already present; use --p2p-reauth to force a new OAuth flow")
			return nil
		}
	}

	cfg, err := rtcconfig.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.P2PAuthURL == "" {
		return fmt.Errorf("p2p-setup: P2P_AUTH_URL is not configured")
	}

	creds, err := oauth.New(oauth.DefaultConfig(cfg.P2PAuthURL)).Setup(ctx)
	if err != nil {
		return err
	}
	if err := creds.Save(path); err != nil {
		return err
	}
	fmt.Printf("credentials saved to %s\n", path)
	return nil
}

// runP2PSaveAPIKey persists an API key directly, bypassing the OAuth flow.
func runP2PSaveAPIKey(apiKey string) error {
	path := credentialsPath()
	if err := credentials.New(apiKey).Save(path); err != nil {
		return err
	}
	fmt.Printf("api key saved to %s\n", path)
	return nil
}
