package main

import (
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/kalambet/podio/internal/config"
	"github.com/kalambet/podio/internal/contact"
	"github.com/kalambet/podio/internal/podio"
	"github.com/kalambet/podio/internal/user"
)

type apiClients struct {
	users    *user.API
	contacts *contact.API
}

// newAPIs builds the API facades from configuration. Tests replace it to
// point commands at a local server.
var newAPIs = func(cmd *cobra.Command) (*apiClients, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	token, err := config.RequireToken(cfg)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.API.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	c := podio.New(cfg.API.BaseURL,
		podio.WithHTTPClient(&http.Client{Timeout: timeout}),
		podio.WithTokenSource(podio.StaticToken(token)),
		podio.WithUserAgent("podio-cli/"+version),
		podio.WithLogger(slog.Default()),
	)
	return &apiClients{users: user.NewAPI(c), contacts: contact.NewAPI(c)}, nil
}
