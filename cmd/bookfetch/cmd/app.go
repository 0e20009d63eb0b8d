package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"go-bookfetch/internal/activity"
	"go-bookfetch/internal/api"
	"go-bookfetch/internal/downloader"
	"go-bookfetch/internal/orchestrator"
	"go-bookfetch/internal/policy"
	"go-bookfetch/internal/state"
	"go-bookfetch/internal/status"
)

// app bundles the wired collaborators a command needs, so each command
// builds exactly one and closes it when done.
type app struct {
	client   *api.Client
	policies *policy.Store
	feed     *status.Feed
	state    *state.Store
	history  *activity.HistoryStore
	feedView *activity.Aggregator
	fetcher  *downloader.Downloader
}

func newAPIClient() (*api.Client, error) {
	if globalConfig.ServerURL == "" {
		return nil, fmt.Errorf("no server URL configured (set via --server flag or ServerUrl in config)")
	}
	httpClient := &http.Client{
		Transport: globalHttpTransport,
		Timeout:   time.Duration(globalConfig.APIClientTimeoutSec) * time.Second,
	}
	return api.NewClient(globalConfig.ServerURL, globalConfig.APIKey, httpClient, globalConfig), nil
}

// newApp wires the full collaborator set. Commands that only need the API
// client can use newAPIClient directly.
func newApp() (*app, error) {
	client, err := newAPIClient()
	if err != nil {
		return nil, err
	}

	stateStore, err := state.Open(globalConfig.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	history, err := activity.OpenHistory(globalConfig.HistoryPath)
	if err != nil {
		stateStore.Close()
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	feed := status.NewFeed(client, time.Duration(globalConfig.PollIntervalSec)*time.Second, nil)
	policies := policy.NewStore(client, time.Duration(globalConfig.PolicyTTLSec)*time.Second)

	return &app{
		client:   client,
		policies: policies,
		feed:     feed,
		state:    stateStore,
		history:  history,
		feedView: activity.NewAggregator(feed, client, stateStore, history),
		fetcher:  downloader.New(client, globalConfig.SavePath, globalConfig.SavePathPattern),
	}, nil
}

// newCoordinator wires the orchestrator behind the delegation coordinator,
// using the server-declared identity to validate the stored delegate.
func (a *app) newCoordinator(ctx context.Context, confirmer orchestrator.RequestConfirmer) (*orchestrator.Coordinator, error) {
	var username string
	var isAdmin bool
	if p := a.policies.Refresh(ctx, false); p != nil {
		username = p.CurrentUsername
		isAdmin = p.IsAdmin
	}

	orch := orchestrator.New(a.client, a.policies, a.feed, a.state, newNotifier(), confirmer, nil)
	return orchestrator.NewCoordinator(orch, a.state, username, isAdmin), nil
}

func (a *app) Close() {
	if err := a.state.Close(); err != nil {
		log.WithError(err).Warn("Failed to close state store")
	}
	if err := a.history.Close(); err != nil {
		log.WithError(err).Warn("Failed to close history store")
	}
}
