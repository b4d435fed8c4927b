// Package rocket is a thin client for the rocket-platform API, which manages
// the on-demand EC2 GPU instances used as build hosts.
package rocket

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

const defaultPollInterval = 15 * time.Second

// Instance is a GPU build host as rocket-platform reports it.
type Instance struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	State   string `json:"state"`
	OS      string `json:"os"`
}

type createRequest struct {
	OS            string `json:"os"`
	InstanceType  string `json:"instance_type"`
	LifetimeHours int    `json:"lifetime_hours"`
}

// Client talks to one rocket-platform deployment. Authentication is a GitHub
// token passed as a bearer.
type Client struct {
	client *resty.Client

	// PollInterval is overridable for tests.
	PollInterval time.Duration
}

func NewClient(apiURL, token string) *Client {
	return &Client{
		client:       resty.New().SetBaseURL(apiURL).SetAuthToken(token),
		PollInterval: defaultPollInterval,
	}
}

// CreateInstance asks for a new GPU instance and blocks until it is running.
// The instance self-terminates after lifetimeHours; stopping earlier is the
// caller's courtesy, not a requirement.
func (c *Client) CreateInstance(ctx context.Context, osName, instanceType string, lifetimeHours int) (*Instance, error) {
	log.Infof("Creating a %s %s instance", osName, instanceType)
	var created Instance
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(createRequest{OS: osName, InstanceType: instanceType, LifetimeHours: lifetimeHours}).
		SetResult(&created).
		Post("/instances")
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	if resp.IsError() {
		return nil, breverrors.WrapAndTrace(fmt.Errorf("creating instance failed: %s", resp.Status()))
	}

	log.Info("Waiting for the instance to come up")
	for {
		instance, err := c.GetInstance(ctx, created.ID)
		if err != nil {
			return nil, breverrors.WrapAndTrace(err)
		}
		switch instance.State {
		case "running":
			log.Infof("Instance '%s' is running at %s", instance.ID, instance.Address)
			return instance, nil
		case "failed", "terminated":
			return nil, breverrors.WrapAndTrace(fmt.Errorf("instance '%s' ended up %s", instance.ID, instance.State))
		}
		select {
		case <-ctx.Done():
			return nil, breverrors.WrapAndTrace(ctx.Err())
		case <-time.After(c.PollInterval):
		}
	}
}

// GetInstance fetches one instance by ID or IP.
func (c *Client) GetInstance(ctx context.Context, idOrIP string) (*Instance, error) {
	var instance Instance
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&instance).
		SetPathParam("id", idOrIP).
		Get("/instances/{id}")
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	if resp.IsError() {
		return nil, breverrors.WrapAndTrace(fmt.Errorf("fetching instance '%s' failed: %s", idOrIP, resp.Status()))
	}
	return &instance, nil
}

// StopInstance terminates an instance by ID or IP.
func (c *Client) StopInstance(ctx context.Context, idOrIP string) error {
	log.Infof("Stopping instance '%s'", idOrIP)
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", idOrIP).
		Post("/instances/{id}/stop")
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	if resp.IsError() {
		return breverrors.WrapAndTrace(fmt.Errorf("stopping instance '%s' failed: %s", idOrIP, resp.Status()))
	}
	log.Info("Instance stopped")
	return nil
}
