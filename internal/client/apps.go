package client

import (
	"context"
	"fmt"
	"net/url"

	internalhttp "github.com/fivetwenty-io/capi-facade/internal/http"
	"github.com/fivetwenty-io/capi-facade/pkg/capi"
)

// AppsClient implements capi.AppsClient.
type AppsClient struct {
	httpClient *internalhttp.Client
	spaceGUID  string
}

// NewAppsClient creates a new apps client. A non-empty spaceGUID scopes
// GetByName to that space.
func NewAppsClient(httpClient *internalhttp.Client, spaceGUID string) *AppsClient {
	return &AppsClient{
		httpClient: httpClient,
		spaceGUID:  spaceGUID,
	}
}

// Get implements capi.AppsClient.Get.
func (c *AppsClient) Get(ctx context.Context, guid string, required bool) (*capi.App, error) {
	resp, err := c.httpClient.Get(ctx, "/v3/apps/"+guid, nil)
	if err != nil {
		if !required && capi.IsNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting app: %w", err)
	}

	var app capi.App

	err = decodeResponse(resp, &app, "app")
	if err != nil {
		return nil, err
	}

	return &app, nil
}

// GetByName implements capi.AppsClient.GetByName.
func (c *AppsClient) GetByName(ctx context.Context, name string, required bool) (*capi.App, error) {
	query := url.Values{"names": []string{name}}
	if c.spaceGUID != "" {
		query.Set("space_guids", c.spaceGUID)
	}

	apps, err := c.List(ctx, query)
	if err != nil {
		return nil, err
	}

	if len(apps.Resources) == 0 {
		if !required {
			return nil, nil
		}

		return nil, capi.NewOperationError(capi.ErrResourceNotFound, 0, fmt.Sprintf("app %q not found", name), nil)
	}

	return &apps.Resources[0], nil
}

// List implements capi.AppsClient.List.
func (c *AppsClient) List(ctx context.Context, query url.Values) (*capi.ListResponse[capi.App], error) {
	resp, err := c.httpClient.Get(ctx, "/v3/apps", query)
	if err != nil {
		return nil, fmt.Errorf("listing apps: %w", err)
	}

	var result capi.ListResponse[capi.App]

	err = decodeResponse(resp, &result, "apps list")
	if err != nil {
		return nil, err
	}

	return &result, nil
}
