package client

import (
	"context"
	"fmt"

	internalhttp "github.com/fivetwenty-io/capi-facade/internal/http"
	"github.com/fivetwenty-io/capi-facade/pkg/capi"
)

// ServiceBrokersClient implements capi.ServiceBrokersClient. Create, Update and
// Delete return the job GUID of the catalog synchronization.
type ServiceBrokersClient struct {
	httpClient *internalhttp.Client
}

// NewServiceBrokersClient creates a new service brokers client.
func NewServiceBrokersClient(httpClient *internalhttp.Client) *ServiceBrokersClient {
	return &ServiceBrokersClient{
		httpClient: httpClient,
	}
}

// Get implements capi.ServiceBrokersClient.Get.
func (c *ServiceBrokersClient) Get(ctx context.Context, guid string) (*capi.ServiceBroker, error) {
	resp, err := c.httpClient.Get(ctx, "/v3/service_brokers/"+guid, nil)
	if err != nil {
		return nil, fmt.Errorf("getting service broker: %w", err)
	}

	var broker capi.ServiceBroker

	err = decodeResponse(resp, &broker, "service broker")
	if err != nil {
		return nil, err
	}

	return &broker, nil
}

// Create implements capi.ServiceBrokersClient.Create.
func (c *ServiceBrokersClient) Create(ctx context.Context, request *capi.ServiceBrokerCreateRequest) (string, error) {
	resp, err := c.httpClient.Post(ctx, "/v3/service_brokers", request)
	if err != nil {
		return "", fmt.Errorf("creating service broker: %w", err)
	}

	return jobGUIDFromResponse(resp)
}

// Update implements capi.ServiceBrokersClient.Update.
func (c *ServiceBrokersClient) Update(ctx context.Context, guid string, request *capi.ServiceBrokerUpdateRequest) (string, error) {
	resp, err := c.httpClient.Patch(ctx, "/v3/service_brokers/"+guid, request)
	if err != nil {
		return "", fmt.Errorf("updating service broker: %w", err)
	}

	return jobGUIDFromResponse(resp)
}

// Delete implements capi.ServiceBrokersClient.Delete.
func (c *ServiceBrokersClient) Delete(ctx context.Context, guid string) (string, error) {
	resp, err := c.httpClient.Delete(ctx, "/v3/service_brokers/"+guid)
	if err != nil {
		return "", fmt.Errorf("deleting service broker: %w", err)
	}

	return jobGUIDFromResponse(resp)
}
