package client

import (
	"context"
	"fmt"

	internalhttp "github.com/fivetwenty-io/capi-facade/internal/http"
	"github.com/fivetwenty-io/capi-facade/pkg/capi"
)

// ServiceInstancesClient implements capi.ServiceInstancesClient.
type ServiceInstancesClient struct {
	httpClient *internalhttp.Client
}

// NewServiceInstancesClient creates a new service instances client.
func NewServiceInstancesClient(httpClient *internalhttp.Client) *ServiceInstancesClient {
	return &ServiceInstancesClient{
		httpClient: httpClient,
	}
}

// Get implements capi.ServiceInstancesClient.Get.
func (c *ServiceInstancesClient) Get(ctx context.Context, guid string) (*capi.ServiceInstance, error) {
	resp, err := c.httpClient.Get(ctx, "/v3/service_instances/"+guid, nil)
	if err != nil {
		return nil, fmt.Errorf("getting service instance: %w", err)
	}

	var instance capi.ServiceInstance

	err = decodeResponse(resp, &instance, "service instance")
	if err != nil {
		return nil, err
	}

	return &instance, nil
}

// Delete implements capi.ServiceInstancesClient.Delete. Managed instances are
// deleted asynchronously; user-provided ones return "".
func (c *ServiceInstancesClient) Delete(ctx context.Context, guid string) (string, error) {
	resp, err := c.httpClient.Delete(ctx, "/v3/service_instances/"+guid)
	if err != nil {
		return "", fmt.Errorf("deleting service instance: %w", err)
	}

	return jobGUIDFromResponse(resp)
}
