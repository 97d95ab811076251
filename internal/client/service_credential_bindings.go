package client

import (
	"context"
	"fmt"
	"net/url"

	internalhttp "github.com/fivetwenty-io/capi-facade/internal/http"
	"github.com/fivetwenty-io/capi-facade/pkg/capi"
)

const serviceCredentialBindingsPath = "/v3/service_credential_bindings"

// ServiceCredentialBindingsClient implements capi.ServiceCredentialBindingsClient.
type ServiceCredentialBindingsClient struct {
	httpClient *internalhttp.Client
}

// NewServiceCredentialBindingsClient creates a new service credential bindings client.
func NewServiceCredentialBindingsClient(httpClient *internalhttp.Client) *ServiceCredentialBindingsClient {
	return &ServiceCredentialBindingsClient{
		httpClient: httpClient,
	}
}

// Get implements capi.ServiceCredentialBindingsClient.Get.
func (c *ServiceCredentialBindingsClient) Get(ctx context.Context, guid string) (*capi.ServiceCredentialBinding, error) {
	resp, err := c.httpClient.Get(ctx, serviceCredentialBindingsPath+"/"+guid, nil)
	if err != nil {
		return nil, fmt.Errorf("getting service credential binding: %w", err)
	}

	var binding capi.ServiceCredentialBinding

	err = decodeResponse(resp, &binding, "service credential binding")
	if err != nil {
		return nil, err
	}

	return &binding, nil
}

// List implements capi.ServiceCredentialBindingsClient.List.
func (c *ServiceCredentialBindingsClient) List(ctx context.Context, query url.Values) (*capi.ListResponse[capi.ServiceCredentialBinding], error) {
	resp, err := c.httpClient.Get(ctx, serviceCredentialBindingsPath, query)
	if err != nil {
		return nil, fmt.Errorf("listing service credential bindings: %w", err)
	}

	var result capi.ListResponse[capi.ServiceCredentialBinding]

	err = decodeResponse(resp, &result, "service credential bindings list")
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// Bind binds an application to a service instance.
func (c *ServiceCredentialBindingsClient) Bind(ctx context.Context, appGUID, serviceInstanceGUID string, params map[string]interface{}) (string, error) {
	app := capi.ToOne(appGUID)

	return c.create(ctx, &capi.ServiceCredentialBindingCreateRequest{
		Type:       capi.BindingTypeApp,
		Parameters: params,
		Relationships: capi.ServiceCredentialBindingRelationships{
			App:             &app,
			ServiceInstance: capi.ToOne(serviceInstanceGUID),
		},
	})
}

// Unbind removes the binding between an application and a service instance.
func (c *ServiceCredentialBindingsClient) Unbind(ctx context.Context, appGUID, serviceInstanceGUID string) (string, error) {
	bindings, err := c.List(ctx, url.Values{
		"type":                   []string{capi.BindingTypeApp},
		"app_guids":              []string{appGUID},
		"service_instance_guids": []string{serviceInstanceGUID},
	})
	if err != nil {
		return "", err
	}

	if len(bindings.Resources) == 0 {
		return "", capi.NewOperationError(capi.ErrResourceNotFound, 0,
			fmt.Sprintf("app %s is not bound to service instance %s", appGUID, serviceInstanceGUID), nil)
	}

	return c.Delete(ctx, bindings.Resources[0].GUID)
}

// CreateKey creates a service key.
func (c *ServiceCredentialBindingsClient) CreateKey(ctx context.Context, serviceInstanceGUID, name string, params map[string]interface{}) (string, error) {
	return c.create(ctx, &capi.ServiceCredentialBindingCreateRequest{
		Type:       capi.BindingTypeKey,
		Name:       &name,
		Parameters: params,
		Relationships: capi.ServiceCredentialBindingRelationships{
			ServiceInstance: capi.ToOne(serviceInstanceGUID),
		},
	})
}

// GetKeyByName returns the named service key of an instance.
func (c *ServiceCredentialBindingsClient) GetKeyByName(ctx context.Context, serviceInstanceGUID, name string) (*capi.ServiceCredentialBinding, error) {
	keys, err := c.List(ctx, url.Values{
		"type":                   []string{capi.BindingTypeKey},
		"names":                  []string{name},
		"service_instance_guids": []string{serviceInstanceGUID},
	})
	if err != nil {
		return nil, err
	}

	if len(keys.Resources) == 0 {
		return nil, capi.NewOperationError(capi.ErrResourceNotFound, 0, fmt.Sprintf("service key %q not found", name), nil)
	}

	return &keys.Resources[0], nil
}

// Delete implements capi.ServiceCredentialBindingsClient.Delete.
func (c *ServiceCredentialBindingsClient) Delete(ctx context.Context, guid string) (string, error) {
	resp, err := c.httpClient.Delete(ctx, serviceCredentialBindingsPath+"/"+guid)
	if err != nil {
		return "", fmt.Errorf("deleting service credential binding: %w", err)
	}

	return jobGUIDFromResponse(resp)
}

func (c *ServiceCredentialBindingsClient) create(ctx context.Context, request *capi.ServiceCredentialBindingCreateRequest) (string, error) {
	resp, err := c.httpClient.Post(ctx, serviceCredentialBindingsPath, request)
	if err != nil {
		return "", fmt.Errorf("creating service credential binding: %w", err)
	}

	return jobGUIDFromResponse(resp)
}
