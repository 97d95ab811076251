package capi

import "time"

// App is the subset of an application resource this client reads.
type App struct {
	Resource

	Name          string           `json:"name"               yaml:"name"`
	State         string           `json:"state"              yaml:"state"`
	Lifecycle     Lifecycle        `json:"lifecycle"          yaml:"lifecycle"`
	Metadata      *Metadata        `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Relationships AppRelationships `json:"relationships"      yaml:"relationships"`
}

// AppRelationships represents app relationships.
type AppRelationships struct {
	Space Relationship `json:"space" yaml:"space"`
}

// Lifecycle represents app lifecycle configuration.
type Lifecycle struct {
	Type string                 `json:"type" yaml:"type"`
	Data map[string]interface{} `json:"data" yaml:"data"`
}

// ServiceBroker represents a service broker.
type ServiceBroker struct {
	Resource

	Name          string                     `json:"name"               yaml:"name"`
	URL           string                     `json:"url"                yaml:"url"`
	Relationships ServiceBrokerRelationships `json:"relationships"      yaml:"relationships"`
	Metadata      *Metadata                  `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ServiceBrokerRelationships scopes a broker to a space when set.
type ServiceBrokerRelationships struct {
	Space *Relationship `json:"space,omitempty" yaml:"space,omitempty"`
}

// ServiceBrokerAuthentication carries the credentials the platform uses against the broker.
type ServiceBrokerAuthentication struct {
	Type        string                                 `json:"type"        yaml:"type"`
	Credentials ServiceBrokerAuthenticationCredentials `json:"credentials" yaml:"credentials"`
}

// ServiceBrokerAuthenticationCredentials are basic-auth broker credentials.
type ServiceBrokerAuthenticationCredentials struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// ServiceBrokerCreateRequest registers a broker. Registration runs as a job.
type ServiceBrokerCreateRequest struct {
	Name           string                      `json:"name"                    yaml:"name"`
	URL            string                      `json:"url"                     yaml:"url"`
	Authentication ServiceBrokerAuthentication `json:"authentication"          yaml:"authentication"`
	Relationships  *ServiceBrokerRelationships `json:"relationships,omitempty" yaml:"relationships,omitempty"`
	Metadata       *Metadata                   `json:"metadata,omitempty"      yaml:"metadata,omitempty"`
}

// ServiceBrokerUpdateRequest updates a broker; nil fields are left unchanged.
type ServiceBrokerUpdateRequest struct {
	Name           *string                      `json:"name,omitempty"           yaml:"name,omitempty"`
	URL            *string                      `json:"url,omitempty"            yaml:"url,omitempty"`
	Authentication *ServiceBrokerAuthentication `json:"authentication,omitempty" yaml:"authentication,omitempty"`
	Metadata       *Metadata                    `json:"metadata,omitempty"       yaml:"metadata,omitempty"`
}

// ServiceInstance represents a service instance.
type ServiceInstance struct {
	Resource

	Name          string                       `json:"name"               yaml:"name"`
	Type          string                       `json:"type"               yaml:"type"`
	Tags          []string                     `json:"tags"               yaml:"tags"`
	LastOperation *LastOperation               `json:"last_operation"     yaml:"last_operation"`
	Relationships ServiceInstanceRelationships `json:"relationships"      yaml:"relationships"`
	Metadata      *Metadata                    `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ServiceInstanceRelationships represents service instance relationships.
type ServiceInstanceRelationships struct {
	Space       Relationship  `json:"space"                  yaml:"space"`
	ServicePlan *Relationship `json:"service_plan,omitempty" yaml:"service_plan,omitempty"`
}

// LastOperation is the broker operation status reported on service instances and bindings.
type LastOperation struct {
	Type        string     `json:"type"                  yaml:"type"`
	State       string     `json:"state"                 yaml:"state"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"  yaml:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"  yaml:"updated_at,omitempty"`
}

// Service credential binding types.
const (
	BindingTypeApp = "app"
	BindingTypeKey = "key"
)

// ServiceCredentialBinding is an app binding or a service key.
type ServiceCredentialBinding struct {
	Resource

	Name          string                                `json:"name"                     yaml:"name"`
	Type          string                                `json:"type"                     yaml:"type"`
	LastOperation *LastOperation                        `json:"last_operation,omitempty" yaml:"last_operation,omitempty"`
	Metadata      *Metadata                             `json:"metadata,omitempty"       yaml:"metadata,omitempty"`
	Relationships ServiceCredentialBindingRelationships `json:"relationships"            yaml:"relationships"`
}

// ServiceCredentialBindingRelationships links a binding to its instance and, for app bindings, its app.
type ServiceCredentialBindingRelationships struct {
	App             *Relationship `json:"app,omitempty"    yaml:"app,omitempty"`
	ServiceInstance Relationship  `json:"service_instance" yaml:"service_instance"`
}

// ServiceCredentialBindingCreateRequest represents a request to create a service credential binding.
type ServiceCredentialBindingCreateRequest struct {
	Type          string                                `json:"type"                 yaml:"type"`
	Name          *string                               `json:"name,omitempty"       yaml:"name,omitempty"`
	Parameters    map[string]interface{}                `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Metadata      *Metadata                             `json:"metadata,omitempty"   yaml:"metadata,omitempty"`
	Relationships ServiceCredentialBindingRelationships `json:"relationships"        yaml:"relationships"`
}
