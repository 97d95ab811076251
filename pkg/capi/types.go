package capi

import (
	"time"
)

// Resource represents the base structure for all CF API resources.
type Resource struct {
	GUID      string    `json:"guid"       yaml:"guid"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	Links     Links     `json:"links"      yaml:"links"`
}

// Links represents resource links.
type Links map[string]Link

// Link represents a single link.
type Link struct {
	Href   string `json:"href"             yaml:"href"`
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
}

// Metadata represents labels and annotations.
type Metadata struct {
	Labels      map[string]string `json:"labels,omitempty"      yaml:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// Relationship represents a to-one relationship.
type Relationship struct {
	Data *RelationshipData `json:"data,omitempty" yaml:"data,omitempty"`
}

// RelationshipData contains the GUID of the related resource.
type RelationshipData struct {
	GUID string `json:"guid" yaml:"guid"`
}

// ToOne builds a to-one relationship pointing at guid.
func ToOne(guid string) Relationship {
	return Relationship{Data: &RelationshipData{GUID: guid}}
}

// Pagination represents pagination information.
type Pagination struct {
	TotalResults int   `json:"total_results"      yaml:"total_results"`
	TotalPages   int   `json:"total_pages"        yaml:"total_pages"`
	First        Link  `json:"first"              yaml:"first"`
	Last         Link  `json:"last"               yaml:"last"`
	Next         *Link `json:"next,omitempty"     yaml:"next,omitempty"`
	Previous     *Link `json:"previous,omitempty" yaml:"previous,omitempty"`
}

// ListResponse represents a paginated list response.
type ListResponse[T any] struct {
	Pagination Pagination `json:"pagination" yaml:"pagination"`
	Resources  []T        `json:"resources"  yaml:"resources"`
}

// JobState is the lifecycle state of an asynchronous platform job.
type JobState string

// Job states reported by /v3/jobs.
const (
	JobStateQueued     JobState = "QUEUED"
	JobStateProcessing JobState = "PROCESSING"
	JobStatePolling    JobState = "POLLING"
	JobStateComplete   JobState = "COMPLETE"
	JobStateFailed     JobState = "FAILED"
)

// IsTerminal reports whether no further transitions will happen.
func (s JobState) IsTerminal() bool {
	return s == JobStateComplete || s == JobStateFailed
}

// Job represents an asynchronous job.
type Job struct {
	Resource

	Operation string     `json:"operation"          yaml:"operation"`
	State     JobState   `json:"state"              yaml:"state"`
	Errors    []APIError `json:"errors,omitempty"   yaml:"errors,omitempty"`
	Warnings  []Warning  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// IsTerminal reports whether the job has completed or failed.
func (j *Job) IsTerminal() bool {
	return j != nil && j.State.IsTerminal()
}

// Warning represents a warning in API responses.
type Warning struct {
	Detail string `json:"detail" yaml:"detail"`
}

// PlatformInfo is the discovery document describing where a platform's
// authorization server lives.
type PlatformInfo struct {
	Name                  string `json:"name,omitempty"                     yaml:"name,omitempty"`
	Build                 string `json:"build,omitempty"                    yaml:"build,omitempty"`
	Description           string `json:"description,omitempty"              yaml:"description,omitempty"`
	APIVersion            string `json:"api_version,omitempty"              yaml:"api_version,omitempty"`
	AuthorizationEndpoint string `json:"authorization_endpoint"             yaml:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint,omitempty"           yaml:"token_endpoint,omitempty"`
	MinCLIVersion         string `json:"min_cli_version,omitempty"          yaml:"min_cli_version,omitempty"`
	DopplerEndpoint       string `json:"doppler_logging_endpoint,omitempty" yaml:"doppler_logging_endpoint,omitempty"`
}

// TokenURL is the OAuth token endpoint on the authorization server.
func (p *PlatformInfo) TokenURL() string {
	return p.AuthorizationEndpoint + "/oauth/token"
}
