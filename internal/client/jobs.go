package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/fivetwenty-io/capi-facade/internal/constants"
	internalhttp "github.com/fivetwenty-io/capi-facade/internal/http"
	"github.com/fivetwenty-io/capi-facade/pkg/capi"
)

// Static errors for err113 compliance.
var (
	errMissingJobLocation = errors.New("accepted response has no job location")
)

// JobsClient implements capi.JobsClient.
type JobsClient struct {
	httpClient   *internalhttp.Client
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       capi.Logger
}

// NewJobsClient creates a new jobs client polling at the default interval.
func NewJobsClient(httpClient *internalhttp.Client) *JobsClient {
	return &JobsClient{
		httpClient:   httpClient,
		pollInterval: constants.DefaultPollInterval,
		pollTimeout:  constants.DefaultJobPollTimeout,
	}
}

// Get implements capi.JobsClient.Get.
func (c *JobsClient) Get(ctx context.Context, guid string) (*capi.Job, error) {
	if guid == "" {
		return nil, capi.NewOperationError(capi.ErrConfiguration, 0, "", constants.ErrJobGUIDRequired)
	}

	resp, err := c.httpClient.Get(ctx, "/v3/jobs/"+guid, nil)
	if err != nil {
		return nil, fmt.Errorf("getting job %s: %w", guid, err)
	}

	var job capi.Job

	err = decodeResponse(resp, &job, "job")
	if err != nil {
		return nil, err
	}

	return &job, nil
}

// PollUntilComplete implements capi.JobsClient.PollUntilComplete using the
// client's poll interval and timeout.
func (c *JobsClient) PollUntilComplete(ctx context.Context, guid string) (*capi.Job, error) {
	return c.AwaitCompletion(ctx, guid, c.pollInterval, c.pollTimeout)
}

// AwaitJob waits for jobGUID with the client defaults. An empty GUID means the
// platform finished the operation synchronously.
func (c *JobsClient) AwaitJob(ctx context.Context, jobGUID string) error {
	if jobGUID == "" {
		return nil
	}

	_, err := c.PollUntilComplete(ctx, jobGUID)

	return err
}

// AwaitCompletion fetches the job immediately and then every pollInterval
// until it is COMPLETE or FAILED. No fetch is started once timeout has
// elapsed; a fetch already in flight is allowed to finish and its terminal
// state is honored. Transient fetch failures are retried up to
// constants.MaxFetchRetries consecutive times. pollInterval must be positive.
func (c *JobsClient) AwaitCompletion(ctx context.Context, guid string, pollInterval, timeout time.Duration) (*capi.Job, error) {
	if guid == "" {
		return nil, capi.NewOperationError(capi.ErrConfiguration, 0, "", constants.ErrJobGUIDRequired)
	}

	if pollInterval <= 0 {
		return nil, capi.NewOperationError(capi.ErrConfiguration, 0, fmt.Sprintf("poll interval %s", pollInterval), constants.ErrInvalidPollInterval)
	}

	deadline := time.Now().Add(timeout)

	var (
		last     *capi.Job
		failures int
	)

	for {
		if !time.Now().Before(deadline) {
			return last, jobTimeoutError(guid, timeout, last)
		}

		job, err := c.Get(ctx, guid)

		switch {
		case err == nil:
			failures = 0
			last = job

			switch job.State {
			case capi.JobStateComplete:
				return job, nil
			case capi.JobStateFailed:
				return job, jobFailedError(job)
			default:
			}
		case ctx.Err() != nil:
			return last, err
		case capi.IsRetryable(err) && failures < constants.MaxFetchRetries:
			failures++

			c.logWarn("Retrying job status fetch", map[string]interface{}{
				"job_guid": guid,
				"attempt":  failures,
				"error":    err.Error(),
			})
		default:
			return last, err
		}

		wait := min(pollInterval, time.Until(deadline))
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()

			return last, capi.NormalizeTransportError(fmt.Errorf("waiting for job %s: %w", guid, ctx.Err()))
		case <-timer.C:
		}
	}
}

func (c *JobsClient) logWarn(msg string, fields map[string]interface{}) {
	if c.logger != nil {
		c.logger.Warn(msg, fields)
	}
}

func jobFailedError(job *capi.Job) error {
	opErr := capi.NewOperationError(capi.ErrJobFailed, 0, formatJobErrors(job), nil)
	opErr.JobGUID = job.GUID
	opErr.Errors = job.Errors

	return opErr
}

func jobTimeoutError(guid string, timeout time.Duration, last *capi.Job) error {
	state := "unknown"
	if last != nil {
		state = string(last.State)
	}

	opErr := capi.NewOperationError(capi.ErrJobTimeout, 0, fmt.Sprintf("still %s after %s", state, timeout), nil)
	opErr.JobGUID = guid

	return opErr
}

// formatJobErrors joins the platform's error details verbatim.
func formatJobErrors(job *capi.Job) string {
	if len(job.Errors) == 0 {
		return "no error details available"
	}

	details := make([]string, 0, len(job.Errors))
	for _, apiErr := range job.Errors {
		details = append(details, apiErr.Detail)
	}

	return strings.Join(details, "; ")
}

// jobGUIDFromResponse returns the job GUID of a 202 response, or "" when the
// platform completed the operation synchronously.
func jobGUIDFromResponse(resp *internalhttp.Response) (string, error) {
	if resp == nil || resp.StatusCode != http.StatusAccepted {
		return "", nil
	}

	location := resp.Headers.Get("Location")
	if location == "" {
		return "", capi.NewOperationError(capi.ErrPlatform, resp.StatusCode, "", errMissingJobLocation)
	}

	guid := path.Base(strings.TrimSuffix(location, "/"))
	if guid == "" || guid == "." || guid == "/" {
		return "", capi.NewOperationError(capi.ErrPlatform, resp.StatusCode, "", fmt.Errorf("%w: %q", errMissingJobLocation, location))
	}

	return guid, nil
}
