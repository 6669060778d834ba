package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	apiPathPrefixConstant                 = "/api/v4"
	privateTokenHeaderNameConstant        = "Private-Token"
	contentTypeHeaderNameConstant         = "Content-Type"
	jsonContentTypeConstant               = "application/json"
	retryAfterHeaderNameConstant          = "Retry-After"
	totalPagesHeaderNameConstant          = "X-Total-Pages"
	pageQueryParameterNameConstant        = "page"
	perPageQueryParameterNameConstant     = "per_page"
	defaultPageSizeConstant               = 100
	defaultRetryAfterSecondsConstant      = 60
	currentUserEndpointConstant           = "/user"
	versionEndpointConstant               = "/version"
	versionFieldNameConstant              = "version"
	clientTokenRequiredMessageConstant    = "remote token must be provided"
	clientBaseURLRequiredMessageConstant  = "remote base URL must be provided"
	clientLimiterRequiredMessageConstant  = "rate limiter not configured"
	clientBreakerRequiredMessageConstant  = "circuit breaker not configured"
	payloadEncodingErrorTemplateConstant  = "unable to encode request payload: %w"
	requestCreationErrorTemplateConstant  = "unable to create request: %w"
	paginationDecodeErrorTemplateConstant = "unable to decode paginated response for %s: %w"
	dryRunInterceptMessageConstant        = "Dry run intercepted mutating request"
	logFieldMethodConstant                = "method"
	logFieldEndpointConstant              = "endpoint"
	logFieldInstanceConstant              = "instance"
	logFieldStatusCodeConstant            = "status_code"
	httpMethodGetConstant                 = http.MethodGet
	httpMethodPostConstant                = http.MethodPost
	httpMethodPutConstant                 = http.MethodPut
	httpMethodDeleteConstant              = http.MethodDelete
)

var (
	errClientTokenRequired   = errors.New(clientTokenRequiredMessageConstant)
	errClientBaseURLRequired = errors.New(clientBaseURLRequiredMessageConstant)
	errClientLimiterRequired = errors.New(clientLimiterRequiredMessageConstant)
	errClientBreakerRequired = errors.New(clientBreakerRequiredMessageConstant)
)

// Response is the uniform result of one remote API call.
type Response struct {
	StatusCode int
	Body       json.RawMessage
	Headers    http.Header
	Success    bool
}

// RequestObserver receives the outcome of every issued request, successful or not.
type RequestObserver func(instanceLabel string, method string, statusCode int, requestError error)

// ClientConfiguration describes one remote instance endpoint.
type ClientConfiguration struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	InstanceLabel string
	DryRun        bool
}

// ClientDependencies carries the collaborators shared across one remote's operations.
type ClientDependencies struct {
	Logger          *zap.Logger
	HTTPClient      *http.Client
	RateLimiter     *RateLimiter
	CircuitBreaker  *CircuitBreaker
	RequestObserver RequestObserver
}

// Client wraps one GitLab instance's REST API with admission control, failure
// gating, and the migration error taxonomy. Retry decisions belong to the
// caller via WithRetry; the client itself never sleeps on rate limits.
type Client struct {
	configuration   ClientConfiguration
	logger          *zap.Logger
	httpClient      *http.Client
	rateLimiter     *RateLimiter
	circuitBreaker  *CircuitBreaker
	requestObserver RequestObserver
}

// NewClient constructs a remote API client.
func NewClient(configuration ClientConfiguration, dependencies ClientDependencies) (*Client, error) {
	if len(strings.TrimSpace(configuration.BaseURL)) == 0 {
		return nil, errClientBaseURLRequired
	}
	if len(strings.TrimSpace(configuration.Token)) == 0 {
		return nil, errClientTokenRequired
	}
	if dependencies.RateLimiter == nil {
		return nil, errClientLimiterRequired
	}
	if dependencies.CircuitBreaker == nil {
		return nil, errClientBreakerRequired
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := dependencies.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: configuration.Timeout}
	}

	configuration.BaseURL = strings.TrimRight(configuration.BaseURL, "/")

	return &Client{
		configuration:   configuration,
		logger:          logger,
		httpClient:      httpClient,
		rateLimiter:     dependencies.RateLimiter,
		circuitBreaker:  dependencies.CircuitBreaker,
		requestObserver: dependencies.RequestObserver,
	}, nil
}

// InstanceLabel identifies the remote for logging and metrics.
func (client *Client) InstanceLabel() string {
	return client.configuration.InstanceLabel
}

// DryRun reports whether mutating verbs are intercepted.
func (client *Client) DryRun() bool {
	return client.configuration.DryRun
}

// Get issues a read request against the endpoint.
func (client *Client) Get(executionContext context.Context, endpoint string, queryValues url.Values) (Response, error) {
	return client.execute(executionContext, httpMethodGetConstant, endpoint, queryValues, nil)
}

// Post issues a create request against the endpoint.
func (client *Client) Post(executionContext context.Context, endpoint string, payload any) (Response, error) {
	return client.execute(executionContext, httpMethodPostConstant, endpoint, nil, payload)
}

// Put issues an update request against the endpoint.
func (client *Client) Put(executionContext context.Context, endpoint string, payload any) (Response, error) {
	return client.execute(executionContext, httpMethodPutConstant, endpoint, nil, payload)
}

// Delete issues a removal request against the endpoint.
func (client *Client) Delete(executionContext context.Context, endpoint string) (Response, error) {
	return client.execute(executionContext, httpMethodDeleteConstant, endpoint, nil, nil)
}

// PageHandler consumes one page of a paginated listing. Returning an error stops the walk.
type PageHandler func(pageItems []json.RawMessage) error

// GetPaginated lazily walks a paginated endpoint, invoking pageHandler per
// page until the remote signals exhaustion. The walk restarts only by
// reissuing from page one; it cannot resume mid-stream.
func (client *Client) GetPaginated(executionContext context.Context, endpoint string, queryValues url.Values, pageHandler PageHandler) error {
	mergedQuery := url.Values{}
	for queryKey, queryEntries := range queryValues {
		mergedQuery[queryKey] = queryEntries
	}
	mergedQuery.Set(perPageQueryParameterNameConstant, strconv.Itoa(defaultPageSizeConstant))

	for pageNumber := 1; ; pageNumber++ {
		mergedQuery.Set(pageQueryParameterNameConstant, strconv.Itoa(pageNumber))

		pageResponse, pageError := client.Get(executionContext, endpoint, mergedQuery)
		if pageError != nil {
			return pageError
		}

		var pageItems []json.RawMessage
		if decodeError := json.Unmarshal(pageResponse.Body, &pageItems); decodeError != nil {
			return fmt.Errorf(paginationDecodeErrorTemplateConstant, endpoint, decodeError)
		}

		if len(pageItems) == 0 {
			return nil
		}

		if handlerError := pageHandler(pageItems); handlerError != nil {
			return handlerError
		}

		if totalPagesValue := pageResponse.Headers.Get(totalPagesHeaderNameConstant); len(totalPagesValue) > 0 {
			if totalPages, parseError := strconv.Atoi(totalPagesValue); parseError == nil && pageNumber >= totalPages {
				return nil
			}
		}

		if len(pageItems) < defaultPageSizeConstant {
			return nil
		}
	}
}

// CollectPaginated accumulates every item from a paginated endpoint.
func (client *Client) CollectPaginated(executionContext context.Context, endpoint string, queryValues url.Values) ([]json.RawMessage, error) {
	var collectedItems []json.RawMessage
	walkError := client.GetPaginated(executionContext, endpoint, queryValues, func(pageItems []json.RawMessage) error {
		collectedItems = append(collectedItems, pageItems...)
		return nil
	})
	if walkError != nil {
		return nil, walkError
	}
	return collectedItems, nil
}

// TestConnection verifies the credential resolves to an authenticated user.
func (client *Client) TestConnection(executionContext context.Context) error {
	_, requestError := client.Get(executionContext, currentUserEndpointConstant, nil)
	return requestError
}

// Version reports the remote instance version when available.
func (client *Client) Version(executionContext context.Context) (string, error) {
	versionResponse, requestError := client.Get(executionContext, versionEndpointConstant, nil)
	if requestError != nil {
		return "", requestError
	}

	var versionPayload map[string]string
	if decodeError := json.Unmarshal(versionResponse.Body, &versionPayload); decodeError != nil {
		return "", decodeError
	}
	return versionPayload[versionFieldNameConstant], nil
}

func (client *Client) execute(executionContext context.Context, method string, endpoint string, queryValues url.Values, payload any) (Response, error) {
	if allowError := client.circuitBreaker.Allow(); allowError != nil {
		client.observe(method, 0, allowError)
		return Response{}, allowError
	}

	if acquireError := client.rateLimiter.Acquire(executionContext); acquireError != nil {
		client.circuitBreaker.ReleaseProbe()
		return Response{}, acquireError
	}

	if client.configuration.DryRun && method != httpMethodGetConstant {
		client.circuitBreaker.RecordSuccess()
		client.logger.Debug(
			dryRunInterceptMessageConstant,
			zap.String(logFieldMethodConstant, method),
			zap.String(logFieldEndpointConstant, endpoint),
			zap.String(logFieldInstanceConstant, client.configuration.InstanceLabel),
		)
		return Response{StatusCode: http.StatusOK, Success: true, Headers: http.Header{}}, nil
	}

	response, requestError := client.issue(executionContext, method, endpoint, queryValues, payload)
	client.observe(method, response.StatusCode, requestError)

	if requestError != nil {
		if breakerRelevantFailure(requestError) {
			client.circuitBreaker.RecordFailure()
		} else {
			client.circuitBreaker.RecordSuccess()
		}
		return Response{}, requestError
	}

	client.circuitBreaker.RecordSuccess()
	return response, nil
}

func (client *Client) issue(executionContext context.Context, method string, endpoint string, queryValues url.Values, payload any) (Response, error) {
	requestURL := client.configuration.BaseURL + apiPathPrefixConstant + "/" + strings.TrimLeft(endpoint, "/")
	if len(queryValues) > 0 {
		requestURL = requestURL + "?" + queryValues.Encode()
	}

	var requestBody io.Reader
	if payload != nil {
		encodedPayload, encodeError := json.Marshal(payload)
		if encodeError != nil {
			return Response{}, fmt.Errorf(payloadEncodingErrorTemplateConstant, encodeError)
		}
		requestBody = bytes.NewReader(encodedPayload)
	}

	httpRequest, creationError := http.NewRequestWithContext(executionContext, method, requestURL, requestBody)
	if creationError != nil {
		return Response{}, fmt.Errorf(requestCreationErrorTemplateConstant, creationError)
	}

	httpRequest.Header.Set(privateTokenHeaderNameConstant, client.configuration.Token)
	httpRequest.Header.Set(contentTypeHeaderNameConstant, jsonContentTypeConstant)

	httpResponse, transportError := client.httpClient.Do(httpRequest)
	if transportError != nil {
		return Response{}, RemoteError{Cause: transportError}
	}
	defer func() { _ = httpResponse.Body.Close() }()

	responseBody, readError := io.ReadAll(httpResponse.Body)
	if readError != nil {
		return Response{}, RemoteError{Cause: readError}
	}

	if classificationError := classifyResponse(client.configuration.BaseURL, endpoint, httpResponse, responseBody); classificationError != nil {
		return Response{StatusCode: httpResponse.StatusCode}, classificationError
	}

	return Response{
		StatusCode: httpResponse.StatusCode,
		Body:       json.RawMessage(responseBody),
		Headers:    httpResponse.Header,
		Success:    httpResponse.StatusCode >= 200 && httpResponse.StatusCode < 300,
	}, nil
}

func classifyResponse(baseURL string, endpoint string, httpResponse *http.Response, responseBody []byte) error {
	switch {
	case httpResponse.StatusCode == http.StatusUnauthorized || httpResponse.StatusCode == http.StatusForbidden:
		return AuthenticationError{InstanceURL: baseURL}
	case httpResponse.StatusCode == http.StatusNotFound:
		return NotFoundError{Endpoint: endpoint}
	case httpResponse.StatusCode == http.StatusTooManyRequests:
		return RateLimitedError{RetryAfter: parseRetryAfter(httpResponse.Header)}
	case httpResponse.StatusCode == http.StatusConflict:
		return ConflictError{Body: string(responseBody)}
	case httpResponse.StatusCode >= 400:
		return RemoteError{StatusCode: httpResponse.StatusCode, Body: string(responseBody)}
	default:
		return nil
	}
}

func parseRetryAfter(responseHeaders http.Header) time.Duration {
	retryAfterValue := responseHeaders.Get(retryAfterHeaderNameConstant)
	if retryAfterSeconds, parseError := strconv.Atoi(retryAfterValue); parseError == nil && retryAfterSeconds > 0 {
		return time.Duration(retryAfterSeconds) * time.Second
	}
	return defaultRetryAfterSecondsConstant * time.Second
}

func breakerRelevantFailure(requestError error) bool {
	var notFoundError NotFoundError
	if errors.As(requestError, &notFoundError) {
		return false
	}
	var conflictError ConflictError
	if errors.As(requestError, &conflictError) {
		return false
	}
	var rateLimitedError RateLimitedError
	if errors.As(requestError, &rateLimitedError) {
		return false
	}
	return true
}

func (client *Client) observe(method string, statusCode int, requestError error) {
	if client.requestObserver == nil {
		return
	}
	client.requestObserver(client.configuration.InstanceLabel, method, statusCode, requestError)
}
