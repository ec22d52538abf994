// Package gateway orchestrates a chat completion from authorization to the
// metering commit.
//
// A request moves through Received, Authorized, Routed, ProviderCalled,
// Costed and ends in Committed or Failed. Nothing is debited unless the
// request reaches Committed, and the caller only sees a completion after
// the commit succeeded.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"llm_router/internal/apierr"
	"llm_router/internal/billing"
	"llm_router/internal/logging"
	"llm_router/internal/models"
	"llm_router/internal/providers"
	"llm_router/internal/ratelimit"
	"llm_router/internal/routing"
	"llm_router/internal/utils"
)

// State is the lifecycle position of one request
type State string

const (
	StateReceived       State = "received"
	StateAuthorized     State = "authorized"
	StateRouted         State = "routed"
	StateProviderCalled State = "provider_called"
	StateCosted         State = "costed"
	StateCommitted      State = "committed"
	StateFailed         State = "failed"
)

// ChatMessage is one inbound message
type ChatMessage struct {
	Role    string `json:"role" validate:"required"`
	Content string `json:"content"`
}

// ChatRequest is the inbound completion request
type ChatRequest struct {
	Model    string        `json:"model" validate:"required"`
	Messages []ChatMessage `json:"messages" validate:"required,min=1,dive"`
}

// Completion is a committed, billed completion
type Completion struct {
	RequestID    uuid.UUID
	Content      string
	InputTokens  int64
	OutputTokens int64
	Cost         int64
	Balance      int64
	Model        string
	Provider     string
	MappingID    int64
}

// Authorizer is the Credit Guard
type Authorizer interface {
	Authorize(ctx context.Context, token string) (*billing.Principal, error)
}

// Router picks the mapping and adapter for a model reference
type Router interface {
	Route(ctx context.Context, ref routing.ModelRef) (*routing.Route, error)
}

// Meter commits the debit and usage record
type Meter interface {
	Commit(ctx context.Context, rec *models.UsageRecord) (int64, error)
}

// Options wires a Service. Limiter and Sink are optional.
type Options struct {
	Guard       Authorizer
	Limiter     ratelimit.Limiter
	Router      Router
	Calculator  billing.Calculator
	Meter       Meter
	Sink        logging.Sink
	CallTimeout time.Duration
}

// Service runs completion requests
type Service struct {
	guard       Authorizer
	limiter     ratelimit.Limiter
	router      Router
	calc        billing.Calculator
	meter       Meter
	sink        logging.Sink
	callTimeout time.Duration
	now         func() time.Time
}

func NewService(opts Options) *Service {
	s := &Service{
		guard:       opts.Guard,
		limiter:     opts.Limiter,
		router:      opts.Router,
		calc:        opts.Calculator,
		meter:       opts.Meter,
		sink:        opts.Sink,
		callTimeout: opts.CallTimeout,
		now:         time.Now,
	}
	if s.limiter == nil {
		s.limiter = ratelimit.NewNoopLimiter()
	}
	if s.sink == nil {
		s.sink = logging.NewNoopSink()
	}
	return s
}

// Authorize runs the Credit Guard for token
func (s *Service) Authorize(ctx context.Context, token string) (*billing.Principal, error) {
	p, err := s.guard.Authorize(ctx, token)
	if err != nil {
		logging.L().Debug("authorization rejected", zap.String("kind", string(apierr.KindOf(err))), zap.Error(err))
		return nil, err
	}
	return p, nil
}

// Process authorizes token and runs the completion
func (s *Service) Process(ctx context.Context, token string, req ChatRequest) (*Completion, error) {
	p, err := s.Authorize(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.Complete(ctx, p, req)
}

// request tracks one completion through its states
type request struct {
	start    time.Time
	state    State
	rec      logging.LogRecord
	provider time.Duration
}

// Complete runs an authorized request: rate limit, route, call the
// provider under the per-call timeout, cost the usage and commit it.
func (s *Service) Complete(ctx context.Context, p *billing.Principal, req ChatRequest) (*Completion, error) {
	r := &request{
		start: s.now(),
		state: StateAuthorized,
		rec: logging.LogRecord{
			RequestID:  uuid.NewString(),
			AccountID:  p.Account.ID,
			APIKeyID:   p.Key.ID,
			APIKeyName: p.Key.Name,
			Model:      req.Model,
		},
	}

	c, err := s.complete(ctx, p, req, r)
	s.finish(r, err)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) complete(ctx context.Context, p *billing.Principal, req ChatRequest, r *request) (*Completion, error) {
	messages, err := toMessages(req)
	if err != nil {
		return nil, err
	}

	if !s.limiter.Allow(ctx, strconv.FormatInt(p.Key.ID, 10)) {
		return nil, apierr.ErrRateLimited
	}

	ref, err := routing.ParseModelRef(req.Model)
	if err != nil {
		return nil, err
	}
	route, err := s.router.Route(ctx, ref)
	if err != nil {
		return nil, err
	}
	r.state = StateRouted
	r.rec.Provider = route.Adapter.Name()
	r.rec.MappingID = route.Mapping.ID

	result, err := s.call(ctx, route, ref.Slug, messages, r)
	if err != nil {
		return nil, err
	}
	r.state = StateProviderCalled
	r.rec.InputTokens = result.InputTokens
	r.rec.OutputTokens = result.OutputTokens

	cost := s.calc.Cost(result.InputTokens, result.OutputTokens, route.Mapping)
	r.state = StateCosted
	r.rec.Cost = cost

	input, err := json.Marshal(messages)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "failed to serialize input", err)
	}
	output, err := json.Marshal(newStoredOutput(result.Content))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "failed to serialize output", err)
	}

	requestID, _ := uuid.Parse(r.rec.RequestID)
	usage := &models.UsageRecord{
		RequestID:            requestID,
		AccountID:            p.Account.ID,
		APIKeyID:             p.Key.ID,
		MappingID:            route.Mapping.ID,
		Input:                string(input),
		Output:               string(output),
		InputTokenCount:      result.InputTokens,
		OutputTokenCount:     result.OutputTokens,
		TotalCreditsConsumed: cost,
	}

	// commit even if the client has gone away
	commitCtx := context.WithoutCancel(ctx)
	balance, err := s.meter.Commit(commitCtx, usage)
	if err != nil {
		return nil, err
	}
	r.state = StateCommitted

	return &Completion{
		RequestID:    requestID,
		Content:      result.Content,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		Cost:         cost,
		Balance:      balance,
		Model:        route.Model.Slug,
		Provider:     route.Adapter.Name(),
		MappingID:    route.Mapping.ID,
	}, nil
}

// storedOutput is the serialized completion kept on the usage record
type storedOutput struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func newStoredOutput(content string) storedOutput {
	var o storedOutput
	o.Message.Content = content
	return o
}

// call invokes the adapter once. Anything that is not already classified
// is reported as an upstream failure.
func (s *Service) call(ctx context.Context, route *routing.Route, slug string, messages []providers.Message, r *request) (*providers.Result, error) {
	callCtx := ctx
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}

	start := s.now()
	result, err := route.Adapter.Chat(callCtx, slug, messages)
	r.provider = s.now().Sub(start)

	if err != nil {
		var ae *apierr.Error
		if !errors.As(err, &ae) {
			err = apierr.Wrap(apierr.KindUpstreamError, route.Adapter.Name()+" request failed", err)
		}
		return nil, err
	}
	if result == nil {
		return nil, apierr.New(apierr.KindEmptyResponse, route.Adapter.Name()+" returned no result")
	}
	return result, nil
}

func toMessages(req ChatRequest) ([]providers.Message, error) {
	if err := utils.Validate(req); err != nil {
		return nil, apierr.Wrap(apierr.KindBadRequest, err.Error(), err)
	}

	messages := make([]providers.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role, ok := providers.ParseRole(m.Role)
		if !ok {
			return nil, apierr.New(apierr.KindBadRequest, "unsupported message role "+strconv.Quote(m.Role))
		}
		messages = append(messages, providers.Message{Role: role, Content: m.Content})
	}
	return messages, nil
}

// finish writes the audit record and the operational log line
func (s *Service) finish(r *request, err error) {
	r.rec.Timestamp = s.now()
	r.rec.ProviderMs = r.provider.Milliseconds()
	r.rec.GatewayMs = s.now().Sub(r.start).Milliseconds()

	fields := []zap.Field{
		zap.String("request_id", r.rec.RequestID),
		zap.Int64("account_id", r.rec.AccountID),
		zap.Int64("api_key_id", r.rec.APIKeyID),
		zap.String("model", r.rec.Model),
		zap.String("provider", r.rec.Provider),
		zap.Int64("gateway_ms", r.rec.GatewayMs),
	}

	if err != nil {
		failedAt := r.state
		r.state = StateFailed
		r.rec.Error = err.Error()
		fields = append(fields,
			zap.String("failed_after", string(failedAt)),
			zap.String("kind", string(apierr.KindOf(err))),
			zap.Error(err))

		if apierr.IsPreflight(apierr.KindOf(err)) {
			logging.L().Info("completion rejected", fields...)
		} else {
			// upstream work may have been done and not billed
			logging.L().Error("completion failed", fields...)
		}
	} else {
		fields = append(fields,
			zap.Int64("input_tokens", r.rec.InputTokens),
			zap.Int64("output_tokens", r.rec.OutputTokens),
			zap.Int64("cost", r.rec.Cost))
		logging.L().Info("completion committed", fields...)
	}

	r.rec.State = string(r.state)
	if sinkErr := s.sink.Enqueue(&r.rec); sinkErr != nil {
		logging.Warnf("failed to enqueue request log %s: %v", r.rec.RequestID, sinkErr)
	}
}
