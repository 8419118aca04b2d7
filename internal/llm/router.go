package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Router is a [Client] that dispatches each call to a provider chosen
// by model name. Models without an explicit route go to the default
// provider, so a draft model and an evaluator model can live on
// different providers behind one Client.
type Router struct {
	providers map[string]Client
	routes    map[string]string // model -> provider
	def       string
}

// NewRouter returns a router whose unrouted models go to the provider
// registered under defaultProvider.
func NewRouter(defaultProvider string) *Router {
	return &Router{
		providers: make(map[string]Client),
		routes:    make(map[string]string),
		def:       defaultProvider,
	}
}

// Register adds a provider client under name.
func (r *Router) Register(name string, c Client) {
	r.providers[name] = c
}

// Route sends every call for model to the named provider.
func (r *Router) Route(model, provider string) {
	r.routes[model] = provider
}

// Provider returns the provider name that serves model.
func (r *Router) Provider(model string) string {
	if p, ok := r.routes[model]; ok {
		return p
	}
	return r.def
}

func (r *Router) client(model string) (Client, error) {
	name := r.Provider(model)
	c, ok := r.providers[name]
	if !ok || c == nil {
		return nil, fmt.Errorf("model %q: provider %q not configured", model, name)
	}
	return c, nil
}

// Chat forwards to the provider serving model.
func (r *Router) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	c, err := r.client(model)
	if err != nil {
		return nil, err
	}
	return c.Chat(ctx, model, messages, tools)
}

// ChatStructured forwards to the provider serving model.
func (r *Router) ChatStructured(ctx context.Context, model string, messages []Message, format *ResponseFormat) (*ChatResponse, error) {
	c, err := r.client(model)
	if err != nil {
		return nil, err
	}
	return c.ChatStructured(ctx, model, messages, format)
}

// Ping checks every registered provider and joins the failures, each
// prefixed with its provider name.
func (r *Router) Ping(ctx context.Context) error {
	if len(r.providers) == 0 {
		return errors.New("no providers configured")
	}

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := r.providers[name].Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
