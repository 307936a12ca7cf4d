// Package policies é o catálogo de tiers de rate limit dos endpoints do
// marketplace. Os limites sensíveis podem ser ajustados por variável de ambiente.
package policies

import (
	"errors"
	"fmt"
	"net/http"

	"marketplace-gateway/internal/config"
	"marketplace-gateway/middleware/ratelimit"
	"marketplace-gateway/middleware/ratelimit/application"
	"marketplace-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

const (
	OTPRequest      = "otp-request"
	ChatStart       = "chat-start"
	ChatSend        = "chat-send"
	BillingCheckout = "billing-checkout"
	ReportCreate    = "report-create"
	ReportAdmin     = "report-admin"
	Search          = "search"
	TopAdverts      = "top-adverts"
	TopSellers      = "top-sellers"
	FavoritesRead   = "favorites-read"
	FavoritesWrite  = "favorites-write"
	AdvertView      = "advert-view"
)

const (
	minute = 60
	hour   = 60 * minute
	day    = 24 * hour

	// balde dos pedidos sem IP resolvido
	anonymousKey = "anonymous"
)

var ErrUnknownEndpoint = errors.New("unknown endpoint")

// Tier é uma camada de limite: a política e como derivar as chaves.
type Tier struct {
	Policy domain.Policy
	Key    ratelimit.KeyFunc
}

// Endpoint agrupa os tiers de uma rota, do mais externo para o mais interno.
// Patterns usa a sintaxe do http.ServeMux ("POST /api/chat/send").
type Endpoint struct {
	Name     string
	Patterns []string
	Tiers    []Tier
}

// Catalog monta os endpoints lendo os overrides do ambiente no momento da chamada.
func Catalog() []Endpoint {
	otpUser := config.PositiveUint("RATE_LIMIT_OTP_USER_PER_15M", 5)
	otpIP := config.PositiveUint("RATE_LIMIT_OTP_IP_PER_60M", 20)
	reportUser := config.PositiveUint("RATE_LIMIT_REPORT_USER_PER_10M", 5)
	reportIP := config.PositiveUint("RATE_LIMIT_REPORT_IP_PER_24H", 50)
	admin := config.PositiveUint("RATE_LIMIT_ADMIN_PER_MIN", 60)
	search := config.PositiveUint("RATE_LIMIT_SEARCH_IP_PER_MIN", 60)

	onErr := domain.WithStoreErrorMode(domain.ParseStoreErrorMode(config.String("RATE_LIMIT_ON_STORE_ERROR", "")))
	pol := func(limit, window uint, prefix string, opts ...domain.PolicyOption) domain.Policy {
		return domain.MustPolicy(limit, window, prefix, append(opts, onErr)...)
	}
	global := domain.WithBucket("global")

	return []Endpoint{
		{
			Name:     OTPRequest,
			Patterns: []string{"POST /api/phone/request"},
			// IP global por fora, depois usuário, e o fallback de anônimos por dentro
			Tiers: []Tier{
				{pol(otpIP, hour, "otp:ip", global), ratelimit.ByIP()},
				{pol(otpUser, 15*minute, "otp:user"), ratelimit.ByUser()},
				{pol(otpUser, 15*minute, "otp:ip", domain.WithBucket("fallback")), ratelimit.ByIPWhenAnonymous()},
			},
		},
		{
			Name:     ChatStart,
			Patterns: []string{"POST /api/chat/start"},
			Tiers: []Tier{
				{pol(30, hour, "chat:start:ip", global), ratelimit.ByIP()},
				{pol(10, minute, "chat:start:user"), ratelimit.ByUser()},
			},
		},
		{
			Name:     ChatSend,
			Patterns: []string{"POST /api/chat/send"},
			Tiers: []Tier{
				{pol(100, hour, "chat:send:ip", global), ratelimit.ByIP()},
				{pol(20, minute, "chat:send:user"), ratelimit.ByUser()},
			},
		},
		{
			Name:     BillingCheckout,
			Patterns: []string{"POST /api/billing/checkout"},
			Tiers: []Tier{
				{pol(20, hour, "billing:checkout:ip", global), ratelimit.ByIP()},
				{pol(10, minute, "billing:checkout:user"), ratelimit.ByUser()},
			},
		},
		{
			Name:     ReportCreate,
			Patterns: []string{"POST /api/reports/create"},
			Tiers: []Tier{
				{pol(reportIP, day, "report:ip", global), ratelimit.ByIP()},
				{pol(reportUser, 10*minute, "report:user"), ratelimit.ByUser()},
			},
		},
		{
			Name:     ReportAdmin,
			Patterns: []string{"GET /api/reports/list", "POST /api/reports/update"},
			Tiers: []Tier{
				{pol(admin, minute, "report:admin"), ratelimit.ByUser()},
			},
		},
		{
			Name:     Search,
			Patterns: []string{"GET /api/search"},
			Tiers: []Tier{
				{pol(search, minute, "search:ip"), ratelimit.ByIPOr(anonymousKey)},
			},
		},
		{
			Name:     TopAdverts,
			Patterns: []string{"GET /api/top-adverts"},
			Tiers: []Tier{
				{pol(60, minute, "top-adverts"), ratelimit.ByIPOr(anonymousKey)},
			},
		},
		{
			Name:     TopSellers,
			Patterns: []string{"GET /api/top-sellers"},
			Tiers: []Tier{
				{pol(60, minute, "top-sellers"), ratelimit.ByIP()},
			},
		},
		{
			Name:     FavoritesRead,
			Patterns: []string{"GET /api/favorites"},
			Tiers: []Tier{
				{pol(60, minute, "favorites:read"), ratelimit.ByUser()},
			},
		},
		{
			Name:     FavoritesWrite,
			Patterns: []string{"POST /api/favorites", "DELETE /api/favorites/{advertId}"},
			Tiers: []Tier{
				{pol(30, minute, "favorites:write"), ratelimit.ByUser()},
			},
		},
		{
			Name:     AdvertView,
			Patterns: []string{"POST /api/adverts/{id}/view"},
			Tiers: []Tier{
				{pol(100, minute, "advert:view"), ratelimit.ByIP()},
			},
		},
	}
}

// Deps é o que os tiers compartilham.
type Deps struct {
	Factory   *application.Factory
	GetUserID ratelimit.UserIDFunc
	OnLimited ratelimit.LimitedFunc
	Stats     domain.StatsStore
	Logger    *zap.Logger
	ResolveIP func(r *http.Request) string
}

// Builder cria os limiters uma vez (na inicialização) e aplica os tiers nos handlers.
type Builder struct {
	deps      Deps
	endpoints []Endpoint
	byName    map[string]int
	limiters  map[string]domain.Limiter
}

func NewBuilder(deps Deps, endpoints []Endpoint) (*Builder, error) {
	if deps.Factory == nil {
		return nil, errors.New("policies: factory is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	b := &Builder{
		deps:      deps,
		endpoints: endpoints,
		byName:    make(map[string]int, len(endpoints)),
		limiters:  make(map[string]domain.Limiter),
	}
	for i, ep := range endpoints {
		if _, dup := b.byName[ep.Name]; dup {
			return nil, fmt.Errorf("policies: duplicate endpoint %q", ep.Name)
		}
		b.byName[ep.Name] = i

		for _, t := range ep.Tiers {
			// mesmo namespace = mesmo contador, mesmo limiter
			ns := t.Policy.Namespace()
			if _, ok := b.limiters[ns]; !ok {
				b.limiters[ns] = deps.Factory.New(t.Policy)
			}
		}
	}
	return b, nil
}

func (b *Builder) Endpoints() []Endpoint { return b.endpoints }

// Wrap envolve h com os tiers do endpoint.
func (b *Builder) Wrap(name string, h http.Handler) (http.Handler, error) {
	i, ok := b.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
	}
	tiers := b.endpoints[i].Tiers

	// o último da lista é o mais interno, então é aplicado primeiro
	for j := len(tiers) - 1; j >= 0; j-- {
		t := tiers[j]
		h = ratelimit.WithRateLimit(h, ratelimit.Options{
			Limiter:   b.limiters[t.Policy.Namespace()],
			MakeKey:   t.Key,
			GetUserID: b.deps.GetUserID,
			OnLimited: b.deps.OnLimited,
			Policy:    t.Policy,
			Stats:     b.deps.Stats,
			Logger:    b.deps.Logger,
			ResolveIP: b.deps.ResolveIP,
		})
	}
	return h, nil
}

// Mount registra todos os patterns do catálogo no mux, cada um com seus tiers
// na frente de h.
func (b *Builder) Mount(mux *http.ServeMux, h http.Handler) {
	for _, ep := range b.endpoints {
		wrapped, _ := b.Wrap(ep.Name, h)
		for _, p := range ep.Patterns {
			mux.Handle(p, wrapped)
		}
		b.deps.Logger.Debug("rate limited endpoint mounted",
			zap.String("endpoint", ep.Name),
			zap.Strings("patterns", ep.Patterns),
			zap.Int("tiers", len(ep.Tiers)),
		)
	}
}
