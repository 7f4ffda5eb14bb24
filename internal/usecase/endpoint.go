package usecase

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/me2d/cmlsync/internal/domain"
)

// EndpointResolver chooses the base URL for a request from the WiFi context.
type EndpointResolver struct {
	wifi   domain.WifiObserver
	logger *zap.Logger

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp // nil value caches an invalid pattern
}

// NewEndpointResolver creates a resolver that observes WiFi through wifi.
func NewEndpointResolver(wifi domain.WifiObserver, logger *zap.Logger) *EndpointResolver {
	return &EndpointResolver{
		wifi:     wifi,
		logger:   logger,
		patterns: make(map[string]*regexp.Regexp),
	}
}

// ResolveCurrent resolves against the currently observed WiFi network.
func (r *EndpointResolver) ResolveCurrent(ctx context.Context, settings domain.Settings) string {
	name, connected := r.CurrentWifi(ctx)
	return r.Resolve(settings, name, connected)
}

// CurrentWifi reports the observed WiFi network name.
func (r *EndpointResolver) CurrentWifi(ctx context.Context) (string, bool) {
	return r.wifi.CurrentWifiName(ctx)
}

// Resolve returns WifiURL when connected to a WiFi network whose name fully
// matches WifiPattern, and APIURL otherwise. The result ends with exactly one "/".
func (r *EndpointResolver) Resolve(settings domain.Settings, wifiName string, connected bool) string {
	base := settings.APIURL

	switch {
	case !connected:
		r.logger.Debug("not connected to WiFi, using API URL", zap.String("url", base))
	case strings.TrimSpace(settings.WifiPattern) == "":
		r.logger.Debug("no WiFi pattern configured, using API URL", zap.String("url", base))
	default:
		re := r.compile(settings.WifiPattern)
		if re != nil && re.MatchString(wifiName) {
			base = settings.WifiURL
			r.logger.Debug("WiFi name matches pattern, using WiFi URL",
				zap.String("wifi", wifiName),
				zap.String("url", base))
		} else {
			r.logger.Debug("WiFi name does not match pattern, using API URL",
				zap.String("wifi", wifiName),
				zap.String("url", base))
		}
	}

	return strings.TrimRight(base, "/") + "/"
}

// compile returns the anchored pattern, or nil if it does not compile.
func (r *EndpointResolver) compile(pattern string) *regexp.Regexp {
	r.mu.Lock()
	defer r.mu.Unlock()

	if re, ok := r.patterns[pattern]; ok {
		return re
	}
	// The bare pattern must compile on its own so the anchoring group cannot be unbalanced by it.
	_, err := regexp.Compile(pattern)
	var re *regexp.Regexp
	if err == nil {
		re, err = regexp.Compile(`^(?:` + pattern + `)$`)
	}
	if err != nil {
		r.logger.Warn("invalid WiFi pattern, treating as no match",
			zap.String("pattern", pattern),
			zap.Error(err))
		re = nil
	}
	r.patterns[pattern] = re
	return re
}
