// Package tools implements the lookup capabilities the concierge agent can
// call: places text search, partner establishment search by coordinates or
// by city, and partner city membership.
//
// Upstream failures never surface as Go errors. They come back as the tool
// result text so the model can relay them. Execute only returns an error when
// the arguments themselves cannot be decoded.
package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/soyeahso/gaia/internal/agent"
	"github.com/soyeahso/gaia/internal/cache"
	"github.com/soyeahso/gaia/internal/config"
	"github.com/soyeahso/gaia/internal/domain"
	"github.com/soyeahso/gaia/internal/logging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonRaw holds an upstream record that is passed through untouched.
type jsonRaw = jsoniter.RawMessage

// Tool names as exposed to the model.
const (
	PlacesToolName      = domain.ToolPlaces
	PartnerToolName     = domain.ToolPartner
	PartnerCityToolName = domain.ToolPartnerCity
	CityCheckToolName   = domain.ToolCityCheck
)

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 8 << 20

// Options wires the tool set.
type Options struct {
	Config config.ToolsConfig
	// Development routes upstream traffic through Config.Proxy, or the
	// default development proxy when that is empty.
	Development bool
	Handoff     *cache.Handoff
	Logger      *logging.Logger
	// Client overrides the HTTP client built from Config.
	Client *http.Client
}

// New builds every lookup tool.
func New(opts Options) ([]agent.Tool, error) {
	if opts.Handoff == nil {
		return nil, errors.New("tools: handoff cache is required")
	}
	log := opts.Logger
	if log == nil {
		log = logging.New(io.Discard, "silent")
	}
	log = log.Sub("tools")

	client := opts.Client
	if client == nil {
		proxy := ""
		if opts.Development {
			proxy = opts.Config.Proxy
			if proxy == "" {
				proxy = config.DefaultDevProxy
			}
		}
		var err error
		client, err = NewHTTPClient(
			WithTimeout(time.Duration(opts.Config.TimeoutSeconds)*time.Second),
			WithProxy(proxy),
		)
		if err != nil {
			return nil, fmt.Errorf("tools: %w", err)
		}
	}

	partner := newPartnerAPI(client, opts.Config.Partner, opts.Handoff, log)
	return []agent.Tool{
		NewPlaceSearch(client, opts.Config.Places, opts.Handoff, log),
		&PartnerCoordinateSearch{api: partner},
		&PartnerCitySearch{api: partner},
		NewCityCheck(opts.Config.Partner.Cities),
	}, nil
}

// identity resolves the session id and partner token for a call. The turn
// context set by the orchestrator wins over model-supplied arguments.
func identity(ctx context.Context, argSession, argToken string) (sessionID, token string) {
	sessionID, token = strings.TrimSpace(argSession), strings.TrimSpace(argToken)
	if tc, ok := domain.TurnFromContext(ctx); ok {
		if tc.SessionID != "" {
			sessionID = tc.SessionID
		}
		if tc.Token != "" {
			token = tc.Token
		}
	}
	return sessionID, token
}

func decodeArgs(input string, v any) error {
	if strings.TrimSpace(input) == "" {
		input = "{}"
	}
	if err := json.Unmarshal([]byte(input), v); err != nil {
		return fmt.Errorf("%w: %v", agent.ErrInvalidInput, err)
	}
	return nil
}

// fetch performs req and returns the (bounded) body and status code.
func fetch(client *http.Client, req *http.Request) ([]byte, int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func statusFailure(code int, body []byte) string {
	return fmt.Sprintf("Error en la solicitud: %d - %s", code, strings.TrimSpace(string(body)))
}

func requestFailure(err error) string {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Sprintf("Error en la solicitud: tiempo de espera agotado (%v)", err)
	}
	return fmt.Sprintf("Error de conexión con la API: %v", err)
}

func decodeFailure(err error) string {
	return fmt.Sprintf("Error al procesar la respuesta de la API: %v", err)
}

func encodeResult(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return decodeFailure(err)
	}
	return string(out)
}

// coordinate accepts a latitude or longitude given either as a JSON string
// or as a JSON number.
type coordinate string

func (c *coordinate) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*c = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = coordinate(strings.TrimSpace(s))
		return nil
	}
	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		return fmt.Errorf("coordinate must be a string or a number, got %s", raw)
	}
	*c = coordinate(raw)
	return nil
}
