package tools

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/gaia/internal/cache"
	"github.com/soyeahso/gaia/internal/config"
	"github.com/soyeahso/gaia/internal/logging"
)

// Establishment categories understood by the partner API.
var EstablishmentTypes = []string{
	"Restaurante",
	"Bar y cocteles",
	"Música y fiesta",
	"Diversión y juegos",
	"Aventura al aire libre",
}

const (
	coordinatesPath      = "/api/establishments/coordenates"
	guestCoordinatesPath = "/api/guest/establishments/coordenates"
	cityPath             = "/api/establishments/city"
	guestCityPath        = "/api/guest/establishments/city"
)

const partnerCoordinatesSchema = `{
  "type": "object",
  "properties": {
    "latitude": {
      "type": ["string", "number"],
      "description": "Latitud parte de las coordenadas asociadas al lugar donde el cliente desea salir, ejemplo: 19.4326"
    },
    "longitude": {
      "type": ["string", "number"],
      "description": "Longitud parte de las coordenadas asociadas al lugar donde el cliente desea salir, ejemplo: -99.1332"
    },
    "session_id": {
      "type": "string",
      "description": "ID de sesión para almacenar resultados"
    },
    "establishment_type": {
      "type": "string",
      "enum": ["Restaurante", "Bar y cocteles", "Música y fiesta", "Diversión y juegos", "Aventura al aire libre"],
      "description": "Categoría del establecimiento a buscar"
    },
    "token": {
      "type": "string",
      "description": "Token de acceso a la api de Clapzy"
    }
  },
  "required": ["latitude", "longitude", "session_id", "establishment_type", "token"]
}`

const partnerCitySchema = `{
  "type": "object",
  "properties": {
    "city": {
      "type": "string",
      "minLength": 1,
      "description": "Nombre de la ciudad donde el cliente desea salir"
    },
    "session_id": {
      "type": "string",
      "description": "ID de sesión para almacenar resultados"
    },
    "establishment_type": {
      "type": "string",
      "enum": ["Restaurante", "Bar y cocteles", "Música y fiesta", "Diversión y juegos", "Aventura al aire libre"],
      "description": "Categoría del establecimiento a buscar"
    },
    "token": {
      "type": "string",
      "description": "Token de acceso a la api de Clapzy"
    },
    "page": {
      "type": "integer",
      "minimum": 1,
      "description": "Página de resultados (por defecto 1)"
    },
    "limit": {
      "type": "integer",
      "minimum": 1,
      "maximum": 100,
      "description": "Cantidad de establecimientos por página"
    }
  },
  "required": ["city", "session_id", "establishment_type", "token"]
}`

// partnerAPI is the HTTP side shared by both partner search tools.
type partnerAPI struct {
	client  *http.Client
	baseURL string
	radius  int
	limit   int
	handoff *cache.Handoff
	log     *logging.Logger
}

func newPartnerAPI(client *http.Client, cfg config.PartnerConfig, handoff *cache.Handoff, log *logging.Logger) *partnerAPI {
	p := &partnerAPI{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		radius:  cfg.Radius,
		limit:   cfg.DefaultLimit,
		handoff: handoff,
		log:     log,
	}
	if p.baseURL == "" {
		p.baseURL = config.DefaultPartnerBaseURL
	}
	if p.radius <= 0 {
		p.radius = 50
	}
	if p.limit <= 0 {
		p.limit = 10
	}
	return p
}

// isGuest reports whether a call runs in guest mode: an anonymous caller
// uses its session id as the partner token.
func isGuest(sessionID, token string) bool {
	return token != "" && token == sessionID
}

// search runs one establishments query and returns the tool result text.
func (p *partnerAPI) search(ctx context.Context, tool, path, guestPath string, params url.Values, sessionID, token string) string {
	log := p.log.Session(sessionID).Tool(tool)
	guest := isGuest(sessionID, token)
	if guest {
		path = guestPath
	}
	if sessionID != "" {
		if err := p.handoff.DropPartners(ctx, sessionID); err != nil {
			log.Warn().Err(err).Msg("dropping stale establishments failed")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return requestFailure(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if guest {
		req.Header.Set("X-Guest-Access-Token", token)
	} else {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	data, status, err := fetch(p.client, req)
	log.Debug().
		Bool("guest", guest).
		Int("status", status).
		Dur("duration", time.Since(start)).
		Msg("partner search")
	if err != nil {
		log.Warn().Err(err).Msg("partner request failed")
		return requestFailure(err)
	}
	if status != http.StatusOK {
		log.Warn().Int("status", status).Msg("partner search rejected")
		return statusFailure(status, data)
	}

	records, err := parseEstablishments(data)
	if err != nil {
		return decodeFailure(err)
	}
	names := make([]string, 0, len(records))
	for _, raw := range records {
		var e struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return decodeFailure(err)
		}
		names = append(names, e.Name)
	}

	if sessionID != "" {
		payload, err := json.Marshal(records)
		if err == nil {
			err = p.handoff.PutPartners(ctx, sessionID, payload)
		}
		if err != nil {
			log.Warn().Err(err).Msg("caching establishments failed")
		}
	}
	return encodeResult(names)
}

// parseEstablishments extracts the establishment records from a partner
// response. The list comes either flat or wrapped in a paginated envelope.
func parseEstablishments(data []byte) ([]jsonRaw, error) {
	var resp struct {
		Establishments jsonRaw `json:"establishments"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}

	raw := bytes.TrimSpace(resp.Establishments)
	records := []jsonRaw{}
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '[':
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, err
		}
	case raw[0] == '{':
		var page struct {
			Data []jsonRaw `json:"data"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, err
		}
		if page.Data != nil {
			records = page.Data
		}
	default:
		return nil, fmt.Errorf("unexpected establishments value %.40s", raw)
	}
	return records, nil
}

// PartnerCoordinateSearch finds partner establishments near a coordinate.
type PartnerCoordinateSearch struct {
	api *partnerAPI
}

func (t *PartnerCoordinateSearch) Name() string { return PartnerToolName }

func (t *PartnerCoordinateSearch) Description() string {
	return "Busca establecimientos aliados de Clapzy cercanos a unas coordenadas y devuelve " +
		"la lista de nombres encontrados, o un mensaje de error si la solicitud falla."
}

func (t *PartnerCoordinateSearch) InputSchema() string { return partnerCoordinatesSchema }

type coordinateArgs struct {
	Latitude          coordinate `json:"latitude"`
	Longitude         coordinate `json:"longitude"`
	SessionID         string     `json:"session_id"`
	EstablishmentType string     `json:"establishment_type"`
	Token             string     `json:"token"`
}

func (t *PartnerCoordinateSearch) Execute(ctx context.Context, input string) (string, error) {
	var args coordinateArgs
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}
	sessionID, token := identity(ctx, args.SessionID, args.Token)

	params := url.Values{}
	params.Set("latitude", string(args.Latitude))
	params.Set("longitude", string(args.Longitude))
	params.Set("establishment_type", args.EstablishmentType)
	params.Set("radius", strconv.Itoa(t.api.radius))

	return t.api.search(ctx, PartnerToolName, coordinatesPath, guestCoordinatesPath, params, sessionID, token), nil
}

// PartnerCitySearch lists partner establishments of a city, page by page.
type PartnerCitySearch struct {
	api *partnerAPI
}

func (t *PartnerCitySearch) Name() string { return PartnerCityToolName }

func (t *PartnerCitySearch) Description() string {
	return "Busca establecimientos aliados de Clapzy en una ciudad, con paginación, y devuelve " +
		"la lista de nombres encontrados, o un mensaje de error si la solicitud falla. " +
		"Úsala cuando el usuario indique una ciudad y no haya coordenadas disponibles."
}

func (t *PartnerCitySearch) InputSchema() string { return partnerCitySchema }

type cityArgs struct {
	City              string `json:"city"`
	SessionID         string `json:"session_id"`
	EstablishmentType string `json:"establishment_type"`
	Token             string `json:"token"`
	Page              int    `json:"page"`
	Limit             int    `json:"limit"`
}

func (t *PartnerCitySearch) Execute(ctx context.Context, input string) (string, error) {
	var args cityArgs
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}
	sessionID, token := identity(ctx, args.SessionID, args.Token)

	page, limit := args.Page, args.Limit
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = t.api.limit
	}

	params := url.Values{}
	params.Set("city", strings.TrimSpace(args.City))
	params.Set("establishment_type", args.EstablishmentType)
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))

	return t.api.search(ctx, PartnerCityToolName, cityPath, guestCityPath, params, sessionID, token), nil
}
