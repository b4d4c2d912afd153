package tools

import (
	"context"
	"strings"

	"github.com/soyeahso/gaia/internal/config"
)

const cityCheckSchema = `{
  "type": "object",
  "properties": {
    "city": {
      "type": "string",
      "description": "Nombre de la ciudad a verificar"
    },
    "cities": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Lista de ciudades donde Clapzy maneja establecimientos (opcional)"
    },
    "case_sensitive": {
      "type": "boolean",
      "description": "Si la comparación debe ser sensible a mayúsculas/minúsculas (por defecto: false)"
    }
  },
  "required": ["city"]
}`

// ErrEmptyCity is reported in CityMatch.Error for blank input.
const ErrEmptyCity = "El nombre de la ciudad no puede estar vacío"

// CityMatch is the result of a city membership check.
type CityMatch struct {
	City        string  `json:"city"`
	Matched     bool    `json:"matched"`
	ExactMatch  *string `json:"exact_match"`
	TotalCities int     `json:"total_cities"`
	Error       string  `json:"error,omitempty"`
}

// CheckCity reports whether city is one of cities. The input is trimmed;
// unless caseSensitive is set the comparison uses Unicode case folding.
// ExactMatch carries the list's spelling of the matched entry.
func CheckCity(city string, cities []string, caseSensitive bool) CityMatch {
	res := CityMatch{City: city, TotalCities: len(cities)}
	clean := strings.TrimSpace(city)
	if clean == "" {
		res.Error = ErrEmptyCity
		return res
	}
	res.City = clean

	for _, candidate := range cities {
		hit := candidate == clean
		if !caseSensitive {
			hit = strings.EqualFold(candidate, clean)
		}
		if hit {
			exact := candidate
			res.Matched = true
			res.ExactMatch = &exact
			break
		}
	}
	return res
}

// CityCheck tells the model whether the partner network covers a city.
type CityCheck struct {
	cities []string
}

// NewCityCheck creates the tool. An empty list uses config.DefaultCities.
func NewCityCheck(cities []string) *CityCheck {
	if len(cities) == 0 {
		cities = config.DefaultCities
	}
	return &CityCheck{cities: append([]string(nil), cities...)}
}

func (t *CityCheck) Name() string { return CityCheckToolName }

func (t *CityCheck) Description() string {
	return "Verifica si una ciudad está en la lista de ciudades donde Clapzy tiene establecimientos. " +
		"Devuelve la ciudad verificada, si fue encontrada, el nombre exacto en la lista y el total de ciudades."
}

func (t *CityCheck) InputSchema() string { return cityCheckSchema }

type cityCheckArgs struct {
	City          string   `json:"city"`
	Cities        []string `json:"cities"`
	CaseSensitive bool     `json:"case_sensitive"`
}

func (t *CityCheck) Execute(_ context.Context, input string) (string, error) {
	var args cityCheckArgs
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}
	cities := args.Cities
	if cities == nil {
		cities = t.cities
	}
	return encodeResult(CheckCity(args.City, cities, args.CaseSensitive)), nil
}
