package domain

// Names of the lookup tools the agent can call. The orchestrator uses them
// to find the handoff slots a turn's tool results refer to.
const (
	ToolPlaces      = "recomendar_lugares_google_places"
	ToolPartner     = "recomendar_lugares_clapzy"
	ToolPartnerCity = "recomendar_lugares_clapzy_ciudad"
	ToolCityCheck   = "verificar_ciudades_clapzy"
)

// IsPartnerTool reports whether name is one of the partner establishment
// searches, which share a handoff slot.
func IsPartnerTool(name string) bool {
	return name == ToolPartner || name == ToolPartnerCity
}
