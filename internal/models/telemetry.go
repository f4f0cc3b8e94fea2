package models

// TelemetrySample is one reactor status push message.
type TelemetrySample struct {
	NeutronFlux float64 `json:"neutron_flux"`
	CoreTemp    float64 `json:"core_temp"`
	KEffective  float64 `json:"k_eff"`
}
