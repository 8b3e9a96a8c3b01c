package places

// typeES maps Google place types to the labels shown in the onboarding UI.
var typeES = map[string]string{
	"restaurant":         "Restaurante",
	"cafe":               "Cafetería",
	"bar":                "Bar",
	"bakery":             "Panadería",
	"meal_takeaway":      "Comida para llevar",
	"clothing_store":     "Tienda de ropa",
	"electronics_store":  "Tienda de electrónica",
	"furniture_store":    "Mueblería",
	"supermarket":        "Supermercado",
	"department_store":   "Tienda por departamentos",
	"lawyer":             "Estudio jurídico",
	"accounting":         "Contador",
	"real_estate_agency": "Inmobiliaria",
	"insurance_agency":   "Aseguradora",
	"bank":               "Banco",
	"pharmacy":           "Farmacia",
	"hardware_store":     "Ferretería",
	"gas_station":        "Estación de servicio",
	"beauty_salon":       "Salón de belleza",
	"hair_care":          "Peluquería",
	"gym":                "Gimnasio",
	"lodging":            "Alojamiento",
	"travel_agency":      "Agencia de viajes",
}

var verticals = map[string][]string{
	"gastronomia": {"restaurant", "cafe", "bar", "bakery", "meal_takeaway"},
	"retail":      {"clothing_store", "electronics_store", "furniture_store", "supermarket", "department_store"},
	"servicios":   {"lawyer", "accounting", "real_estate_agency", "insurance_agency", "bank"},
}

// TypeLabel returns the Spanish label of the primary type, else of the first
// known type, else the raw primary or first type. ok is false when there is
// nothing to show.
func TypeLabel(primary string, types []string) (string, bool) {
	if l, ok := typeES[primary]; ok {
		return l, true
	}
	for _, t := range types {
		if l, ok := typeES[t]; ok {
			return l, true
		}
	}
	if primary != "" {
		return primary, true
	}
	if len(types) > 0 {
		return types[0], true
	}
	return "", false
}

// VerticalTypes returns the place types of a vertical, nil for unknown ones.
func VerticalTypes(vertical string) map[string]bool {
	ts, ok := verticals[vertical]
	if !ok {
		return nil
	}
	m := make(map[string]bool, len(ts))
	for _, t := range ts {
		m[t] = true
	}
	return m
}
