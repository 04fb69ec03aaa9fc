package weather

// SymbolForCode maps a WMO weather code (as delivered by the forecast
// provider) to a met.no-style symbol name. Codes with day/night icon
// variants get a "_day"/"_night" suffix; the renderer resolves symbol
// names to whatever assets it has.
func SymbolForCode(code int, isDay bool) string {
	suffix := "_night"
	if isDay {
		suffix = "_day"
	}

	switch code {
	case 0:
		return "clearsky" + suffix
	case 1:
		return "fair" + suffix
	case 2:
		return "partlycloudy" + suffix
	case 3:
		return "cloudy"
	case 45, 48:
		return "fog"
	case 51, 53:
		return "lightrain"
	case 55:
		return "rain"
	case 56, 57, 66:
		return "lightsleet"
	case 61:
		return "lightrain"
	case 63:
		return "rain"
	case 65:
		return "heavyrain"
	case 67:
		return "heavysleet"
	case 71, 77:
		return "lightsnow"
	case 73:
		return "snow"
	case 75:
		return "heavysnow"
	case 80:
		return "lightrainshowers" + suffix
	case 81:
		return "rainshowers" + suffix
	case 82:
		return "heavyrainshowers" + suffix
	case 85:
		return "lightsnowshowers" + suffix
	case 86:
		return "heavysnowshowers" + suffix
	case 95:
		return "rainandthunder"
	case 96, 99:
		return "heavyrainandthunder"
	default:
		return "cloudy"
	}
}
