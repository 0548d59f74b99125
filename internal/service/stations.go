package service

import (
	"math"

	"github.com/LOOHP/HK-Weather-Warnings-WearOS/internal/models"
)

// Station is an automatic weather station. Names are as they appear in the
// document the station is looked up in; Code is set for OCF forecast points.
type Station struct {
	NameEN string
	NameZH string
	Lat    float64
	Lng    float64
	Code   string
}

// Name returns the station name as it appears in documents for lang.
func (s Station) Name(lang models.Language) string {
	if lang == models.LanguageEnglish {
		return s.NameEN
	}
	return s.NameZH
}

const (
	earthRadiusKm = 6371.0
	// maxStationDistanceKm is how far the nearest station may be before the
	// reading is labelled as territory-wide.
	maxStationDistanceKm = 100.0
)

// observatory as named in rhrread.
var observatory = Station{NameEN: "Hong Kong Observatory", NameZH: "香港天文台", Lat: 22.3019, Lng: 114.1742}

// temperatureStations report temperature in rhrread.
var temperatureStations = []Station{
	observatory,
	{NameEN: "King's Park", NameZH: "京士柏", Lat: 22.3119, Lng: 114.1728},
	{NameEN: "Wong Chuk Hang", NameZH: "黃竹坑", Lat: 22.2478, Lng: 114.1736},
	{NameEN: "Ta Kwu Ling", NameZH: "打鼓嶺", Lat: 22.5286, Lng: 114.1567},
	{NameEN: "Lau Fau Shan", NameZH: "流浮山", Lat: 22.4689, Lng: 113.9836},
	{NameEN: "Tai Po", NameZH: "大埔", Lat: 22.4461, Lng: 114.1790},
	{NameEN: "Sha Tin", NameZH: "沙田", Lat: 22.4025, Lng: 114.2100},
	{NameEN: "Tuen Mun", NameZH: "屯門", Lat: 22.3858, Lng: 113.9642},
	{NameEN: "Tseung Kwan O", NameZH: "將軍澳", Lat: 22.3158, Lng: 114.2556},
	{NameEN: "Sai Kung", NameZH: "西貢", Lat: 22.3756, Lng: 114.2744},
	{NameEN: "Cheung Chau", NameZH: "長洲", Lat: 22.2011, Lng: 114.0267},
	{NameEN: "Chek Lap Kok", NameZH: "赤鱲角", Lat: 22.3094, Lng: 113.9219},
	{NameEN: "Tsing Yi", NameZH: "青衣", Lat: 22.3442, Lng: 114.1103},
	{NameEN: "Shek Kong", NameZH: "石崗", Lat: 22.4361, Lng: 114.0847},
	{NameEN: "Stanley", NameZH: "赤柱", Lat: 22.2142, Lng: 114.2186},
	{NameEN: "Kwun Tong", NameZH: "觀塘", Lat: 22.3186, Lng: 114.2250},
	{NameEN: "Sham Shui Po", NameZH: "深水埗", Lat: 22.3358, Lng: 114.1369},
	{NameEN: "Kowloon City", NameZH: "九龍城", Lat: 22.3350, Lng: 114.1847},
	{NameEN: "Happy Valley", NameZH: "跑馬地", Lat: 22.2706, Lng: 114.1836},
	{NameEN: "Wong Tai Sin", NameZH: "黃大仙", Lat: 22.3394, Lng: 114.2053},
	{NameEN: "Yuen Long Park", NameZH: "元朗公園", Lat: 22.4408, Lng: 114.0183},
}

// csvObservatory is the Observatory as named in the regional CSV datasets.
var csvObservatory = Station{NameEN: "Hong Kong Observatory", NameZH: "天文台", Lat: 22.3019, Lng: 114.1742}

// humidityStations report in latest_1min_humidity.
var humidityStations = []Station{
	csvObservatory,
	{NameEN: "King's Park", NameZH: "京士柏", Lat: 22.3119, Lng: 114.1728},
	{NameEN: "Wong Chuk Hang", NameZH: "黃竹坑", Lat: 22.2478, Lng: 114.1736},
	{NameEN: "Ta Kwu Ling", NameZH: "打鼓嶺", Lat: 22.5286, Lng: 114.1567},
	{NameEN: "Lau Fau Shan", NameZH: "流浮山", Lat: 22.4689, Lng: 113.9836},
	{NameEN: "Tai Po", NameZH: "大埔", Lat: 22.4461, Lng: 114.1790},
	{NameEN: "Sha Tin", NameZH: "沙田", Lat: 22.4025, Lng: 114.2100},
	{NameEN: "Tuen Mun", NameZH: "屯門", Lat: 22.3858, Lng: 113.9642},
	{NameEN: "Tseung Kwan O", NameZH: "將軍澳", Lat: 22.3158, Lng: 114.2556},
	{NameEN: "Sai Kung", NameZH: "西貢", Lat: 22.3756, Lng: 114.2744},
	{NameEN: "Cheung Chau", NameZH: "長洲", Lat: 22.2011, Lng: 114.0267},
	{NameEN: "Chek Lap Kok", NameZH: "赤鱲角", Lat: 22.3094, Lng: 113.9219},
	{NameEN: "Tsing Yi", NameZH: "青衣", Lat: 22.3442, Lng: 114.1103},
	{NameEN: "Shek Kong", NameZH: "石崗", Lat: 22.4361, Lng: 114.0847},
	{NameEN: "Stanley", NameZH: "赤柱", Lat: 22.2142, Lng: 114.2186},
	{NameEN: "Peng Chau", NameZH: "坪洲", Lat: 22.2911, Lng: 114.0433},
}

// starFerry is the wind reading used when the nearest wind station has none.
var starFerry = Station{NameEN: "Star Ferry", NameZH: "天星碼頭", Lat: 22.2936, Lng: 114.1686}

// windStations report in latest_10min_wind.
var windStations = []Station{
	starFerry,
	{NameEN: "Central Pier", NameZH: "中環碼頭", Lat: 22.2886, Lng: 114.1556},
	{NameEN: "Chek Lap Kok", NameZH: "赤鱲角", Lat: 22.3094, Lng: 113.9219},
	{NameEN: "Cheung Chau", NameZH: "長洲", Lat: 22.2011, Lng: 114.0267},
	{NameEN: "Green Island", NameZH: "青洲", Lat: 22.2853, Lng: 114.1128},
	{NameEN: "Kai Tak", NameZH: "啟德", Lat: 22.3047, Lng: 114.2156},
	{NameEN: "King's Park", NameZH: "京士柏", Lat: 22.3119, Lng: 114.1728},
	{NameEN: "Lau Fau Shan", NameZH: "流浮山", Lat: 22.4689, Lng: 113.9836},
	{NameEN: "Sai Kung", NameZH: "西貢", Lat: 22.3756, Lng: 114.2744},
	{NameEN: "Sha Tin", NameZH: "沙田", Lat: 22.4025, Lng: 114.2100},
	{NameEN: "Shek Kong", NameZH: "石崗", Lat: 22.4361, Lng: 114.0847},
	{NameEN: "Stanley", NameZH: "赤柱", Lat: 22.2142, Lng: 114.2186},
	{NameEN: "Ta Kwu Ling", NameZH: "打鼓嶺", Lat: 22.5286, Lng: 114.1567},
	{NameEN: "Tai Po Kau", NameZH: "大埔滘", Lat: 22.4428, Lng: 114.1839},
	{NameEN: "Tap Mun", NameZH: "塔門", Lat: 22.4714, Lng: 114.3606},
	{NameEN: "Tseung Kwan O", NameZH: "將軍澳", Lat: 22.3158, Lng: 114.2556},
	{NameEN: "Tsing Yi", NameZH: "青衣", Lat: 22.3442, Lng: 114.1103},
	{NameEN: "Tuen Mun", NameZH: "屯門", Lat: 22.3858, Lng: 113.9642},
	{NameEN: "Waglan Island", NameZH: "橫瀾島", Lat: 22.1822, Lng: 114.3033},
	{NameEN: "Wetland Park", NameZH: "濕地公園", Lat: 22.4667, Lng: 114.0089},
}

// forecastStations are the OCF forecast points, by station code.
var forecastStations = []Station{
	{Code: "HKO", Lat: 22.3019, Lng: 114.1742},
	{Code: "HKA", Lat: 22.3094, Lng: 113.9219},
	{Code: "CCH", Lat: 22.2011, Lng: 114.0267},
	{Code: "HKS", Lat: 22.2478, Lng: 114.1736},
	{Code: "HPV", Lat: 22.2706, Lng: 114.1836},
	{Code: "JKB", Lat: 22.3158, Lng: 114.2556},
	{Code: "LFS", Lat: 22.4689, Lng: 113.9836},
	{Code: "PEN", Lat: 22.2911, Lng: 114.0433},
	{Code: "SEK", Lat: 22.4361, Lng: 114.0847},
	{Code: "SHA", Lat: 22.4025, Lng: 114.2100},
	{Code: "SKG", Lat: 22.3756, Lng: 114.2744},
	{Code: "SSH", Lat: 22.5019, Lng: 114.1111},
	{Code: "SSP", Lat: 22.3358, Lng: 114.1369},
	{Code: "TKL", Lat: 22.5286, Lng: 114.1567},
	{Code: "TPO", Lat: 22.4461, Lng: 114.1790},
	{Code: "TU1", Lat: 22.3858, Lng: 113.9642},
	{Code: "TW", Lat: 22.3758, Lng: 114.1111},
	{Code: "TY1", Lat: 22.3442, Lng: 114.1103},
	{Code: "WTS", Lat: 22.3394, Lng: 114.2053},
	{Code: "YLP", Lat: 22.4408, Lng: 114.0183},
}

// territoryLabel is used instead of a station name when the location is far
// from every station or was not resolved.
func territoryLabel(lang models.Language) string {
	if lang == models.LanguageEnglish {
		return "Hong Kong"
	}
	return "香港"
}

// distanceKm is the great-circle distance between two coordinates.
func distanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// nearestStation returns the station in list closest to loc and its distance.
// list must not be empty.
func nearestStation(list []Station, loc models.Location) (Station, float64) {
	best := list[0]
	bestDist := math.MaxFloat64
	for _, s := range list {
		if d := distanceKm(loc.Lat, loc.Lng, s.Lat, s.Lng); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best, bestDist
}
