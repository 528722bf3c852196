package thsr

import (
	"strings"
	"thsr-receipts/lib/textutil"

	"github.com/antzucaro/matchr"
)

type Station struct {
	Name    string
	English string
	// Code is the option value the query form uses for the station.
	Code string
}

var Stations = []Station{
	{Name: "南港", English: "Nangang", Code: "1"},
	{Name: "台北", English: "Taipei", Code: "2"},
	{Name: "板橋", English: "Banqiao", Code: "3"},
	{Name: "桃園", English: "Taoyuan", Code: "4"},
	{Name: "新竹", English: "Hsinchu", Code: "5"},
	{Name: "苗栗", English: "Miaoli", Code: "6"},
	{Name: "台中", English: "Taichung", Code: "7"},
	{Name: "彰化", English: "Changhua", Code: "8"},
	{Name: "雲林", English: "Yunlin", Code: "9"},
	{Name: "嘉義", English: "Chiayi", Code: "10"},
	{Name: "台南", English: "Tainan", Code: "11"},
	{Name: "左營", English: "Zuoying", Code: "12"},
}

// DefaultStationCode is used for names that are not in the station table (台北).
const DefaultStationCode = "2"

func normalizeStation(name string) string {
	name = textutil.NormalizeName(name)
	name = strings.ReplaceAll(name, "臺", "台")
	name = strings.TrimSuffix(name, "站")
	name = strings.TrimSuffix(name, "station")
	return name
}

// LookupStation finds a station by its Chinese or English name, ignoring
// case, whitespace, the 臺/台 variant and a trailing 站.
func LookupStation(name string) (Station, bool) {
	normalized := normalizeStation(name)
	if normalized == "" {
		return Station{}, false
	}
	for _, s := range Stations {
		if normalized == normalizeStation(s.Name) || normalized == normalizeStation(s.English) {
			return s, true
		}
	}
	return Station{}, false
}

// StationCode returns the form value for a station name, falling back to
// DefaultStationCode when the name is unknown.
func StationCode(name string) string {
	station, ok := LookupStation(name)
	if !ok {
		return DefaultStationCode
	}
	return station.Code
}

// SuggestStation returns the station whose name is most similar to `name`.
func SuggestStation(name string) (Station, float64) {
	normalized := normalizeStation(name)

	var best Station
	var bestScore float64
	for _, s := range Stations {
		for _, candidate := range []string{s.Name, s.English} {
			score := matchr.JaroWinkler(normalized, normalizeStation(candidate), false)
			if score > bestScore {
				bestScore = score
				best = s
			}
		}
	}
	return best, bestScore
}
