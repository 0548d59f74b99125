package service

const rhrreadEN = `{
  "temperature": {"data": [
    {"place": "King's Park", "value": 29, "unit": "C"},
    {"place": "Hong Kong Observatory", "value": 30, "unit": "C"},
    {"place": "Sha Tin", "value": 31, "unit": "C"},
    {"place": "Cheung Chau", "value": 27, "unit": "C"}
  ], "recordTime": "2024-07-01T10:00:00+08:00"},
  "humidity": {"data": [{"unit": "percent", "value": 78, "place": "Hong Kong Observatory"}]},
  "uvindex": {"data": [{"place": "King's Park", "value": 6, "desc": "high"}]},
  "icon": [51],
  "updateTime": "2024-07-01T10:02:00+08:00"
}`

const rhrreadTCNight = `{
  "temperature": {"data": [
    {"place": "京士柏", "value": 26},
    {"place": "香港天文台", "value": 27}
  ]},
  "humidity": {"data": [{"value": 90, "place": "香港天文台"}]},
  "uvindex": "",
  "icon": [76],
  "updateTime": "2024-07-01T22:02:00+08:00"
}`

const fndEN = `{
  "weatherForecast": [
    {"forecastDate": "20240702", "forecastMaxtemp": {"value": 33}, "forecastMintemp": {"value": 28},
     "forecastMaxrh": {"value": 90}, "forecastMinrh": {"value": 70}, "ForecastIcon": 53},
    {"forecastDate": "20240703", "forecastMaxtemp": {"value": 32}, "forecastMintemp": {"value": 27},
     "forecastMaxrh": {"value": 95}, "forecastMinrh": {"value": 75}, "ForecastIcon": 63}
  ]
}`

const warningInfoDocs = `{
  "details": [
    {"contents": ["The Tropical Cyclone Signal No. 8 is in force.", "Gale force winds are expected."],
     "warningStatementCode": "WTCSGNL", "subtype": "TC8NE", "updateTime": "2024-07-01T09:40:00+08:00"},
    {"contents": [], "warningStatementCode": "WMSGNL", "updateTime": "2024-07-01T08:00:00+08:00"}
  ]
}`

const swtDoc1 = `{"swt": [
  {"desc": "Very hot weather warning is in force.", "updateTime": "2024-07-01T07:45:00+08:00"},
  {"desc": "Thunderstorms expected later.", "updateTime": "2024-07-01T09:15:00+08:00"}
]}`

// ocfHKO covers today and tomorrow only.
const ocfHKO = `{
  "StationCode": "HKO",
  "DailyForecast": [
    {"ForecastDate": "20240701", "ForecastChanceOfRain": "60%"},
    {"ForecastDate": "20240702", "ForecastChanceOfRain": "40%"}
  ],
  "HourlyWeatherForecast": [
    {"ForecastHour": "2024070111", "ForecastTemperature": 30.5, "ForecastRelativeHumidity": 75,
     "ForecastWindDirection": 90, "ForecastWindSpeed": 12, "ForecastWeather": 60},
    {"ForecastHour": "2024070112", "ForecastTemperature": 31.2, "ForecastRelativeHumidity": 72},
    {"ForecastHour": "2024070113", "ForecastWeather": 63}
  ]
}`

const humidityEN = "\ufeffDate time,Automatic Weather Station,Relative Humidity(percent)\n" +
	"202407011000,Hong Kong Observatory,76\n" +
	"202407011000,Sha Tin,85\n" +
	"202407011000,Tai Po,N/A\n"

const humidityTC = "日期時間,自動氣象站,相對濕度（百分比）\n" +
	"202407012200,天文台,91\n" +
	"202407012200,京士柏,88\n"

const windEN = "Date time,Automatic Weather Station,10-Minute Mean Wind Direction(Compass points),10-Minute Mean Speed(km/hour),10-Minute Maximum Gust(km/hour)\n" +
	"202407011000,Star Ferry,East,12,20\n" +
	"202407011000,Sha Tin,N/A,N/A,N/A\n" +
	"202407011000,Kai Tak,Northeast,15,27\n" +
	"202407011000,Waglan Island,Southeast,30,N/A\n"

const windTC = "日期時間,自動氣象站,十分鐘平均風向（方位點）,十分鐘平均風速（公里/小時）,十分鐘最高陣風風速（公里/小時）\n" +
	"202407012200,天星碼頭,東,10,18\n" +
	"202407012200,啟德,東北,15,27\n"

const sunTimes2024 = "\ufeffYYYY-MM-DD,RISE,TRAN.,SET\n" +
	"2024-06-30,05:42,12:20,18:59\n" +
	"2024-07-01,05:43,12:21,19:11\n"

const moonTimes2024 = "YYYY-MM-DD,RISE,TRAN.,SET\n" +
	"2024-07-01,01:12,07:55,\n"

// testDocs returns English condition documents for testNow.
func testDocs() conditionDocs {
	return conditionDocs{
		current:         []byte(rhrreadEN),
		forecast:        []byte(fndEN),
		stationForecast: []byte(ocfHKO),
		humidity:        []byte(humidityEN),
		wind:            []byte(windEN),
		sun:             []byte(sunTimes2024),
		moon:            []byte(moonTimes2024),
	}
}
