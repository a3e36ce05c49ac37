package station

import "time"

// precipTypes maps the obs_st precipitation code (field 13) to a name.
// Codes outside the map report "unknown".
var precipTypes = map[int]string{
	0: "none",
	1: "rain",
	2: "hail",
	3: "snow",
}

func precipitationType(code *float64) string {
	if code == nil {
		return "unknown"
	}
	if name, ok := precipTypes[int(*code)]; ok {
		return name
	}
	return "unknown"
}

type parserFunc func(Envelope, time.Time) Reading

var parsers = map[string]parserFunc{
	TypeObservation: parseObservation,
	TypeRapidWind:   parseRapidWind,
	TypeHubStatus:   parseHubStatus,
}

// Parse runs the registered parser for msgType. The second return value is
// false when no parser is registered for the type; the reading itself may be
// an ErrorReading when the payload is structurally invalid. receivedAt is
// stamped into the reading's metadata so parsing stays a pure function.
func Parse(msgType string, e Envelope, receivedAt time.Time) (Reading, bool) {
	p, ok := parsers[msgType]
	if !ok {
		return nil, false
	}
	return p(e, receivedAt), true
}

func metaFrom(e Envelope, receivedAt time.Time) Meta {
	return Meta{
		DeviceSN:   e.strField("serial_number"),
		HubSN:      e.strField("hub_sn"),
		ReceivedAt: receivedAt.Unix(),
	}
}

// parseObservation decodes an obs_st message. The observation is the first
// row of the "obs" array; fields are positional per the station protocol.
// The daily rain total (index 18) only exists from protocol revisions with
// 19 or more elements, so trailing indexes are length-guarded.
func parseObservation(e Envelope, receivedAt time.Time) Reading {
	rows, _ := e["obs"].([]any)
	var obs []any
	if len(rows) > 0 {
		obs, _ = rows[0].([]any)
	}
	if len(obs) == 0 {
		return ErrorReading{Type: TypeObservation, Reason: "empty obs"}
	}

	lull, avg, gust := numAt(obs, 1), numAt(obs, 2), numAt(obs, 3)
	pressure := numAt(obs, 6)
	temp := numAt(obs, 7)
	rain := numAt(obs, 12)
	dailyRain := numAt(obs, 18)

	return Observation{
		Timestamp: numAt(obs, 0),
		Wind: Wind{
			LullMps:         lull,
			LullKt:          MpsToKt(lull),
			AvgMps:          avg,
			AvgKt:           MpsToKt(avg),
			GustMps:         gust,
			GustKt:          MpsToKt(gust),
			DirectionDeg:    numAt(obs, 4),
			SampleIntervalS: numAt(obs, 5),
		},
		Pressure: Pressure{
			HPa:  pressure,
			InHg: HpaToInHg(pressure),
		},
		Temperature: Temperature{
			C: temp,
			F: CToF(temp),
		},
		HumidityPct: numAt(obs, 8),
		Light: Light{
			IlluminanceLux:    numAt(obs, 9),
			UVIndex:           numAt(obs, 10),
			SolarRadiationWM2: numAt(obs, 11),
		},
		Rain: Rain{
			SinceReportMm:     rain,
			SinceReportIn:     MmToIn(rain),
			PrecipitationType: precipitationType(numAt(obs, 13)),
			LocalDayMm:        dailyRain,
			LocalDayIn:        MmToIn(dailyRain),
		},
		Lightning: Lightning{
			AvgDistanceKm: numAt(obs, 14),
			StrikeCount:   numAt(obs, 15),
		},
		BatteryV:          numAt(obs, 16),
		ReportIntervalMin: numAt(obs, 17),
		Meta:              metaFrom(e, receivedAt),
	}
}

// parseRapidWind decodes a rapid_wind message: ob = [timestamp, speed m/s,
// direction deg].
func parseRapidWind(e Envelope, receivedAt time.Time) Reading {
	ob, _ := e["ob"].([]any)
	if len(ob) < 3 {
		return ErrorReading{Type: TypeRapidWind, Reason: "bad ob"}
	}
	speed := numAt(ob, 1)
	return RapidWind{
		Timestamp:    numAt(ob, 0),
		InstantMps:   speed,
		InstantKt:    MpsToKt(speed),
		DirectionDeg: numAt(ob, 2),
		Meta:         metaFrom(e, receivedAt),
	}
}

// parseHubStatus decodes a hub_status message. All fields are top-level and
// optional; a hub_status never produces an ErrorReading.
func parseHubStatus(e Envelope, receivedAt time.Time) Reading {
	return HubStatus{
		Firmware:  e.strField("firmware_revision"),
		UptimeS:   e.numField("uptime"),
		RSSI:      e.numField("rssi"),
		Timestamp: e.numField("time"),
		Meta: Meta{
			HubSN:      e.strField("serial_number"),
			ReceivedAt: receivedAt.Unix(),
		},
	}
}
