package station

// Message types with a registered parser.
const (
	TypeObservation = "obs_st"
	TypeRapidWind   = "rapid_wind"
	TypeHubStatus   = "hub_status"
)

// Reading is a parsed station message. Concrete variants are Observation,
// RapidWind, HubStatus and ErrorReading; consumers must check for
// ErrorReading before treating a reading as data.
type Reading interface {
	MessageType() string
}

// ErrorReading records a structurally invalid payload. It is a valid
// terminal parse result, not a failure of the parser itself.
type ErrorReading struct {
	Type   string
	Reason string
}

func (r ErrorReading) MessageType() string { return r.Type }

// Meta carries message provenance shared by all variants.
type Meta struct {
	DeviceSN   *string
	HubSN      *string
	ReceivedAt int64 // unix seconds at receipt
}

type Wind struct {
	LullMps         *float64
	LullKt          *float64
	AvgMps          *float64
	AvgKt           *float64
	GustMps         *float64
	GustKt          *float64
	DirectionDeg    *float64
	SampleIntervalS *float64
}

type Pressure struct {
	HPa  *float64
	InHg *float64
}

type Temperature struct {
	C *float64
	F *float64
}

type Light struct {
	IlluminanceLux    *float64
	UVIndex           *float64
	SolarRadiationWM2 *float64
}

type Rain struct {
	SinceReportMm     *float64
	SinceReportIn     *float64
	PrecipitationType string
	LocalDayMm        *float64
	LocalDayIn        *float64
}

type Lightning struct {
	AvgDistanceKm *float64
	StrikeCount   *float64
}

// Observation is a full device observation (obs_st).
type Observation struct {
	Timestamp         *float64 // epoch seconds
	Wind              Wind
	Pressure          Pressure
	Temperature       Temperature
	HumidityPct       *float64
	Light             Light
	Rain              Rain
	Lightning         Lightning
	BatteryV          *float64
	ReportIntervalMin *float64
	Meta              Meta
}

func (Observation) MessageType() string { return TypeObservation }

// RapidWind is an instantaneous wind reading (rapid_wind).
type RapidWind struct {
	Timestamp    *float64
	InstantMps   *float64
	InstantKt    *float64
	DirectionDeg *float64
	Meta         Meta
}

func (RapidWind) MessageType() string { return TypeRapidWind }

// HubStatus is a hub diagnostic report (hub_status).
type HubStatus struct {
	Firmware  *string
	UptimeS   *float64
	RSSI      *float64
	Timestamp *float64
	Meta      Meta
}

func (HubStatus) MessageType() string { return TypeHubStatus }
