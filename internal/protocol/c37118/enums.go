package c37118

// 所有编码字段均通过显式映射表解码，表外取值返回 *EnumError

func lookup[T any](table map[uint8]T, field string, raw uint8) (T, error) {
	v, ok := table[raw]
	if !ok {
		var zero T
		return zero, &EnumError{Field: field, Raw: uint32(raw)}
	}
	return v, nil
}

// NumType 数值编码：16 位整数或 32 位浮点
type NumType uint8

const (
	Integer NumType = iota
	Float
)

var numTypes = map[uint8]NumType{0: Integer, 1: Float}

func (t NumType) String() string {
	if t == Float {
		return "FLOAT"
	}
	return "INTEGER"
}

// PhasorFormat 相量表示：直角坐标或极坐标
type PhasorFormat uint8

const (
	Rect PhasorFormat = iota
	Polar
)

var phasorFormats = map[uint8]PhasorFormat{0: Rect, 1: Polar}

func (f PhasorFormat) String() string {
	if f == Polar {
		return "POLAR"
	}
	return "RECT"
}

// MeasurementKind PHUNIT 首字节：电压或电流
type MeasurementKind uint8

const (
	Voltage MeasurementKind = iota
	Current
)

var measurementKinds = map[uint8]MeasurementKind{0: Voltage, 1: Current}

func (k MeasurementKind) String() string {
	if k == Current {
		return "CURRENT"
	}
	return "VOLTAGE"
}

// AnalogKind ANUNIT 首字节
type AnalogKind uint8

const (
	AnalogPointOnWave AnalogKind = iota
	AnalogRMS
	AnalogPeak
)

var analogKinds = map[uint8]AnalogKind{0: AnalogPointOnWave, 1: AnalogRMS, 2: AnalogPeak}

var analogKindNames = map[AnalogKind]string{
	AnalogPointOnWave: "SINGLE_POINT_ON_WAVE",
	AnalogRMS:         "RMS",
	AnalogPeak:        "PEAK",
}

func (k AnalogKind) String() string { return analogKindNames[k] }

// NominalFreq FNOM 最低位
type NominalFreq uint8

const (
	Freq60Hz NominalFreq = iota
	Freq50Hz
)

var nominalFreqs = map[uint8]NominalFreq{0: Freq60Hz, 1: Freq50Hz}

// Hz 返回额定频率数值
func (f NominalFreq) Hz() float64 {
	if f == Freq50Hz {
		return 50
	}
	return 60
}

func (f NominalFreq) String() string {
	if f == Freq50Hz {
		return "50Hz"
	}
	return "60Hz"
}

// DataError STAT bit15-14
type DataError uint8

const (
	DataGood DataError = iota
	DataPMUError
	DataPMUTest
	DataPMUNotTracking
)

var dataErrors = map[uint8]DataError{0: DataGood, 1: DataPMUError, 2: DataPMUTest, 3: DataPMUNotTracking}

var dataErrorNames = map[DataError]string{
	DataGood:           "GOOD",
	DataPMUError:       "PMU_ERROR",
	DataPMUTest:        "PMU_IN_TEST",
	DataPMUNotTracking: "PMU_NOT_TRACKING",
}

func (e DataError) String() string { return dataErrorNames[e] }

// SyncState STAT bit13
type SyncState uint8

const (
	SyncLocked SyncState = iota
	SyncUnlocked
)

var syncStates = map[uint8]SyncState{0: SyncLocked, 1: SyncUnlocked}

func (s SyncState) String() string {
	if s == SyncUnlocked {
		return "UNLOCKED"
	}
	return "LOCKED"
}

// Sorting STAT bit12
type Sorting uint8

const (
	SortByTimestamp Sorting = iota
	SortByArrival
)

var sortings = map[uint8]Sorting{0: SortByTimestamp, 1: SortByArrival}

func (s Sorting) String() string {
	if s == SortByArrival {
		return "BY_ARRIVAL"
	}
	return "BY_TIMESTAMP"
}

// TimeQuality STAT bit8-6，PMU 时间质量
type TimeQuality uint8

var timeQualities = map[uint8]TimeQuality{0: 0, 1: 1, 2: 2, 3: 3, 4: 4, 5: 5, 6: 6, 7: 7}

var timeQualityNames = map[TimeQuality]string{
	0: "NOT_USED",
	1: "ERROR_LT_100NS",
	2: "ERROR_LT_1US",
	3: "ERROR_LT_10US",
	4: "ERROR_LT_100US",
	5: "ERROR_LT_1MS",
	6: "ERROR_LT_10MS",
	7: "ERROR_GT_10MS_OR_UNKNOWN",
}

func (q TimeQuality) String() string { return timeQualityNames[q] }

// UnlockedTime STAT bit5-4
type UnlockedTime uint8

var unlockedTimes = map[uint8]UnlockedTime{0: 0, 1: 1, 2: 2, 3: 3}

var unlockedTimeNames = map[UnlockedTime]string{
	0: "LOCKED_OR_LT_10S",
	1: "LT_100S",
	2: "LT_1000S",
	3: "GT_1000S",
}

func (u UnlockedTime) String() string { return unlockedTimeNames[u] }

// TriggerReason STAT bit3-0
type TriggerReason uint8

var triggerReasons = map[uint8]TriggerReason{
	0: 0, 1: 1, 2: 2, 3: 3, 4: 4, 5: 5, 6: 6, 7: 7,
	8: 8, 9: 9, 10: 10, 11: 11, 12: 12, 13: 13, 14: 14, 15: 15,
}

var triggerReasonNames = map[TriggerReason]string{
	0: "MANUAL",
	1: "MAGNITUDE_LOW",
	2: "MAGNITUDE_HIGH",
	3: "PHASE_ANGLE_DIFF",
	4: "FREQUENCY_HIGH_OR_LOW",
	5: "DF_DT_HIGH",
	6: "RESERVED",
	7: "DIGITAL",
}

func (r TriggerReason) String() string {
	if n, ok := triggerReasonNames[r]; ok {
		return n
	}
	return "USER_DEFINED"
}
