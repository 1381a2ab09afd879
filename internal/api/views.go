package api

import (
	"time"

	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
	"github.com/taoyao-code/pmu-gateway/internal/session"
)

// DeviceView 设备会话概要
type DeviceView struct {
	SessionID string        `json:"session_id" yaml:"session_id"`
	Name      string        `json:"name" yaml:"name"`
	IDCode    uint16        `json:"idcode" yaml:"idcode"`
	Addr      string        `json:"addr" yaml:"addr"`
	State     string        `json:"state" yaml:"state"`
	HasConfig bool          `json:"has_config" yaml:"has_config"`
	LastData  *time.Time    `json:"last_data,omitempty" yaml:"last_data,omitempty"`
	Stats     session.Stats `json:"stats" yaml:"stats"`
}

func newDeviceView(s *session.Session) DeviceView {
	v := DeviceView{
		SessionID: s.ID(),
		Name:      s.Name(),
		IDCode:    s.IDCode(),
		Addr:      s.Addr(),
		State:     s.State().String(),
		HasConfig: s.Config() != nil,
		Stats:     s.Stats(),
	}
	if df := s.Latest(); df != nil {
		ts := df.Timestamp
		v.LastData = &ts
	}
	return v
}

// ChannelView 相量或模拟量通道
type ChannelView struct {
	Name  string  `json:"name" yaml:"name"`
	Kind  string  `json:"kind" yaml:"kind"`
	Scale float64 `json:"scale" yaml:"scale"`
}

// StationView 配置帧站点
type StationView struct {
	Name         string        `json:"name" yaml:"name"`
	IDCode       uint16        `json:"idcode" yaml:"idcode"`
	PhasorFormat string        `json:"phasor_format" yaml:"phasor_format"`
	PhasorType   string        `json:"phasor_type" yaml:"phasor_type"`
	AnalogType   string        `json:"analog_type" yaml:"analog_type"`
	FreqType     string        `json:"freq_type" yaml:"freq_type"`
	Phasors      []ChannelView `json:"phasors" yaml:"phasors"`
	Analogs      []ChannelView `json:"analogs" yaml:"analogs"`
	Digitals     []string      `json:"digitals" yaml:"digitals"`
	NominalFreq  float64       `json:"nominal_freq" yaml:"nominal_freq"`
	ConfigCount  uint16        `json:"cfgcnt" yaml:"cfgcnt"`
	DataSize     int           `json:"data_size" yaml:"data_size"`
}

// ConfigView 配置帧摘要
type ConfigView struct {
	Type          string        `json:"type" yaml:"type"`
	IDCode        uint16        `json:"idcode" yaml:"idcode"`
	Timestamp     time.Time     `json:"timestamp" yaml:"timestamp"`
	TimeBase      uint32        `json:"time_base" yaml:"time_base"`
	DataRate      int16         `json:"data_rate" yaml:"data_rate"`
	DataFrameSize int           `json:"data_frame_size" yaml:"data_frame_size"`
	Stations      []StationView `json:"stations" yaml:"stations"`
}

// NewConfigView 配置帧摘要视图
func NewConfigView(cfg *c37118.ConfigFrame) ConfigView {
	v := ConfigView{
		Type:          cfg.Header.Type.String(),
		IDCode:        cfg.IDCode(),
		Timestamp:     cfg.Timestamp(),
		TimeBase:      cfg.TimeBase.Base,
		DataRate:      cfg.DataRate,
		DataFrameSize: cfg.DataFrameSize(),
	}
	for _, st := range cfg.Stations {
		sv := StationView{
			Name:         st.Name,
			IDCode:       st.IDCode,
			PhasorFormat: st.PhasorFormat.String(),
			PhasorType:   st.PhasorType.String(),
			AnalogType:   st.AnalogType.String(),
			FreqType:     st.FreqType.String(),
			NominalFreq:  st.NominalFreq.Hz(),
			ConfigCount:  st.ConfigCount,
			DataSize:     st.DataSize(),
		}
		names := st.ChannelNames
		for i, u := range st.PhasorUnits {
			sv.Phasors = append(sv.Phasors, ChannelView{Name: names[i], Kind: u.Kind.String(), Scale: u.Factor()})
		}
		for i, u := range st.AnalogUnits {
			sv.Analogs = append(sv.Analogs, ChannelView{Name: names[st.PhasorCount+i], Kind: u.Kind.String(), Scale: float64(u.Scale)})
		}
		sv.Digitals = append([]string(nil), names[st.PhasorCount+st.AnalogCount:]...)
		v.Stations = append(v.Stations, sv)
	}
	return v
}

// PhasorView 相量测量值
type PhasorView struct {
	Name      string  `json:"name" yaml:"name"`
	Magnitude float64 `json:"magnitude" yaml:"magnitude"`
	AngleDeg  float64 `json:"angle_deg" yaml:"angle_deg"`
	Real      float64 `json:"real" yaml:"real"`
	Imag      float64 `json:"imag" yaml:"imag"`
}

// PMUView 单站点测量
type PMUView struct {
	Station      string             `json:"station" yaml:"station"`
	IDCode       uint16             `json:"idcode" yaml:"idcode"`
	Stat         uint16             `json:"stat" yaml:"stat"`
	DataError    string             `json:"data_error" yaml:"data_error"`
	Sync         string             `json:"sync" yaml:"sync"`
	TimeQuality  string             `json:"time_quality" yaml:"time_quality"`
	ConfigChange bool               `json:"config_change" yaml:"config_change"`
	Freq         float64            `json:"freq" yaml:"freq"`
	ROCOF        float64            `json:"rocof" yaml:"rocof"`
	Phasors      []PhasorView       `json:"phasors" yaml:"phasors"`
	Analogs      map[string]float64 `json:"analogs,omitempty" yaml:"analogs,omitempty"`
	Digitals     map[string]bool    `json:"digitals,omitempty" yaml:"digitals,omitempty"`
}

// SampleView 最近一次数据帧
type SampleView struct {
	Timestamp string    `json:"timestamp" yaml:"timestamp"`
	Epoch     float64   `json:"epoch" yaml:"epoch"`
	SOC       uint32    `json:"soc" yaml:"soc"`
	FracSec   uint32    `json:"fracsec" yaml:"fracsec"`
	PMUs      []PMUView `json:"pmus" yaml:"pmus"`
}

// NewSampleView 数据帧视图
func NewSampleView(df *c37118.DataFrame) SampleView {
	v := SampleView{
		Timestamp: df.Formatted,
		Epoch:     df.Epoch,
		SOC:       df.Header.SOC,
		FracSec:   df.Header.FracSec,
	}
	for _, p := range df.PMUs {
		pv := PMUView{
			Station:      p.Station.Name,
			IDCode:       p.Station.IDCode,
			Stat:         p.Stat.Raw,
			DataError:    p.Stat.DataError.String(),
			Sync:         p.Stat.Sync.String(),
			TimeQuality:  p.Stat.TimeQuality.String(),
			ConfigChange: p.Stat.ConfigChange,
			Freq:         p.Freq,
			ROCOF:        p.ROCOF,
		}
		for _, ph := range p.Phasors {
			pv.Phasors = append(pv.Phasors, PhasorView{
				Name: ph.Name, Magnitude: ph.Magnitude, AngleDeg: ph.AngleDeg, Real: ph.Real, Imag: ph.Imag,
			})
		}
		if len(p.Analogs) > 0 {
			pv.Analogs = make(map[string]float64, len(p.Analogs))
			for _, a := range p.Analogs {
				pv.Analogs[a.Name] = a.Value
			}
		}
		if len(p.Digitals) > 0 {
			pv.Digitals = make(map[string]bool, len(p.Digitals))
			for _, d := range p.Digitals {
				pv.Digitals[d.Name] = d.Value
			}
		}
		v.PMUs = append(v.PMUs, pv)
	}
	return v
}
