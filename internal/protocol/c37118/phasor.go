package c37118

import "math"

// Phasor 相量测量值，直角与极坐标两种表示同时给出
type Phasor struct {
	Name      string
	Real      float64
	Imag      float64
	Magnitude float64
	AngleRad  float64
	AngleDeg  float64
}

func rectPhasor(name string, re, im float64) Phasor {
	rad := math.Atan2(im, re)
	return Phasor{
		Name:      name,
		Real:      re,
		Imag:      im,
		Magnitude: math.Hypot(re, im),
		AngleRad:  rad,
		AngleDeg:  rad * 180 / math.Pi,
	}
}

func polarPhasor(name string, mag, rad float64) Phasor {
	return Phasor{
		Name:      name,
		Real:      mag * math.Cos(rad),
		Imag:      mag * math.Sin(rad),
		Magnitude: mag,
		AngleRad:  rad,
		AngleDeg:  rad * 180 / math.Pi,
	}
}

// Analog 模拟量通道值
type Analog struct {
	Name  string
	Value float64
}

// Digital 数字量单个位
type Digital struct {
	Name  string
	Value bool
}
